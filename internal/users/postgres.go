package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS puzzle_users (
	uid                     UUID PRIMARY KEY,
	name                    TEXT NOT NULL,
	language                SMALLINT NOT NULL DEFAULT 0,
	salutation              SMALLINT NOT NULL DEFAULT 0,
	max_pieces_achieved     INTEGER,
	fastest_time_seconds    DOUBLE PRECISION,
	total_puzzles_completed INTEGER,
	last_accessed_utc       TIMESTAMPTZ
)`

const selectUser = `
SELECT uid, name, language, salutation, max_pieces_achieved,
       fastest_time_seconds, total_puzzles_completed, last_accessed_utc
FROM puzzle_users WHERE uid = $1`

// PGStore keeps users in Postgres.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewPool connects and verifies the connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewPGStore creates the table if needed.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PGStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PGStore{pool: pool, logger: logger.With("component", "users"), now: time.Now}, nil
}

func (s *PGStore) Get(ctx context.Context, uid uuid.UUID) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, selectUser, pgUUID(uid)))
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Warn("user not found", "user", uid)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ApplyOutcome locks the row for the read-modify-write so concurrent results
// for one user are applied one after another.
func (s *PGStore) ApplyOutcome(ctx context.Context, uid uuid.UUID, up Outcome) (*User, error) {
	if err := up.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	u, err := scanUser(tx.QueryRow(ctx, selectUser+" FOR UPDATE", pgUUID(uid)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	before := *u
	u.Apply(up, s.now())

	_, err = tx.Exec(ctx, `
		UPDATE puzzle_users
		SET max_pieces_achieved = $2, fastest_time_seconds = $3,
		    total_puzzles_completed = $4, last_accessed_utc = $5
		WHERE uid = $1`,
		pgUUID(uid),
		int4(u.MaxPiecesAchieved),
		float8(u.FastestTimeSeconds),
		int4(u.TotalPuzzlesCompleted),
		timestamptz(u.LastAccessedUtc),
	)
	if err != nil {
		return nil, fmt.Errorf("update stats: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	logRecords(s.logger, before, *u)
	return u, nil
}

func (s *PGStore) Upsert(ctx context.Context, u User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO puzzle_users (uid, name, language, salutation)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uid) DO UPDATE
		SET name = EXCLUDED.name, language = EXCLUDED.language, salutation = EXCLUDED.salutation`,
		pgUUID(u.UID), u.Name, int16(u.Language), int16(u.Salutation),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		id                   pgtype.UUID
		name                 string
		language, salutation int16
		maxPieces, total     pgtype.Int4
		fastest              pgtype.Float8
		lastAccessed         pgtype.Timestamptz
	)
	if err := row.Scan(&id, &name, &language, &salutation, &maxPieces, &fastest, &total, &lastAccessed); err != nil {
		return nil, err
	}

	u := &User{
		UID:        uuid.UUID(id.Bytes),
		Name:       name,
		Language:   Language(language),
		Salutation: Salutation(salutation),
	}
	if maxPieces.Valid {
		v := int(maxPieces.Int32)
		u.MaxPiecesAchieved = &v
	}
	if fastest.Valid {
		v := fastest.Float64
		u.FastestTimeSeconds = &v
	}
	if total.Valid {
		v := int(total.Int32)
		u.TotalPuzzlesCompleted = &v
	}
	if lastAccessed.Valid {
		v := lastAccessed.Time.UTC()
		u.LastAccessedUtc = &v
	}
	return u, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func int4(v *int) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*v), Valid: true}
}

func float8(v *float64) pgtype.Float8 {
	if v == nil {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: *v, Valid: true}
}

func timestamptz(v *time.Time) pgtype.Timestamptz {
	if v == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *v, Valid: true}
}
