package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore keeps every user in one JSON document. Writes go through a temp
// file and a rename so a crash never leaves a truncated file behind.
type FileStore struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

type fileDocument struct {
	Users []User `json:"users"`
}

// NewFileStore creates the file with an empty user list when it is missing.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{
		path:   path,
		logger: logger.With("component", "users"),
		now:    time.Now,
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(&fileDocument{Users: []User{}}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat user data file: %w", err)
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, uid uuid.UUID) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	i := doc.index(uid)
	if i < 0 {
		s.logger.Warn("user not found", "user", uid)
		return nil, ErrNotFound
	}
	u := doc.Users[i]
	return &u, nil
}

func (s *FileStore) ApplyOutcome(ctx context.Context, uid uuid.UUID, up Outcome) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := up.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	i := doc.index(uid)
	if i < 0 {
		return nil, ErrNotFound
	}

	before := doc.Users[i]
	doc.Users[i].Apply(up, s.now())
	logRecords(s.logger, before, doc.Users[i])

	if err := s.write(doc); err != nil {
		return nil, err
	}
	u := doc.Users[i]
	return &u, nil
}

func (s *FileStore) Upsert(ctx context.Context, u User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if i := doc.index(u.UID); i >= 0 {
		doc.Users[i].Name = u.Name
		doc.Users[i].Language = u.Language
		doc.Users[i].Salutation = u.Salutation
	} else {
		doc.Users = append(doc.Users, u)
	}
	return s.write(doc)
}

func (s *FileStore) read() (*fileDocument, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &fileDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user data file: %w", err)
	}
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode user data file: %w", err)
	}
	return &doc, nil
}

func (s *FileStore) write(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user data: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create user data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write user data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace user data file: %w", err)
	}
	return nil
}

func (d *fileDocument) index(uid uuid.UUID) int {
	for i, u := range d.Users {
		if u.UID == uid {
			return i
		}
	}
	return -1
}

// logRecords notes new personal bests.
func logRecords(logger *slog.Logger, before, after User) {
	if after.MaxPiecesAchieved != nil && (before.MaxPiecesAchieved == nil || *after.MaxPiecesAchieved > *before.MaxPiecesAchieved) {
		logger.Info("new max pieces", "user", after.UID, "pieces", *after.MaxPiecesAchieved)
	}
	if after.FastestTimeSeconds != nil && (before.FastestTimeSeconds == nil || *after.FastestTimeSeconds < *before.FastestTimeSeconds) {
		logger.Info("new fastest time", "user", after.UID, "seconds", *after.FastestTimeSeconds)
	}
}
