package users

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Column layout of the mailing export.
const (
	colUID        = 0
	colFirstName  = 4
	colLastName   = 5
	colLanguage   = 9
	colSalutation = 10
	minColumns    = 12
)

// ReadSeedCSV parses the semicolon separated mailing export. The first row
// is a header. Rows that are short, lack a name or carry a malformed uid are
// skipped with a warning.
func ReadSeedCSV(r io.Reader, logger *slog.Logger) ([]User, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var out []User
	for row := 2; ; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if len(rec) < minColumns {
			logger.Warn("skipping short row", "row", row, "columns", len(rec))
			continue
		}

		first := strings.TrimSpace(rec[colFirstName])
		last := strings.TrimSpace(rec[colLastName])
		uid, err := uuid.Parse(strings.TrimSpace(rec[colUID]))
		if err != nil || uid == uuid.Nil || first == "" || last == "" {
			logger.Warn("skipping row with missing uid or name", "row", row)
			continue
		}

		out = append(out, User{
			UID:        uid,
			Name:       first + " " + last,
			Language:   parseLanguage(rec[colLanguage]),
			Salutation: parseSalutation(rec[colSalutation]),
		})
	}
	return out, nil
}

// parseLanguage treats anything mentioning "eng" as English.
func parseLanguage(s string) Language {
	if strings.Contains(strings.ToLower(s), "eng") {
		return LanguageEnglish
	}
	return LanguageGerman
}

func parseSalutation(s string) Salutation {
	if strings.Contains(strings.ToLower(s), "sie") {
		return SalutationFormal
	}
	return SalutationInformal
}
