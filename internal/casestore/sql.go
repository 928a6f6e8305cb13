package casestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/straja-ai/harassguard/internal/analysis"
	"github.com/straja-ai/harassguard/internal/evidence"
)

// SQLStore persists cases in SQLite or PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func openSQL(driver string, open func() (*sql.DB, error)) (*SQLStore, error) {
	db, err := open()
	if err != nil {
		return nil, err
	}
	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s schema: %w", driver, err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range allSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *SQLStore) Create(ctx context.Context) (*Case, error) {
	ts := now()
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO cases (id, created_at, updated_at, incident_text) VALUES (?, ?, ?, '')
	`), id, formatTime(ts), formatTime(ts))
	if err != nil {
		return nil, fmt.Errorf("insert case: %w", err)
	}
	return &Case{ID: id, CreatedAt: ts, UpdatedAt: ts, Uploads: []evidence.UploadRecord{}}, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Case, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.get(ctx, s.db, id)
}

func (s *SQLStore) SetIncident(ctx context.Context, id, text string) (*Case, error) {
	return s.update(ctx, id, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.rebind(`UPDATE cases SET incident_text = ? WHERE id = ?`), text, id)
		return err
	})
}

func (s *SQLStore) AddUpload(ctx context.Context, id string, rec evidence.UploadRecord) (*Case, error) {
	if err := checkUpload(rec); err != nil {
		return nil, err
	}
	rec = normalizeUpload(rec)
	return s.update(ctx, id, func(tx *sql.Tx) error {
		var seq int
		if err := tx.QueryRowContext(ctx, s.rebind(`
			SELECT COALESCE(MAX(seq), 0) FROM case_uploads WHERE case_id = ?
		`), id).Scan(&seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO case_uploads (case_id, seq, original_name, saved_name, size_kb, sha256, uploaded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), id, seq+1, rec.OriginalName, rec.SavedName, rec.SizeKB, rec.SHA256, formatTime(rec.UploadedAt))
		return err
	})
}

func (s *SQLStore) SaveAnalysis(ctx context.Context, id string, res analysis.Result) (*Case, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	return s.update(ctx, id, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.rebind(`UPDATE cases SET analysis = ? WHERE id = ?`), string(raw), id)
		return err
	})
}

func (s *SQLStore) Reset(ctx context.Context, id string) (*Case, error) {
	return s.update(ctx, id, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM case_uploads WHERE case_id = ?`), id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE cases SET incident_text = '', analysis = NULL WHERE id = ?
		`), id)
		return err
	})
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM case_uploads WHERE case_id = ?`), id); err != nil {
		return fmt.Errorf("delete uploads: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM cases WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// update runs fn and bumps updated_at in one transaction, then reloads the case.
func (s *SQLStore) update(ctx context.Context, id string, fn func(*sql.Tx) error) (*Case, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE cases SET updated_at = ? WHERE id = ?`), formatTime(now()), id)
	if err != nil {
		return nil, fmt.Errorf("touch case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	if err := fn(tx); err != nil {
		return nil, fmt.Errorf("update case %s: %w", id, err)
	}
	c, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLStore) get(ctx context.Context, q querier, id string) (*Case, error) {
	var (
		c                Case
		created, updated string
		analysisRaw      sql.NullString
	)
	err := q.QueryRowContext(ctx, s.rebind(`
		SELECT id, created_at, updated_at, incident_text, analysis FROM cases WHERE id = ?
	`), id).Scan(&c.ID, &created, &updated, &c.IncidentText, &analysisRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select case: %w", err)
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if analysisRaw.Valid && analysisRaw.String != "" {
		var res analysis.Result
		if err := json.Unmarshal([]byte(analysisRaw.String), &res); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		c.Analysis = &res
	}

	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT original_name, saved_name, size_kb, sha256, uploaded_at
		FROM case_uploads WHERE case_id = ? ORDER BY seq
	`), id)
	if err != nil {
		return nil, fmt.Errorf("select uploads: %w", err)
	}
	defer rows.Close()

	c.Uploads = []evidence.UploadRecord{}
	for rows.Next() {
		var (
			rec evidence.UploadRecord
			at  string
		)
		if err := rows.Scan(&rec.OriginalName, &rec.SavedName, &rec.SizeKB, &rec.SHA256, &at); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		if rec.UploadedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		c.Uploads = append(c.Uploads, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return &c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
