// Package casestore keeps the per-case session: incident text, evidence
// metadata and the latest analysis.
package casestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/straja-ai/harassguard/internal/analysis"
	"github.com/straja-ai/harassguard/internal/evidence"
)

var (
	ErrNotFound     = errors.New("case not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Case is one complainant session. Analysis is nil until the first analysis
// and after a reset.
type Case struct {
	ID           string                  `json:"id"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
	IncidentText string                  `json:"incident_text"`
	Uploads      []evidence.UploadRecord `json:"uploads"`
	Analysis     *analysis.Result        `json:"analysis"`
}

// Store persists cases. Every mutating call returns the updated case.
type Store interface {
	Create(ctx context.Context) (*Case, error)
	Get(ctx context.Context, id string) (*Case, error)
	SetIncident(ctx context.Context, id, text string) (*Case, error)
	AddUpload(ctx context.Context, id string, rec evidence.UploadRecord) (*Case, error)
	SaveAnalysis(ctx context.Context, id string, res analysis.Result) (*Case, error)
	// Reset clears text, uploads and analysis but keeps the case id.
	Reset(ctx context.Context, id string) (*Case, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config selects a backend.
type Config struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open returns the store for cfg.Driver.
func Open(cfg Config) (Store, error) {
	var (
		s   *SQLStore
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		s, err = openSQL(DriverSQLite, func() (*sql.DB, error) { return openSQLite(cfg.SQLitePath) })
	case DriverPostgres:
		s, err = openSQL(DriverPostgres, func() (*sql.DB, error) { return openPostgres(cfg.PostgresDSN) })
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: case id is required", ErrInvalidInput)
	}
	return nil
}

func checkUpload(rec evidence.UploadRecord) error {
	if strings.TrimSpace(rec.OriginalName) == "" {
		return fmt.Errorf("%w: upload original_name is required", ErrInvalidInput)
	}
	return nil
}

func now() time.Time {
	return storedTime(time.Now())
}

// storedTime is the precision every backend keeps.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func normalizeUpload(rec evidence.UploadRecord) evidence.UploadRecord {
	rec.UploadedAt = storedTime(rec.UploadedAt)
	return rec
}
