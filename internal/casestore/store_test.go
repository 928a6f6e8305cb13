package casestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/straja-ai/harassguard/internal/analysis"
	"github.com/straja-ai/harassguard/internal/evidence"
	"github.com/straja-ai/harassguard/internal/safety"
	"github.com/straja-ai/harassguard/internal/taxonomy"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.db")
	s, err := Open(Config{Driver: DriverSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	runStoreContract(t, s)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.db")
	ctx := context.Background()

	s, err := Open(Config{Driver: DriverSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	c, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.SetIncident(ctx, c.ID, "he followed me home"); err != nil {
		t.Fatalf("set incident: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(Config{Driver: DriverSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.IncidentText != "he followed me home" {
		t.Fatalf("incident text = %q", got.IncidentText)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("HARASSGUARD_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HARASSGUARD_POSTGRES_DSN not set")
	}
	s, err := Open(Config{Driver: DriverPostgres, PostgresDSN: dsn})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	runStoreContract(t, s)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	s, err := Open(Config{})
	if err != nil {
		t.Fatalf("empty driver should default to memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("expected *Memory, got %T", s)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	if got := pg.rebind("SELECT ? FROM t WHERE a = ? AND b = ?"); got != "SELECT $1 FROM t WHERE a = $2 AND b = $3" {
		t.Fatalf("postgres rebind = %q", got)
	}
	lite := &SQLStore{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind = %q", got)
	}
}

func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	c, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("create", func(t *testing.T) {
		if c.ID == "" || c.CreatedAt.IsZero() {
			t.Fatalf("unexpected new case %+v", c)
		}
		if c.Uploads == nil || len(c.Uploads) != 0 || c.Analysis != nil {
			t.Fatalf("new case should be empty, got %+v", c)
		}
	})

	t.Run("incident text", func(t *testing.T) {
		got, err := s.SetIncident(ctx, c.ID, "My manager touched me in the office")
		if err != nil {
			t.Fatalf("set incident: %v", err)
		}
		if got.IncidentText != "My manager touched me in the office" {
			t.Fatalf("incident text = %q", got.IncidentText)
		}
		if got.UpdatedAt.Before(c.UpdatedAt) {
			t.Fatalf("updated_at went backwards")
		}
	})

	uploadedAt := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	uploads := []evidence.UploadRecord{
		{OriginalName: "chat.png", SavedName: "abc_chat.png", SizeKB: 12.5, SHA256: "deadbeef", UploadedAt: uploadedAt},
		{OriginalName: "export.txt", SavedName: "def_export.txt", SizeKB: 1, SHA256: "cafe", UploadedAt: uploadedAt.Add(time.Minute)},
	}

	t.Run("uploads keep order", func(t *testing.T) {
		for _, u := range uploads {
			if _, err := s.AddUpload(ctx, c.ID, u); err != nil {
				t.Fatalf("add upload: %v", err)
			}
		}
		got, err := s.Get(ctx, c.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if diff := cmp.Diff(uploads, got.Uploads); diff != "" {
			t.Fatalf("uploads mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("upload requires a name", func(t *testing.T) {
		_, err := s.AddUpload(ctx, c.ID, evidence.UploadRecord{})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("upload time kept at microsecond precision", func(t *testing.T) {
		fresh, err := s.Create(ctx)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		at := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.FixedZone("IST", 5*3600+1800))
		added, err := s.AddUpload(ctx, fresh.ID, evidence.UploadRecord{OriginalName: "call_log.txt", UploadedAt: at})
		if err != nil {
			t.Fatalf("add upload: %v", err)
		}
		got, err := s.Get(ctx, fresh.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		want := time.Date(2026, 3, 1, 7, 0, 0, 123456000, time.UTC)
		for _, u := range []evidence.UploadRecord{added.Uploads[0], got.Uploads[0]} {
			if u.UploadedAt.Location() != time.UTC || u.UploadedAt.Nanosecond() != want.Nanosecond() || !u.UploadedAt.Equal(want) {
				t.Fatalf("uploaded_at = %s, want %s", u.UploadedAt.Format(time.RFC3339Nano), want.Format(time.RFC3339Nano))
			}
		}
	})

	pred, prob := 1, 0.91
	result := analysis.Result{
		HarassmentLikely:  true,
		CombinedSeverity:  97,
		DetectedTypes:     []taxonomy.Category{taxonomy.SexualHarassment, taxonomy.Workplace},
		RuleHits:          map[taxonomy.Category][]string{taxonomy.SexualHarassment: {"touched me"}},
		MLProbs:           map[string]float64{"toxic": 0.4},
		Laws:              []taxonomy.LawEntry{},
		BinaryPred:        &pred,
		BinaryProb:        &prob,
		EvidenceChecklist: []string{"Screenshots"},
		MissingEvidence:   []string{},
		EvidenceReadiness: 100,
		DecisionPath:      safety.PathBinaryModel,
	}

	t.Run("analysis round trip", func(t *testing.T) {
		if _, err := s.SaveAnalysis(ctx, c.ID, result); err != nil {
			t.Fatalf("save analysis: %v", err)
		}
		got, err := s.Get(ctx, c.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Analysis == nil {
			t.Fatalf("analysis not stored")
		}
		if diff := cmp.Diff(result, *got.Analysis); diff != "" {
			t.Fatalf("analysis mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("reset keeps id", func(t *testing.T) {
		got, err := s.Reset(ctx, c.ID)
		if err != nil {
			t.Fatalf("reset: %v", err)
		}
		if got.ID != c.ID || got.IncidentText != "" || len(got.Uploads) != 0 || got.Analysis != nil {
			t.Fatalf("reset left state behind: %+v", got)
		}
	})

	t.Run("cases are isolated", func(t *testing.T) {
		other, err := s.Create(ctx)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := s.SetIncident(ctx, other.ID, "other"); err != nil {
			t.Fatalf("set incident: %v", err)
		}
		got, err := s.Get(ctx, c.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.IncidentText != "" {
			t.Fatalf("case leaked text from another case: %q", got.IncidentText)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("get missing: %v", err)
		}
		if _, err := s.SetIncident(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("set missing: %v", err)
		}
		if _, err := s.Get(ctx, ""); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("empty id: %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(ctx, c.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Get(ctx, c.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
		if err := s.Delete(ctx, c.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("second delete: %v", err)
		}
	})
}
