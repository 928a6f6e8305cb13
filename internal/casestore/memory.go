package casestore

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/straja-ai/harassguard/internal/analysis"
	"github.com/straja-ai/harassguard/internal/evidence"
)

// Memory is a process-local Store.
type Memory struct {
	mu    sync.RWMutex
	cases map[string]*Case
}

func NewMemory() *Memory {
	return &Memory{cases: make(map[string]*Case)}
}

func (m *Memory) Create(context.Context) (*Case, error) {
	ts := now()
	c := &Case{ID: uuid.NewString(), CreatedAt: ts, UpdatedAt: ts, Uploads: []evidence.UploadRecord{}}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[c.ID] = c
	return clone(c), nil
}

func (m *Memory) Get(_ context.Context, id string) (*Case, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

func (m *Memory) SetIncident(_ context.Context, id, text string) (*Case, error) {
	return m.update(id, func(c *Case) error {
		c.IncidentText = text
		return nil
	})
}

func (m *Memory) AddUpload(_ context.Context, id string, rec evidence.UploadRecord) (*Case, error) {
	return m.update(id, func(c *Case) error {
		if err := checkUpload(rec); err != nil {
			return err
		}
		c.Uploads = append(c.Uploads, normalizeUpload(rec))
		return nil
	})
}

func (m *Memory) SaveAnalysis(_ context.Context, id string, res analysis.Result) (*Case, error) {
	return m.update(id, func(c *Case) error {
		c.Analysis = &res
		return nil
	})
}

func (m *Memory) Reset(_ context.Context, id string) (*Case, error) {
	return m.update(id, func(c *Case) error {
		c.IncidentText = ""
		c.Uploads = []evidence.UploadRecord{}
		c.Analysis = nil
		return nil
	})
}

func (m *Memory) Delete(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[id]; !ok {
		return ErrNotFound
	}
	delete(m.cases, id)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) update(id string, fn func(*Case) error) (*Case, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = now()
	return clone(c), nil
}

func clone(c *Case) *Case {
	out := *c
	out.Uploads = slices.Clone(c.Uploads)
	if out.Uploads == nil {
		out.Uploads = []evidence.UploadRecord{}
	}
	if c.Analysis != nil {
		res := *c.Analysis
		out.Analysis = &res
	}
	return &out
}
