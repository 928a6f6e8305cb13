package classifier

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/straja-ai/harassguard/internal/redact"
)

// Loader builds the two models. Either may fail independently.
type Loader interface {
	LoadBinary(ctx context.Context) (BinaryModel, string, error)
	LoadMultilabel(ctx context.Context) (MultilabelModel, string, error)
}

// Models is a snapshot of both handles. Handles are read-only once published.
type Models struct {
	Binary     Handle[BinaryModel]
	Multilabel Handle[MultilabelModel]
}

// Status describes both handles.
func (m Models) Status() map[string]HandleStatus {
	return map[string]HandleStatus{
		modelBinary:     StatusOf[BinaryModel](m.Binary),
		modelMultilabel: StatusOf[MultilabelModel](m.Multilabel),
	}
}

// Registry loads models once per process and serves the cached handles.
// A failed load leaves that model Missing until Reload.
type Registry struct {
	loader Loader

	mu     sync.Mutex
	loaded bool
	models Models
}

func NewRegistry(loader Loader) *Registry {
	return &Registry{loader: loader}
}

// Models returns the cached handles, loading them on first use.
// Concurrent first callers wait on the same load.
func (r *Registry) Models(ctx context.Context) Models {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		r.models = r.load(ctx)
		r.loaded = true
	}
	return r.models
}

// Reload replaces both handles with a fresh load and closes the old models.
func (r *Registry) Reload(ctx context.Context) Models {
	fresh := r.load(ctx)

	r.mu.Lock()
	old := r.models
	r.models = fresh
	r.loaded = true
	r.mu.Unlock()

	closeModels(old)
	return fresh
}

// Close releases any loaded model resources.
func (r *Registry) Close() {
	r.mu.Lock()
	old := r.models
	r.models = Models{}
	r.loaded = false
	r.mu.Unlock()
	closeModels(old)
}

func (r *Registry) load(ctx context.Context) Models {
	if r.loader == nil {
		return Models{
			Binary:     Missing[BinaryModel]{Reason: ErrModelsDisabled.Error()},
			Multilabel: Missing[MultilabelModel]{Reason: ErrModelsDisabled.Error()},
		}
	}

	var out Models
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Binary = loadHandle(gctx, modelBinary, r.loader.LoadBinary)
		return nil
	})
	g.Go(func() error {
		out.Multilabel = loadHandle(gctx, modelMultilabel, r.loader.LoadMultilabel)
		return nil
	})
	_ = g.Wait()
	return out
}

func loadHandle[M any](ctx context.Context, name string, fn func(context.Context) (M, string, error)) (h Handle[M]) {
	defer func() {
		if rec := recover(); rec != nil {
			redact.Logf("classifier: %s model load panicked: %v; continuing without it", name, rec)
			h = Missing[M]{Reason: "load panicked"}
		}
	}()

	m, source, err := fn(ctx)
	if err != nil {
		if errors.Is(err, ErrModelsDisabled) {
			redact.Logf("classifier: %s model disabled via config; running rules-only for this signal", name)
		} else {
			redact.Logf("classifier: %s model unavailable: %v; running rules-only for this signal", name, err)
		}
		return Missing[M]{Reason: err.Error()}
	}
	if any(m) == nil {
		return Missing[M]{Reason: "loader returned no model"}
	}
	redact.Logf("classifier: %s model loaded source=%s", name, source)
	return Ready[M]{Model: m, Source: source}
}

func closeModels(m Models) {
	if v, ok := m.Binary.(Ready[BinaryModel]); ok {
		closeQuietly(modelBinary, v.Model)
	}
	if v, ok := m.Multilabel.(Ready[MultilabelModel]); ok {
		closeQuietly(modelMultilabel, v.Model)
	}
}

func closeQuietly(name string, m any) {
	c, ok := m.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		redact.Logf("classifier: close %s model: %v", name, err)
	}
}
