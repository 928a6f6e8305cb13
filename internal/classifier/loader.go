package classifier

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	BackendONNX = "onnx"
	BackendHTTP = "http"
	BackendNone = "none"

	FamilyBinary     = "binary"
	FamilyMultilabel = "multilabel"
)

// LoaderConfig selects and parameterises a model backend.
type LoaderConfig struct {
	Backend      string
	Dir          string
	SeqLen       int
	IntraThreads int
	HTTPBaseURL  string
	HTTPTimeout  time.Duration
}

// NewLoader returns the loader for cfg.Backend. Unknown backends are an error;
// "none" yields a loader whose models always report ErrModelsDisabled.
func NewLoader(cfg LoaderConfig) (Loader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendONNX:
		return &onnxLoader{dir: cfg.Dir, opts: ONNXOptions{SeqLen: cfg.SeqLen, IntraThreads: cfg.IntraThreads}}, nil
	case BackendHTTP:
		return &httpLoader{client: NewHTTPClient(cfg.HTTPBaseURL, cfg.HTTPTimeout), baseURL: cfg.HTTPBaseURL}, nil
	case BackendNone, "":
		return disabledLoader{}, nil
	default:
		return nil, fmt.Errorf("unknown models backend %q", cfg.Backend)
	}
}

type onnxLoader struct {
	dir  string
	opts ONNXOptions
}

func (l *onnxLoader) LoadBinary(context.Context) (BinaryModel, string, error) {
	dir, version, err := ResolveActiveDir(filepath.Join(l.dir, FamilyBinary))
	if err != nil {
		return nil, "", err
	}
	m, err := LoadONNXBinary(dir, l.opts)
	if err != nil {
		return nil, "", err
	}
	return m, "onnx:" + FamilyBinary + "@" + version, nil
}

func (l *onnxLoader) LoadMultilabel(context.Context) (MultilabelModel, string, error) {
	dir, version, err := ResolveActiveDir(filepath.Join(l.dir, FamilyMultilabel))
	if err != nil {
		return nil, "", err
	}
	m, err := LoadONNXMultilabel(dir, l.opts)
	if err != nil {
		return nil, "", err
	}
	return m, "onnx:" + FamilyMultilabel + "@" + version, nil
}

type httpLoader struct {
	client  *HTTPClient
	baseURL string
}

func (l *httpLoader) LoadBinary(ctx context.Context) (BinaryModel, string, error) {
	binary, _, err := l.client.Health(ctx)
	if err != nil {
		return nil, "", err
	}
	if !binary {
		return nil, "", fmt.Errorf("remote service has no binary model")
	}
	return l.client, "http:" + l.baseURL, nil
}

func (l *httpLoader) LoadMultilabel(ctx context.Context) (MultilabelModel, string, error) {
	_, multilabel, err := l.client.Health(ctx)
	if err != nil {
		return nil, "", err
	}
	if !multilabel {
		return nil, "", fmt.Errorf("remote service has no multilabel model")
	}
	return l.client, "http:" + l.baseURL, nil
}

type disabledLoader struct{}

func (disabledLoader) LoadBinary(context.Context) (BinaryModel, string, error) {
	return nil, "", ErrModelsDisabled
}

func (disabledLoader) LoadMultilabel(context.Context) (MultilabelModel, string, error) {
	return nil, "", ErrModelsDisabled
}
