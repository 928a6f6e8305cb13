package activation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Sink types accepted by BuildSinks.
const (
	SinkFileJSONL = "file_jsonl"
	SinkWebhook   = "webhook"
)

// SinkSpec describes one configured sink.
type SinkSpec struct {
	Type    string
	Path    string
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// BuildSinks opens every configured sink. On error, sinks opened so far are
// closed before returning.
func BuildSinks(specs []SinkSpec) ([]Sink, error) {
	var sinks []Sink
	fail := func(err error) ([]Sink, error) {
		for _, s := range sinks {
			_ = s.Close(context.Background())
		}
		return nil, err
	}
	for i, spec := range specs {
		switch strings.ToLower(strings.TrimSpace(spec.Type)) {
		case SinkFileJSONL:
			s, err := NewFileSink(spec.Path)
			if err != nil {
				return fail(fmt.Errorf("sink %d: %w", i, err))
			}
			sinks = append(sinks, s)
		case SinkWebhook:
			s, err := NewWebhookSink(spec.URL, spec.Headers, spec.Timeout)
			if err != nil {
				return fail(fmt.Errorf("sink %d: %w", i, err))
			}
			sinks = append(sinks, s)
		default:
			return fail(fmt.Errorf("sink %d: unknown type %q", i, spec.Type))
		}
	}
	return sinks, nil
}
