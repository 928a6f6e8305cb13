package main

import (
	"context"
	"flag"
	"fmt"
	"slices"
	"time"

	"github.com/straja-ai/harassguard/internal/classifier"
	"github.com/straja-ai/harassguard/internal/config"
	"github.com/straja-ai/harassguard/internal/redact"
)

func main() {
	cfgPath := flag.String("config", "", "path to config yaml (required)")
	n := flag.Int("n", 200, "number of iterations")
	text := flag.String("text", "My manager keeps sending me obscene messages and threatened to fire me if I complain.", "incident text to score")
	flag.Parse()

	if *cfgPath == "" {
		redact.Fatalf("config flag is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		redact.Fatalf("load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		redact.Fatalf("invalid config: %v", err)
	}

	loader, err := classifier.NewLoader(classifier.LoaderConfig{
		Backend:      cfg.Models.Backend,
		Dir:          cfg.Models.Dir,
		SeqLen:       cfg.Models.SeqLen,
		IntraThreads: cfg.Models.IntraThreads,
		HTTPBaseURL:  cfg.Models.HTTP.BaseURL,
		HTTPTimeout:  cfg.Models.HTTP.Timeout(),
	})
	if err != nil {
		redact.Fatalf("models: %v", err)
	}
	reg := classifier.NewRegistry(loader)
	defer reg.Close()

	ctx := context.Background()
	models := reg.Models(ctx)

	if *n <= 0 {
		*n = 1
	}

	bench := func(name string, call func() error) {
		// Warmup
		for i := 0; i < 5; i++ {
			if err := call(); err != nil {
				redact.Fatalf("%s warmup failed: %v", name, err)
			}
		}
		durations := make([]time.Duration, 0, *n)
		for i := 0; i < *n; i++ {
			start := time.Now()
			if err := call(); err != nil {
				redact.Fatalf("%s inference failed: %v", name, err)
			}
			durations = append(durations, time.Since(start))
		}
		report(name, durations)
	}

	if h, ok := models.Binary.(classifier.Ready[classifier.BinaryModel]); ok {
		bench("binary", func() error {
			_, ierr := classifier.CallBinary(ctx, h.Model, *text)
			if ierr != nil {
				return ierr
			}
			return nil
		})
	} else {
		fmt.Printf("bench: binary skipped (%s)\n", classifier.StatusOf[classifier.BinaryModel](models.Binary).Reason)
	}

	if h, ok := models.Multilabel.(classifier.Ready[classifier.MultilabelModel]); ok {
		bench("multilabel", func() error {
			_, ierr := classifier.CallMultilabel(ctx, h.Model, *text)
			if ierr != nil {
				return ierr
			}
			return nil
		})
	} else {
		fmt.Printf("bench: multilabel skipped (%s)\n", classifier.StatusOf[classifier.MultilabelModel](models.Multilabel).Reason)
	}
}

func report(name string, durations []time.Duration) {
	slices.Sort(durations)

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	avg := float64(total.Microseconds()) / 1000.0 / float64(len(durations))
	p50 := float64(durations[len(durations)/2].Microseconds()) / 1000.0
	p95 := float64(durations[int(float64(len(durations))*0.95)].Microseconds()) / 1000.0

	fmt.Printf("bench: model=%s n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f\n", name, len(durations), avg, p50, p95)
}
