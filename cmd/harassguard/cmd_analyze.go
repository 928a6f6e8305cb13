package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/straja-ai/harassguard/internal/evidence"
)

var analyzeFlags struct {
	text    string
	file    string
	uploads []string
	models  bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyse one incident description and print the result as JSON",
	Long: "Analyse one incident description. The text comes from --text, --file\n" +
		"or stdin. Each --upload is hashed locally and counted as evidence.",
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.text, "text", "", "Incident text")
	f.StringVar(&analyzeFlags.file, "file", "", "Read incident text from this file ('-' for stdin)")
	f.StringArrayVar(&analyzeFlags.uploads, "upload", nil, "Evidence file to attach (repeatable)")
	f.BoolVar(&analyzeFlags.models, "models", false, "Load the configured classifiers (rules-only otherwise)")
	analyzeCmd.MarkFlagsMutuallyExclusive("text", "file")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	text, err := incidentText(cmd.InOrStdin())
	if err != nil {
		return err
	}
	uploads, err := hashUploads(analyzeFlags.uploads, cfg.Uploads.AllowedExtensions)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, analyzeFlags.models, false)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	res := a.analyzer.Analyze(ctx, text, uploads)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func incidentText(stdin io.Reader) (string, error) {
	switch {
	case analyzeFlags.text != "":
		return analyzeFlags.text, nil
	case analyzeFlags.file == "" || analyzeFlags.file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(analyzeFlags.file)
		if err != nil {
			return "", fmt.Errorf("read incident file: %w", err)
		}
		return string(data), nil
	}
}

func hashUploads(paths, allowed []string) ([]evidence.UploadRecord, error) {
	out := make([]evidence.UploadRecord, 0, len(paths))
	for _, p := range paths {
		rec, err := hashUpload(p, allowed)
		if err != nil {
			if errors.Is(err, evidence.ErrUnsupportedType) {
				return nil, fmt.Errorf("upload %s: %w (allowed: %v)", p, err, allowedOrDefault(allowed))
			}
			return nil, fmt.Errorf("upload %s: %w", p, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func hashUpload(path string, allowed []string) (evidence.UploadRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return evidence.UploadRecord{}, err
	}
	defer f.Close()
	return evidence.NewUploadRecord(path, f, time.Now(), allowed)
}

func allowedOrDefault(allowed []string) []string {
	if len(allowed) == 0 {
		return evidence.DefaultAllowedExtensions
	}
	return allowed
}
