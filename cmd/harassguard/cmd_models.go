package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/straja-ai/harassguard/internal/classifier"
	"github.com/straja-ai/harassguard/internal/mockscorer"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and manage classifier bundles",
}

var modelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Load the configured classifiers and report their state",
	RunE:  runModelsStatus,
}

var modelsActivateCmd = &cobra.Command{
	Use:   "activate <family> <version>",
	Short: "Verify a bundle version and make it current",
	Long: "Verify <models.dir>/<family>/<version> against its manifest.json and\n" +
		"record it as current in state.json. Family is binary or multilabel.",
	Args: cobra.ExactArgs(2),
	RunE: runModelsActivate,
}

var mockServeFlags struct {
	addr string
}

var modelsMockServeCmd = &cobra.Command{
	Use:   "mock-serve",
	Short: "Run a deterministic stand-in for the remote scoring service",
	Long: "Serve /healthz and /v1/predict/{binary,multilabel} with keyword-based\n" +
		"scores, for exercising models.backend=http without real models.",
	RunE: runModelsMockServe,
}

func init() {
	modelsMockServeCmd.Flags().StringVar(&mockServeFlags.addr, "addr", "", "Listen address (default 127.0.0.1:$MOCK_SCORER_PORT or 18090)")

	modelsCmd.AddCommand(modelsStatusCmd)
	modelsCmd.AddCommand(modelsActivateCmd)
	modelsCmd.AddCommand(modelsMockServeCmd)
}

func runModelsMockServe(cmd *cobra.Command, _ []string) error {
	shutdown, baseURL, err := mockscorer.Start(mockServeFlags.addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mock scorer at %s; set models.http.base_url to use it\n", baseURL)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return shutdown(shutdownCtx)
}

type familyStatus struct {
	classifier.HandleStatus
	Bundle *classifier.BundleState `json:"bundle,omitempty"`
}

func runModelsStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	status := reg.Models(cmd.Context()).Status()
	out := map[string]familyStatus{}
	for name, st := range status {
		fs := familyStatus{HandleStatus: st}
		if cfg.Models.Backend == classifier.BackendONNX {
			if bs, err := classifier.LoadBundleState(filepath.Join(cfg.Models.Dir, name)); err == nil {
				fs.Bundle = &bs
			}
		}
		out[name] = fs
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"backend": cfg.Models.Backend, "models": out})
}

func runModelsActivate(cmd *cobra.Command, args []string) error {
	family, version := args[0], args[1]
	if family != classifier.FamilyBinary && family != classifier.FamilyMultilabel {
		return fmt.Errorf("unknown model family %q (want %s or %s)", family, classifier.FamilyBinary, classifier.FamilyMultilabel)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Models.Dir == "" {
		return errors.New("models.dir is not configured")
	}

	state, err := classifier.ActivateVersion(filepath.Join(cfg.Models.Dir, family), version)
	if err != nil {
		return fmt.Errorf("activate %s@%s: %w", family, version, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: current_version=%s previous_version=%s\n", family, state.CurrentVersion, state.PreviousVersion)
	return nil
}
