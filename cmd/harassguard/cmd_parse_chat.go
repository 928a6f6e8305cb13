package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/straja-ai/harassguard/internal/chatparse"
)

var parseChatFlags struct {
	maxLines int
	asJSON   bool
}

var parseChatCmd = &cobra.Command{
	Use:   "parse-chat <file>",
	Short: "Summarise a WhatsApp-style chat export",
	Args:  cobra.ExactArgs(1),
	RunE:  runParseChat,
}

func init() {
	f := parseChatCmd.Flags()
	f.IntVar(&parseChatFlags.maxLines, "max-lines", chatparse.DefaultSummaryLines, "Maximum summary lines")
	f.BoolVar(&parseChatFlags.asJSON, "json", false, "Print parsed messages as JSON")
}

func runParseChat(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open chat export: %w", err)
	}
	defer f.Close()

	msgs, err := chatparse.Parse(f)
	if err != nil {
		return fmt.Errorf("parse chat export: %w", err)
	}

	out := cmd.OutOrStdout()
	if parseChatFlags.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(msgs)
	}

	fmt.Fprintf(out, "Messages: %d\n", len(msgs))
	if summary := chatparse.Summary(msgs, parseChatFlags.maxLines); summary != "" {
		fmt.Fprintf(out, "\n%s\n", summary)
	}
	if signals := chatparse.Signals(msgs); len(signals) > 0 {
		fmt.Fprintf(out, "\nSignals:\n")
		for _, s := range signals {
			fmt.Fprintf(out, "  - %s\n", s)
		}
	}
	return nil
}
