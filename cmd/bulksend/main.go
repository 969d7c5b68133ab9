package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/bulksend/internal/dispatch"
)

var rootCmd = &cobra.Command{
	Use:   "bulksend",
	Short: "Send templated email or SMS to every contact in a CSV file",
	Long: `bulksend reads a contacts CSV, renders a message template per row and
delivers it over SMTP (email) or an HTTP gateway (sms). Every attempt is
appended to a CSV send log so an interrupted run can be audited or resumed
with --start-row.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, dispatch.ErrConfiguration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// runContext cancels the batch on SIGINT or SIGTERM so the send log is
// flushed through the current record before the process exits.
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
