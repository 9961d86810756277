package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pkgsync "github.com/stacklok/eol-sync/internal/sync"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single EOL sync pass and exit",
		Long: `Run a single EOL sync pass: authenticate, load frameworks and services, then
write each service's EOL framework count. The command exits non-zero when the
pass fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("error retrieving format flag: %w", err)
			}
			if format != "text" && format != "json" {
				return fmt.Errorf("unsupported format %q (text or json)", format)
			}
			return runOnce(cmd.Context(), v, cmd.OutOrStdout(), format)
		},
	}
	cmd.Flags().String("format", "text", "Output format (text or json)")
	return cmd
}

func runOnce(ctx context.Context, v *viper.Viper, out io.Writer, format string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	stack, err := newSyncStack(ctx, cfg, v.GetString(keyDataDir))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		stack.shutdown(shutdownCtx)
	}()

	// A signal stops the coordinator, which cancels the pass at its next call.
	// The summary still waits for the stage the pass stopped in.
	stopOnSignal := context.AfterFunc(ctx, func() { _ = stack.coordinator.Stop() })
	defer stopOnSignal()

	result, syncErr := stack.coordinator.Trigger(context.WithoutCancel(ctx))
	if err := writeRunSummary(out, format, newRunSummary(result, syncErr)); err != nil {
		return err
	}
	if syncErr != nil {
		return syncErr
	}
	return nil
}

// runSummary is what the run command prints
type runSummary struct {
	Success  bool             `json:"success"`
	PassID   string           `json:"passId,omitempty"`
	DryRun   bool             `json:"dryRun,omitempty"`
	Duration string           `json:"duration,omitempty"`
	Updated  int              `json:"updated"`
	EOLTotal int              `json:"eolTotal"`
	Services []serviceSummary `json:"services,omitempty"`
	Error    string           `json:"error,omitempty"`
	Stage    string           `json:"stage,omitempty"`
	Service  string           `json:"service,omitempty"`
}

type serviceSummary struct {
	ID       string `json:"id"`
	EOLCount int    `json:"eolCount"`
	Updated  bool   `json:"updated"`
	Error    string `json:"error,omitempty"`
}

func newRunSummary(result *pkgsync.Result, syncErr *pkgsync.Error) runSummary {
	summary := runSummary{Success: syncErr == nil}
	if result != nil {
		summary.PassID = result.PassID
		summary.DryRun = result.DryRun
		summary.Duration = result.Duration.Round(time.Millisecond).String()
		summary.Updated = result.UpdatedCount
		summary.EOLTotal = result.EOLTotal
		for _, svc := range result.Services {
			s := serviceSummary{ID: svc.ServiceID, EOLCount: svc.EOLCount, Updated: svc.Updated}
			if svc.Err != nil {
				s.Error = svc.Err.Error()
			}
			summary.Services = append(summary.Services, s)
		}
	}
	if syncErr != nil {
		if summary.PassID == "" {
			summary.PassID = syncErr.PassID
		}
		summary.Error = syncErr.Message
		summary.Stage = string(syncErr.Stage)
		summary.Service = syncErr.ServiceID
	}
	return summary
}

func writeRunSummary(out io.Writer, format string, summary runSummary) error {
	if format == "json" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("error formatting summary as JSON: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	if !summary.Success {
		_, err := fmt.Fprintf(out, "Sync pass %s failed in stage %s: %s\n", summary.PassID, summary.Stage, summary.Error)
		return err
	}

	mode := ""
	if summary.DryRun {
		mode = " (dry run)"
	}
	if _, err := fmt.Fprintf(out, "Sync pass %s completed in %s%s: %d services, %d updated, %d EOL references\n",
		summary.PassID, summary.Duration, mode, len(summary.Services), summary.Updated, summary.EOLTotal); err != nil {
		return err
	}
	for _, svc := range summary.Services {
		if _, err := fmt.Fprintf(out, "  %s\t%d\n", svc.ID, svc.EOLCount); err != nil {
			return err
		}
	}
	return nil
}
