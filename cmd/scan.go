package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/database"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/orchestrator"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/workflow"
	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

var (
	scanTarget   string
	scanWorkflow string
	scanOutDir   string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a workflow against a target",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		spec, err := workflow.Load(scanWorkflow)
		if err != nil {
			return &exitError{code: ExitConfigError, err: err}
		}

		if scanOutDir != "" {
			cfg.Output.DataDir = scanOutDir
		}

		store, err := database.NewStore(cfg.Database, log)
		if err != nil {
			log.Warnw("Result store unavailable, continuing without persistence", "error", err)
			store = nil
		} else {
			defer store.Close()
		}

		engine, err := orchestrator.New(cfg, store, log)
		if err != nil {
			return &exitError{code: ExitConfigError, err: err}
		}

		result, err := engine.Run(ctx, spec, scanTarget)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return &exitError{code: ExitCancelled, err: err}
			}
			return &exitError{code: ExitConfigError, err: err}
		}

		printSummary(result)

		switch {
		case result.Status == types.RunCancelled:
			return &exitError{code: ExitCancelled, err: errors.New("scan cancelled")}
		case result.Status != types.RunSucceeded:
			return &exitError{code: ExitPartialOrVuln, err: fmt.Errorf("scan finished with status %s", result.Status)}
		case thresholdExceeded(result):
			return &exitError{
				code: ExitPartialOrVuln,
				err:  fmt.Errorf("vulnerabilities at or above %s found", cfg.SeverityThreshold),
			}
		}
		return nil
	},
}

func thresholdExceeded(result *types.ScanResult) bool {
	if cfg.SeverityThreshold == "" {
		return false
	}
	for _, v := range result.Vulnerabilities {
		if v.Severity.MeetsThreshold(cfg.SeverityThreshold) {
			return true
		}
	}
	return false
}

func printSummary(result *types.ScanResult) {
	bold := color.New(color.Bold)

	bold.Printf("\nScan %s — %s\n", result.ID, result.WorkflowName)
	fmt.Printf("Target:   %s\n", result.Target)
	fmt.Printf("Status:   %s\n", statusColor(result.Status))
	fmt.Printf("Duration: %s\n\n", result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))

	for _, t := range result.Tasks {
		fmt.Printf("  %-20s %-10s %s\n", t.TaskID, t.Tool, taskStateColor(t.State))
	}

	fmt.Printf("\nAssets: %d hosts, %d web apps, %d subdomains\n",
		len(result.Assets.Hosts), len(result.Assets.WebApps), len(result.Assets.Subdomains))

	if len(result.Vulnerabilities) > 0 {
		bold.Printf("Vulnerabilities: %d\n", len(result.Vulnerabilities))
		for _, v := range result.Vulnerabilities {
			fmt.Printf("  [%s] %s (%s)\n", severityColor(v.Severity), v.Name, v.Affected)
		}
	}
}

func statusColor(s types.RunStatus) string {
	switch s {
	case types.RunSucceeded:
		return color.GreenString(string(s))
	case types.RunCancelled:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}

func taskStateColor(s types.TaskState) string {
	switch s {
	case types.TaskSucceeded:
		return color.GreenString(string(s))
	case types.TaskSkipped, types.TaskCancelled:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}

func severityColor(s types.Severity) string {
	switch s {
	case types.SeverityCritical, types.SeverityHigh:
		return color.RedString(string(s))
	case types.SeverityMedium:
		return color.YellowString(string(s))
	default:
		return color.CyanString(string(s))
	}
}

func init() {
	scanCmd.Flags().StringVarP(&scanTarget, "target", "t", "", "scan target (IP, CIDR, hostname, or URL)")
	scanCmd.Flags().StringVarP(&scanWorkflow, "workflow", "w", "", "workflow YAML file")
	scanCmd.Flags().StringVarP(&scanOutDir, "output", "o", "", "output directory (overrides config)")
	scanCmd.MarkFlagRequired("target")
	scanCmd.MarkFlagRequired("workflow")
	rootCmd.AddCommand(scanCmd)
}
