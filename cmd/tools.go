package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/orchestrator"
)

var toolsCategory string

var listToolsCmd = &cobra.Command{
	Use:   "list-tools",
	Short: "List registered tool adapters",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := orchestrator.New(cfg, nil, log)
		if err != nil {
			return &exitError{code: ExitConfigError, err: err}
		}

		bold := color.New(color.Bold)
		bold.Printf("%-12s %-10s %-24s %s\n", "TOOL", "CATEGORY", "BINARIES", "DESCRIPTION")

		for _, d := range engine.Bus().Descriptors() {
			if toolsCategory != "" && string(d.Category) != toolsCategory {
				continue
			}
			fmt.Printf("%-12s %-10s %-24s %s\n",
				d.Name, d.Category, strings.Join(d.RequiredBinaries, ","), d.Description)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Verify every registered adapter's binaries are present",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := orchestrator.New(cfg, nil, log)
		if err != nil {
			return &exitError{code: ExitConfigError, err: err}
		}

		missing := 0
		for tool, statuses := range engine.ValidateTools() {
			for _, s := range statuses {
				if s.Available {
					fmt.Printf("%s %-12s %-12s %s\n", color.GreenString("ok"), tool, s.Binary, s.ResolvedPath)
				} else {
					fmt.Printf("%s %-12s %-12s not found\n", color.RedString("missing"), tool, s.Binary)
					missing++
				}
			}
		}

		if missing > 0 {
			return &exitError{
				code: ExitConfigError,
				err:  fmt.Errorf("%d required binaries missing", missing),
			}
		}
		return nil
	},
}

func init() {
	listToolsCmd.Flags().StringVar(&toolsCategory, "category", "", "filter by category (recon, scanner, fuzzer, exploit, other)")
	rootCmd.AddCommand(listToolsCmd)
	rootCmd.AddCommand(validateCmd)
}
