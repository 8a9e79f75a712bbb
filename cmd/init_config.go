package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initConfigOut string

const defaultConfigTemplate = `# NeoSec configuration
logger:
  level: info
  format: console

database:
  driver: sqlite3
  dsn: data/neosec.db

executor:
  max_concurrent: 5
  grace_period: 2s
  stdout_limit: 67108864
  stderr_limit: 67108864

scheduler:
  global_timeout: 1h

output:
  data_dir: data

# Exit with code 1 when any vulnerability at or above this severity is
# found. Empty disables the threshold.
severity_threshold: ""

tools:
  nmap:
    enabled: true
    binary_path: ""
    timeout: 30m
  httpx:
    enabled: true
    binary_path: ""
    timeout: 10m
  nuclei:
    enabled: true
    binary_path: ""
    timeout: 30m
  subfinder:
    enabled: true
    binary_path: ""
    timeout: 10m
`

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(initConfigOut); err == nil {
			return &exitError{
				code: ExitConfigError,
				err:  fmt.Errorf("%s already exists, refusing to overwrite", initConfigOut),
			}
		}
		if err := os.WriteFile(initConfigOut, []byte(defaultConfigTemplate), 0o644); err != nil {
			return &exitError{code: ExitConfigError, err: fmt.Errorf("failed to write config: %w", err)}
		}
		fmt.Printf("Wrote %s\n", initConfigOut)
		return nil
	},
}

func init() {
	initConfigCmd.Flags().StringVarP(&initConfigOut, "output", "o", ".neosec.yaml", "output path")
	rootCmd.AddCommand(initConfigCmd)
}
