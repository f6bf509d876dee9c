package cli

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
})

var rootCmd = &cobra.Command{
	Use:   "contenant [flags] [-- agent-args...]",
	Short: "Run Claude Code in an isolated container",
	Long: `Contenant runs Claude Code inside an isolated container. Configuration is
layered: built-in defaults, then the user config, then the project config,
with later layers taking precedence for conflicting settings.

Mounts, environment variables, and the network allowlist are projected from
those layers into the container; a host-side bridge server (started
separately with "contenant bridge") lets the agent invoke pre-approved host
commands.

Examples:
  contenant                          # Run in the current directory
  contenant -p ~/projects/myapp      # Run against another project
  contenant --runtime apple         # Use Apple's container CLI
  contenant -- --help                # Pass args through to Claude Code`,
	Args:         cobra.ArbitraryArgs,
	RunE:         runContainer,
	SilenceUsage: true,
}

// exitCode carries the container's exit status out of the command handler
// so the process can propagate it unchanged.
var exitCode int

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().StringP("project", "p", "", "project directory (default: current directory)")

	rootCmd.Flags().String("runtime", "docker", "container runtime: docker, apple")
	rootCmd.Flags().String("backend", "cli", "how to drive the runtime: cli (shell out), api (Docker Engine API)")

	viper.SetEnvPrefix("CONTENANT")
	_ = viper.BindPFlag("runtime", rootCmd.Flags().Lookup("runtime"))
	_ = viper.BindPFlag("backend", rootCmd.Flags().Lookup("backend"))
	_ = viper.BindEnv("runtime")
	_ = viper.BindEnv("backend")
}

// projectDir resolves the --project flag, defaulting to the working
// directory.
func projectDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("project")
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
