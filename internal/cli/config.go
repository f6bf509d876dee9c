package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/contenant/contenant/internal/config"
	"github.com/contenant/contenant/internal/dirs"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the layered configuration",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the merged effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := loadStack(cmd)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(stack.Merged())
		if err != nil {
			return fmt.Errorf("rendering config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file locations and which layers are present",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := projectDir(cmd)
		if err != nil {
			return err
		}

		d, err := dirs.New(appPrefix)
		if err != nil {
			return err
		}

		paths := map[string]string{
			"user":    filepath.Join(d.ConfigHome, config.UserConfigName),
			"project": filepath.Join(project, config.ProjectConfigDir, config.UserConfigName),
		}
		for _, source := range []string{"user", "project"} {
			status := "absent"
			if _, err := os.Stat(paths[source]); err == nil {
				status = "present"
			}
			fmt.Printf("%-8s %s (%s)\n", source, paths[source], status)
		}
		return nil
	},
}

func loadStack(cmd *cobra.Command) (*config.Stack, error) {
	project, err := projectDir(cmd)
	if err != nil {
		return nil, err
	}
	d, err := dirs.New(appPrefix)
	if err != nil {
		return nil, err
	}
	return config.Load(d, project)
}
