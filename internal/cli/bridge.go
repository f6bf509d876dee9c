package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/contenant/contenant/internal/bridge"
	"github.com/contenant/contenant/internal/config"
	"github.com/contenant/contenant/internal/dirs"
)

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the host-side trigger bridge server",
	Long: `Run the bridge server that the containerized agent calls back into.

The bridge exposes POST /triggers/{name} on localhost; each configured
trigger maps a name to a host shell command. The container reaches the
bridge through the host gateway using the URL injected as
CONTENANT_BRIDGE_URL. The bridge is a long-lived process, independent of any
single container run.`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func runBridge(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	project, err := projectDir(cmd)
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}

	d, err := dirs.New(appPrefix)
	if err != nil {
		return err
	}

	stack, err := config.Load(d, project)
	if err != nil {
		return err
	}

	settings := stack.Bridge()
	return bridge.New(settings.Port, settings.Triggers, logger).ListenAndServe(ctx)
}
