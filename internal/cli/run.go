package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/contenant/contenant/internal/allowlist"
	"github.com/contenant/contenant/internal/backend"
	"github.com/contenant/contenant/internal/config"
	"github.com/contenant/contenant/internal/dirs"
	"github.com/contenant/contenant/internal/launcher"
)

const appPrefix = "contenant"

func runContainer(cmd *cobra.Command, args []string) error {
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

	be, cleanup, err := selectBackend(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	l, err := launcher.New(be, stack, d, allowlist.New(logger), logger, project)
	if err != nil {
		return err
	}

	code, err := l.Run(ctx, args)
	if err != nil {
		return err
	}

	exitCode = code
	return nil
}

func selectBackend(ctx context.Context) (backend.Backend, func(), error) {
	switch name := viper.GetString("backend"); name {
	case "", "cli":
		rt, err := backend.ParseRuntime(viper.GetString("runtime"))
		if err != nil {
			return nil, nil, err
		}
		return backend.NewExec(rt, logger), func() {}, nil
	case "api":
		api, err := backend.NewAPI(ctx, logger)
		if err != nil {
			return nil, nil, err
		}
		return api, func() { _ = api.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q (supported: cli, api)", name)
	}
}
