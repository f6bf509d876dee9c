package backend

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/docker/go-units"
)

// ErrSignaled is returned by Run when the container process was terminated
// by a signal and therefore has no exit code.
var ErrSignaled = errors.New("container terminated by signal")

// Runtime selects which container CLI the exec backend shells out to.
type Runtime string

const (
	RuntimeDocker Runtime = "docker"
	// RuntimeApple is Apple's `container` CLI.
	RuntimeApple Runtime = "apple"
)

// ParseRuntime validates a runtime name from a flag or config value.
func ParseRuntime(name string) (Runtime, error) {
	switch Runtime(name) {
	case RuntimeDocker, RuntimeApple:
		return Runtime(name), nil
	default:
		return "", fmt.Errorf("unknown runtime %q (supported: docker, apple)", name)
	}
}

func (r Runtime) binary() string {
	if r == RuntimeApple {
		return "container"
	}
	return "docker"
}

// Exec shells out to a container CLI. It is the default backend: the child
// process inherits the terminal, so interactive runs need no TTY plumbing
// on our side.
type Exec struct {
	runtime Runtime
	logger  *log.Logger
}

// NewExec returns an exec backend for the given runtime.
func NewExec(runtime Runtime, logger *log.Logger) *Exec {
	return &Exec{runtime: runtime, logger: logger}
}

func (e *Exec) Build(ctx context.Context, image, contextDir string, buildArgs map[string]string) error {
	e.logger.Info("building image", "tag", image, "context", contextDir)

	args := []string{"build", "-t", image}
	for _, key := range slices.Sorted(maps.Keys(buildArgs)) {
		args = append(args, "--build-arg", key+"="+buildArgs[key])
	}
	args = append(args, contextDir)

	cmd := exec.CommandContext(ctx, e.runtime.binary(), args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("building %s: %w", image, err)
	}
	return nil
}

func (e *Exec) Tag(ctx context.Context, source, target string) error {
	e.logger.Info("tagging image", "source", source, "target", target)

	cmd := exec.CommandContext(ctx, e.runtime.binary(), "tag", source, target)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tagging %s as %s: %w", source, target, err)
	}
	return nil
}

func (e *Exec) Run(ctx context.Context, opts RunOptions) (int, error) {
	args, err := runArgs(opts)
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, e.runtime.binary(), args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			return 0, ErrSignaled
		}
		return code, nil
	}
	return 0, fmt.Errorf("running container: %w", err)
}

// runArgs assembles the CLI arguments for a run. NET_ADMIN and NET_RAW are
// required for the entrypoint to configure nftables; host.docker.internal
// lets the container reach the trigger bridge on the host.
func runArgs(opts RunOptions) ([]string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}

	args := []string{
		"run", "-it", "--rm",
		"--cap-add=NET_ADMIN",
		"--cap-add=NET_RAW",
		"--add-host", "host.docker.internal:host-gateway",
		"-v", cwd + ":/workspace",
	}

	if opts.MemoryLimit != "" {
		if _, err := units.RAMInBytes(opts.MemoryLimit); err != nil {
			return nil, fmt.Errorf("invalid memory limit %q: %w", opts.MemoryLimit, err)
		}
		args = append(args, "--memory", opts.MemoryLimit)
	}

	for _, mount := range opts.Mounts {
		args = append(args, "-v", mount)
	}

	for _, key := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", key+"="+opts.Env[key])
	}

	args = append(args, "-w", "/workspace", opts.Image)
	args = append(args, opts.Args...)
	return args, nil
}
