package backend

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	"github.com/moby/term"
)

// API drives the Docker Engine API directly instead of shelling out to the
// docker CLI. Useful where the CLI is unavailable (remote daemons, CI).
type API struct {
	client *client.Client
	logger *log.Logger
}

// NewAPI creates an Engine API backend and verifies connectivity.
func NewAPI(ctx context.Context, logger *log.Logger) (*API, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connecting to Docker: %w", err)
	}

	return &API{client: cli, logger: logger}, nil
}

// Close releases the underlying Docker client.
func (a *API) Close() error {
	return a.client.Close()
}

func (a *API) Build(ctx context.Context, image, contextDir string, buildArgs map[string]string) error {
	a.logger.Info("building image", "tag", image, "context", contextDir)

	buildCtx, err := tarContext(contextDir)
	if err != nil {
		return fmt.Errorf("creating build context: %w", err)
	}

	args := make(map[string]*string, len(buildArgs))
	for k, v := range buildArgs {
		args[k] = &v
	}

	resp, err := a.client.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Dockerfile: "Dockerfile",
		Tags:       []string{image},
		Remove:     true,
		BuildArgs:  args,
	})
	if err != nil {
		return fmt.Errorf("building %s: %w", image, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		return fmt.Errorf("reading build output: %w", err)
	}
	return nil
}

func (a *API) Tag(ctx context.Context, source, target string) error {
	a.logger.Info("tagging image", "source", source, "target", target)

	if err := a.client.ImageTag(ctx, source, target); err != nil {
		return fmt.Errorf("tagging %s as %s: %w", source, target, err)
	}
	return nil
}

func (a *API) Run(ctx context.Context, opts RunOptions) (int, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return 0, fmt.Errorf("resolving working directory: %w", err)
	}

	var memory int64
	if opts.MemoryLimit != "" {
		memory, err = units.RAMInBytes(opts.MemoryLimit)
		if err != nil {
			return 0, fmt.Errorf("invalid memory limit %q: %w", opts.MemoryLimit, err)
		}
	}

	var env []string
	for _, key := range slices.Sorted(maps.Keys(opts.Env)) {
		env = append(env, key+"="+opts.Env[key])
	}

	isTTY := term.IsTerminal(os.Stdin.Fd())

	containerConfig := &containertypes.Config{
		Image:        opts.Image,
		Cmd:          strslice.StrSlice(opts.Args),
		Env:          env,
		WorkingDir:   "/workspace",
		Tty:          isTTY,
		OpenStdin:    true,
		AttachStdin:  true,
		AttachStdout: isTTY,
		AttachStderr: isTTY,
	}

	hostConfig := &containertypes.HostConfig{
		Binds:      append([]string{cwd + ":/workspace"}, opts.Mounts...),
		CapAdd:     strslice.StrSlice{"NET_ADMIN", "NET_RAW"},
		ExtraHosts: []string{"host.docker.internal:host-gateway"},
		Resources:  containertypes.Resources{Memory: memory},
	}

	resp, err := a.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return 0, fmt.Errorf("creating container: %w", err)
	}
	containerID := resp.ID

	defer func() {
		_ = a.client.ContainerRemove(context.Background(), containerID, containertypes.RemoveOptions{
			Force: true,
		})
	}()

	attachResp, err := a.client.ContainerAttach(ctx, containerID, containertypes.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: isTTY,
		Stderr: isTTY,
	})
	if err != nil {
		return 0, fmt.Errorf("attaching to container: %w", err)
	}
	defer attachResp.Close()

	outputDone := make(chan error, 1)
	if isTTY {
		go func() {
			_, err := io.Copy(os.Stdout, attachResp.Reader)
			outputDone <- err
		}()
	}

	if err := a.client.ContainerStart(ctx, containerID, containertypes.StartOptions{}); err != nil {
		return 0, fmt.Errorf("starting container: %w", err)
	}

	if !isTTY {
		go func() {
			logs, err := a.client.ContainerLogs(ctx, containerID, containertypes.LogsOptions{
				ShowStdout: true,
				ShowStderr: true,
				Follow:     true,
			})
			if err != nil {
				outputDone <- err
				return
			}
			defer logs.Close()
			_, err = stdcopy.StdCopy(os.Stdout, os.Stderr, logs)
			outputDone <- err
		}()
	}

	if isTTY {
		a.resizeTTY(ctx, containerID)

		oldState, err := term.SetRawTerminal(os.Stdin.Fd())
		if err != nil {
			return 0, fmt.Errorf("setting raw terminal: %w", err)
		}
		defer term.RestoreTerminal(os.Stdin.Fd(), oldState)

		go a.monitorTTYSize(ctx, containerID)
	}

	go func() {
		_, _ = io.Copy(attachResp.Conn, os.Stdin)
		attachResp.CloseWrite()
	}()

	statusCh, errCh := a.client.ContainerWait(ctx, containerID, containertypes.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, fmt.Errorf("waiting for container: %w", err)
	case status := <-statusCh:
		<-outputDone
		return int(status.StatusCode), nil
	case <-ctx.Done():
		stopCtx := context.Background()
		timeout := 5
		_ = a.client.ContainerStop(stopCtx, containerID, containertypes.StopOptions{Timeout: &timeout})
		return 0, ctx.Err()
	}
}

func (a *API) resizeTTY(ctx context.Context, containerID string) {
	winsize, err := term.GetWinsize(os.Stdout.Fd())
	if err != nil {
		return
	}
	_ = a.client.ContainerResize(ctx, containerID, containertypes.ResizeOptions{
		Height: uint(winsize.Height),
		Width:  uint(winsize.Width),
	})
}

func (a *API) monitorTTYSize(ctx context.Context, containerID string) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			a.resizeTTY(ctx, containerID)
		case <-ctx.Done():
			return
		}
	}
}

// tarContext archives a build context directory, skipping hidden files
// other than .dockerignore.
func tarContext(contextDir string) (io.Reader, error) {
	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)

	err := filepath.Walk(contextDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(contextDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		base := filepath.Base(path)
		if base[0] == '.' && base != ".dockerignore" {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = relPath

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.IsDir() {
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if _, err := tw.Write(content); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}
