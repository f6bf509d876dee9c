// Package launcher drives a single container run: it builds the image
// ladder (base, user, project), assembles the mount and environment sets
// from the configuration stack, resolves the network allowlist, and hands
// off to the container backend.
package launcher

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/contenant/contenant/internal/allowlist"
	"github.com/contenant/contenant/internal/backend"
	"github.com/contenant/contenant/internal/config"
	"github.com/contenant/contenant/internal/credentials"
	"github.com/contenant/contenant/internal/dirs"
)

//go:embed assets
var assets embed.FS

// assetNames are the embedded base-image build context files, written to
// the cache home before every run so the base build context always matches
// this binary.
var assetNames = []string{"Dockerfile", "claude.json", "entrypoint.sh"}

const (
	imageBase = "contenant:base"
	imageUser = "contenant:user"

	// allowlistPath is where the resolved CIDR file appears inside the
	// container; the entrypoint's firewall bootstrap reads it.
	allowlistPath = "/etc/contenant/allowed-ips"

	// bridgeURLEnv carries the trigger bridge callback URL into the
	// container.
	bridgeURLEnv = "CONTENANT_BRIDGE_URL"
)

// Launcher orchestrates one run invocation. It is single-use per call but
// holds no per-run state, so a single Launcher may serve repeated runs.
type Launcher struct {
	backend    backend.Backend
	stack      *config.Stack
	dirs       *dirs.BaseDirs
	resolver   *allowlist.Resolver
	logger     *log.Logger
	projectDir string

	// collectCredentials is swapped out in tests to avoid touching the
	// host keychain.
	collectCredentials func(*log.Logger) map[string]string
}

// New creates a launcher for the given project directory. The directory is
// canonicalized so the project image name is stable across symlinked paths.
func New(be backend.Backend, stack *config.Stack, d *dirs.BaseDirs, resolver *allowlist.Resolver, logger *log.Logger, projectDir string) (*Launcher, error) {
	canonical, err := filepath.EvalSymlinks(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory: %w", err)
	}
	canonical, err = filepath.Abs(canonical)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory: %w", err)
	}

	return &Launcher{
		backend:            be,
		stack:              stack,
		dirs:               d,
		resolver:           resolver,
		logger:             logger,
		projectDir:         canonical,
		collectCredentials: credentials.Collect,
	}, nil
}

// Run executes the full pipeline and returns the container's exit code. Any
// build or tag failure aborts before a container starts.
func (l *Launcher) Run(ctx context.Context, args []string) (int, error) {
	image, err := l.buildImages(ctx)
	if err != nil {
		return 0, err
	}

	mounts, cleanup, err := l.assembleMounts(ctx)
	if err != nil {
		return 0, err
	}
	// The allowlist artifact is bind-mounted into the container; it must
	// survive until the run finishes.
	defer cleanup()

	return l.backend.Run(ctx, backend.RunOptions{
		Image:       image,
		Mounts:      mounts,
		Env:         l.assembleEnv(),
		MemoryLimit: l.stack.MemoryLimit(),
		Args:        args,
	})
}

// buildImages builds the image ladder and returns the tag to run: base from
// the embedded context, user from an optional config-home Dockerfile (or a
// plain retag of base), and an optional per-project image.
func (l *Launcher) buildImages(ctx context.Context) (string, error) {
	if err := l.writeBuildContext(); err != nil {
		return "", err
	}

	var buildArgs map[string]string
	if version := l.stack.ClaudeVersion(); version != "" {
		buildArgs = map[string]string{"CLAUDE_VERSION": version}
	}

	// Image-build caching makes this a no-op when nothing changed.
	if err := l.backend.Build(ctx, imageBase, l.dirs.CacheHome, buildArgs); err != nil {
		return "", err
	}

	if userDockerfile, ok := l.dirs.FindConfigFile("Dockerfile"); ok {
		if err := l.backend.Build(ctx, imageUser, filepath.Dir(userDockerfile), nil); err != nil {
			return "", err
		}
	} else {
		if err := l.backend.Tag(ctx, imageBase, imageUser); err != nil {
			return "", err
		}
	}

	projectDockerfile := filepath.Join(l.projectDir, config.ProjectConfigDir, "Dockerfile")
	if _, err := os.Stat(projectDockerfile); err == nil {
		image := "contenant:" + l.projectID()
		if err := l.backend.Build(ctx, image, filepath.Dir(projectDockerfile), nil); err != nil {
			return "", err
		}
		return image, nil
	}

	return imageUser, nil
}

// projectID names the per-project image: a short hash of the canonical path
// disambiguates same-named projects, and the directory name keeps the tag
// readable.
func (l *Launcher) projectID() string {
	hash := sha256.Sum256([]byte(l.projectDir))
	return fmt.Sprintf("%x-%s", hash[:4], filepath.Base(l.projectDir))
}

func (l *Launcher) writeBuildContext() error {
	for _, name := range assetNames {
		data, err := assets.ReadFile("assets/" + name)
		if err != nil {
			return fmt.Errorf("reading embedded asset %s: %w", name, err)
		}
		path, err := l.dirs.PlaceCacheFile(name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing build context file %s: %w", path, err)
		}
	}
	return nil
}

// assembleMounts produces the ordered volume specs: fixed defaults first,
// then configured mounts, then the allowlist artifact. Later -v flags win
// for duplicate targets at the runtime level, so user and project mounts
// can shadow subpaths of the defaults.
func (l *Launcher) assembleMounts(ctx context.Context) ([]string, func(), error) {
	// Persist agent state (auth, settings, history) across sessions.
	stateDir, err := l.dirs.PlaceStateFile("claude")
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating state directory: %w", err)
	}
	mounts := []string{stateDir + ":" + config.ContainerHome + "/.claude"}

	skillsDir := filepath.Join(l.dirs.ConfigHome, "skills")
	if _, err := os.Stat(skillsDir); err == nil {
		mounts = append(mounts, skillsDir+":"+config.ContainerHome+"/.claude/skills")
	}

	// Persist SSH known_hosts so host keys are only verified once.
	knownHosts, err := l.dirs.PlaceStateFile("ssh/known_hosts")
	if err != nil {
		return nil, nil, err
	}
	if _, err := os.Stat(knownHosts); os.IsNotExist(err) {
		if err := os.WriteFile(knownHosts, nil, 0o644); err != nil {
			return nil, nil, fmt.Errorf("creating known_hosts: %w", err)
		}
	}
	mounts = append(mounts, knownHosts+":"+config.ContainerHome+"/.ssh/known_hosts")

	for _, lm := range l.stack.Mounts() {
		mounts = append(mounts, lm.Mount.Resolve(lm.ConfigDir))
	}

	allowFile, cleanup, err := l.resolver.WriteFile(ctx, l.stack.AllowedDomains())
	if err != nil {
		return nil, nil, err
	}
	mounts = append(mounts, allowFile+":"+allowlistPath+":ro")

	return mounts, cleanup, nil
}

// assembleEnv merges the stack env (values tilde-expanded against the
// container home), host credentials, and the bridge callback URL.
func (l *Launcher) assembleEnv() map[string]string {
	env := make(map[string]string)
	for key, value := range l.stack.Env() {
		env[key] = config.ExpandTilde(value, config.ContainerHome)
	}

	for key, value := range l.collectCredentials(l.logger) {
		env[key] = value
	}

	bridge := l.stack.Bridge()
	env[bridgeURLEnv] = fmt.Sprintf("http://host.docker.internal:%d", bridge.Port)

	return env
}
