// Package backend abstracts the container runtime behind build, tag, and
// run operations so the orchestration pipeline can be exercised without
// spawning real containers.
package backend

import "context"

// RunOptions configures a single container run.
type RunOptions struct {
	// Image is the tag to run.
	Image string
	// Mounts are resolved volume specs ("source:target[:ro]"), in order.
	// Later entries shadow earlier ones for duplicate targets.
	Mounts []string
	// Env is injected into the container.
	Env map[string]string
	// MemoryLimit is a human-readable size such as "4g"; empty means
	// unlimited.
	MemoryLimit string
	// Args are passed through to the container entrypoint.
	Args []string
}

// Backend is the container runtime collaborator. Implementations must
// propagate the container's exit code unchanged from Run and report a
// signal-terminated container as ErrSignaled rather than fabricating a code.
type Backend interface {
	Build(ctx context.Context, image, contextDir string, buildArgs map[string]string) error
	Tag(ctx context.Context, source, target string) error
	Run(ctx context.Context, opts RunOptions) (int, error)
}
