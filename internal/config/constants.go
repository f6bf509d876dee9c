package config

// ContainerHome is the home directory of the agent user inside the
// container. Mount targets and configured env values tilde-expand against
// this path, never against the host home.
const ContainerHome = "/home/claude"

// DefaultBridgePort is the port the trigger bridge listens on when no
// configuration layer sets one.
const DefaultBridgePort = 19432

// Configuration file locations, relative to their owning directory.
const (
	// UserConfigName is looked up under the XDG config home.
	UserConfigName = "config.yml"

	// ProjectConfigDir is the per-project override directory. It holds the
	// project config file and, optionally, a Dockerfile build context.
	ProjectConfigDir = ".contenant"
)
