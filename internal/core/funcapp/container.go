package funcapp

import "context"

// ContainerRunner runs a container to completion. Implementations must
// return an error when the container exits with a non-zero status.
type ContainerRunner interface {
	RunContainer(ctx context.Context, spec ContainerSpec) error
}

// ContainerSpec describes a one-off container run.
type ContainerSpec struct {
	Name       string
	Image      string
	Cmd        []string
	Binds      []string // host:container
	WorkingDir string
	AutoRemove bool
}
