package funcapp

import (
	"fmt"
	"time"

	"funcapp-deploy/internal/azcli"

	"github.com/rs/zerolog"
)

// Builder turns a method and an identity into a ready App.
type Builder struct {
	Runner         azcli.Runner
	Containers     ContainerRunner
	SourceDir      string
	AzureConfigDir string
	Image          string
	AzBinary       string
	PollInterval   time.Duration
	TriggerMarker  string
	Logger         zerolog.Logger
}

func (b *Builder) New(method Method, name, resourceGroup string) (App, error) {
	opts := []Option{
		WithLogger(b.Logger),
		WithPollInterval(b.PollInterval),
		WithTriggerMarker(b.TriggerMarker),
		WithAzBinary(b.AzBinary),
	}
	switch method {
	case MethodZip:
		app, err := NewZipApp(name, resourceGroup, b.SourceDir, b.Runner, opts...)
		if err != nil {
			return nil, err
		}
		return app, nil
	case MethodBundle:
		app, err := NewBundleApp(name, resourceGroup, b.Runner, b.Containers, BundleOptions{
			SourceDir:      b.SourceDir,
			AzureConfigDir: b.AzureConfigDir,
			Image:          b.Image,
		}, opts...)
		if err != nil {
			return nil, err
		}
		return app, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}
