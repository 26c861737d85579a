package funcapp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"funcapp-deploy/internal/azcli"
	"funcapp-deploy/pkg/rand"
)

const (
	DefaultCoreToolsImage = "mcr.microsoft.com/azure-functions/python:4-python3.11-core-tools"

	bundleArtifact  = "function_app.zip"
	containerAppDir = "/function_app"
	containerAzure  = "/root/.azure"
)

// BundleOptions locates what the publish container mounts.
type BundleOptions struct {
	SourceDir      string // mounted at /function_app
	AzureConfigDir string // mounted at /root/.azure
	Image          string
}

// BundleApp publishes the source directory with Azure Functions Core Tools
// running in a container. It creates no artifact of its own.
type BundleApp struct {
	*Base
	containers    ContainerRunner
	bopts         BundleOptions
	containerName string
}

func NewBundleApp(name, resourceGroup string, runner azcli.Runner, containers ContainerRunner, bopts BundleOptions, opts ...Option) (*BundleApp, error) {
	if containers == nil {
		return nil, errors.New("bundle deploy needs a container runner")
	}
	if bopts.AzureConfigDir == "" {
		return nil, errors.New("bundle deploy needs an azure config directory")
	}
	if bopts.Image == "" {
		bopts.Image = DefaultCoreToolsImage
	}
	src, err := filepath.Abs(bopts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source dir: %w", err)
	}
	bopts.SourceDir = src

	return &BundleApp{
		// function_app.zip is only recorded, never produced, so it is not owned.
		Base:       NewBase(name, resourceGroup, bundleArtifact, false, runner, opts...),
		containers: containers,
		bopts:      bopts,
		// Unique per app instance so concurrent publishes of one app never
		// collide on the runtime's container name.
		containerName: "funcapp-publish-" + name + "-" + rand.ID16()[:8],
	}, nil
}

func (a *BundleApp) containerSpec() ContainerSpec {
	return ContainerSpec{
		Name:  a.containerName,
		Image: a.bopts.Image,
		Cmd: []string{
			"bash", "-c",
			fmt.Sprintf("func azure functionapp publish %s --python --build remote", a.name),
		},
		Binds: []string{
			a.bopts.AzureConfigDir + ":" + containerAzure,
			a.bopts.SourceDir + ":" + containerAppDir,
		},
		WorkingDir: containerAppDir,
		AutoRemove: true,
	}
}

func (a *BundleApp) Deploy(ctx context.Context) error {
	spec := a.containerSpec()
	a.lg.Info().Str("image", spec.Image).Msg("publishing function app with core tools")
	if err := a.containers.RunContainer(ctx, spec); err != nil {
		return fmt.Errorf("core tools publish: %w", err)
	}
	a.lg.Info().Msg("function app code published")
	return nil
}
