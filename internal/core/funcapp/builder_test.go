package funcapp

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderNew(t *testing.T) {
	b := &Builder{
		Runner:         newFakeRunner(),
		Containers:     &fakeContainers{},
		SourceDir:      writeProject(t),
		AzureConfigDir: "/azure",
		PollInterval:   time.Second,
		TriggerMarker:  "blobTrigger",
		Logger:         zerolog.Nop(),
	}

	app, err := b.New(MethodZip, "app", "rg")
	require.NoError(t, err)
	zipApp, ok := app.(*ZipApp)
	require.True(t, ok)
	assert.Equal(t, time.Second, zipApp.opts.pollInterval)
	assert.Equal(t, "blobTrigger", zipApp.opts.triggerMarker)
	assert.Equal(t, DefaultAzBinary, zipApp.opts.azBinary)
	require.NoError(t, app.Close())

	app, err = b.New(MethodBundle, "app", "rg")
	require.NoError(t, err)
	_, ok = app.(*BundleApp)
	assert.True(t, ok)

	_, err = b.New(Method("ftp"), "app", "rg")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestBuilderBundleWithoutDocker(t *testing.T) {
	b := &Builder{Runner: newFakeRunner(), AzureConfigDir: "/azure"}
	app, err := b.New(MethodBundle, "app", "rg")
	assert.Error(t, err)
	assert.Nil(t, app)
}
