package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AZURE_CONFIG_DIR", "/tmp/azure")
	t.Setenv("KUBECONFIG", "/tmp/kubeconfig")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeDeploy, cfg.Mode)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "zip", cfg.DeployMethod)
	assert.Equal(t, ".", cfg.SourceDir)
	assert.Equal(t, "/tmp/azure", cfg.AzureConfigDir)
	assert.Equal(t, "az", cfg.AzBinary)
	assert.Equal(t, "eventGridTrigger", cfg.TriggerMarker)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Zero(t, cfg.WaitTimeout)
	assert.True(t, cfg.WaitForTrigger)
	assert.Equal(t, EnvDocker, cfg.DeploymentEnv)
	assert.Equal(t, "funcapp-deploy", cfg.K8sNamespace)
	assert.Equal(t, "/tmp/kubeconfig", cfg.Kubeconfig)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AZURE_CONFIG_DIR", "/tmp/azure")
	t.Setenv("MODE", "Serve")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("FUNCAPP_NAME", "app")
	t.Setenv("RESOURCE_GROUP", "rg")
	t.Setenv("DEPLOY_METHOD", "bundle")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("WAIT_TIMEOUT", "10m")
	t.Setenv("WAIT_FOR_TRIGGER", "false")
	t.Setenv("DEPLOYMENT_ENV", "Kubernetes")
	t.Setenv("K8S_NAMESPACE", "deploys")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeServe, cfg.Mode)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "app", cfg.AppName)
	assert.Equal(t, "rg", cfg.ResourceGroup)
	assert.Equal(t, "bundle", cfg.DeployMethod)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.WaitTimeout)
	assert.False(t, cfg.WaitForTrigger)
	assert.Equal(t, EnvKubernetes, cfg.DeploymentEnv)
	assert.Equal(t, "deploys", cfg.K8sNamespace)
}

func TestLoadKubeconfigFromHome(t *testing.T) {
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AZURE_CONFIG_DIR", "/tmp/azure")
	t.Setenv("KUBECONFIG", "")
	require.NoError(t, os.Unsetenv("KUBECONFIG"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".kube", "config"), cfg.Kubeconfig)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for _, key := range []string{"POLL_INTERVAL", "WAIT_TIMEOUT", "WAIT_FOR_TRIGGER", "LOG_LEVEL"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv("AZURE_CONFIG_DIR", "/tmp/azure")
			t.Setenv(key, "bogus")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}
