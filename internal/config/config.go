package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
)

// ModeType selects how the binary runs.
type ModeType string

const (
	ModeDeploy ModeType = "deploy" // one deployment, then exit
	ModeServe  ModeType = "serve"  // HTTP API accepting deployments
)

// DeploymentEnvType selects the runtime that runs the core-tools container.
type DeploymentEnvType string

const (
	EnvDocker     DeploymentEnvType = "docker"
	EnvKubernetes DeploymentEnvType = "kubernetes"
)

// Config holds all the configuration for the application.
type Config struct {
	Mode        ModeType
	ListenAddr  string
	DatabaseDSN string // empty keeps deployment records in memory
	LogLevel    zerolog.Level

	AppName        string
	ResourceGroup  string
	Location       string // when set, the resource group is created before deploying
	DeployMethod   string
	SourceDir      string // directory holding host.json, requirements.txt, function_app.py
	AzureConfigDir string
	AzBinary       string

	DeploymentEnv  DeploymentEnvType
	CoreToolsImage string
	RegistryURL    string
	RegistryUser   string
	RegistryPass   string
	K8sNamespace   string
	Kubeconfig     string // used only when not running inside a cluster

	WaitForTrigger bool
	TriggerMarker  string
	PollInterval   time.Duration
	WaitTimeout    time.Duration
}

// MustLoad loads configuration from environment variables and panics on
// malformed values.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var mode ModeType
	switch strings.ToLower(getenv("MODE", "deploy")) {
	case "serve":
		mode = ModeServe
	default:
		mode = ModeDeploy
	}

	var deploymentEnv DeploymentEnvType
	switch strings.ToLower(getenv("DEPLOYMENT_ENV", "docker")) {
	case "kubernetes":
		deploymentEnv = EnvKubernetes
	default:
		deploymentEnv = EnvDocker
	}

	level, err := zerolog.ParseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	poll, err := time.ParseDuration(getenv("POLL_INTERVAL", "5s"))
	if err != nil {
		return Config{}, fmt.Errorf("POLL_INTERVAL: %w", err)
	}
	timeout, err := time.ParseDuration(getenv("WAIT_TIMEOUT", "0s"))
	if err != nil {
		return Config{}, fmt.Errorf("WAIT_TIMEOUT: %w", err)
	}
	wait, err := strconv.ParseBool(getenv("WAIT_FOR_TRIGGER", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("WAIT_FOR_TRIGGER: %w", err)
	}

	azureDir, err := homeFallback("AZURE_CONFIG_DIR", ".azure")
	if err != nil {
		return Config{}, err
	}
	kubeconfig, err := homeFallback("KUBECONFIG", filepath.Join(".kube", "config"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		Mode:           mode,
		ListenAddr:     getenv("LISTEN_ADDR", ":8080"),
		DatabaseDSN:    getenv("DATABASE_DSN", ""),
		LogLevel:       level,
		AppName:        getenv("FUNCAPP_NAME", ""),
		ResourceGroup:  getenv("RESOURCE_GROUP", ""),
		Location:       getenv("LOCATION", ""),
		DeployMethod:   getenv("DEPLOY_METHOD", "zip"),
		SourceDir:      getenv("SOURCE_DIR", "."),
		AzureConfigDir: azureDir,
		AzBinary:       getenv("AZ_BINARY", "az"),
		DeploymentEnv:  deploymentEnv,
		CoreToolsImage: getenv("CORE_TOOLS_IMAGE", "mcr.microsoft.com/azure-functions/python:4-python3.11-core-tools"),
		RegistryURL:    getenv("REGISTRY_URL", ""),
		RegistryUser:   getenv("REGISTRY_USER", ""),
		RegistryPass:   getenv("REGISTRY_PASS", ""),
		K8sNamespace:   getenv("K8S_NAMESPACE", "funcapp-deploy"),
		Kubeconfig:     kubeconfig,
		WaitForTrigger: wait,
		TriggerMarker:  getenv("TRIGGER_MARKER", "eventGridTrigger"),
		PollInterval:   poll,
		WaitTimeout:    timeout,
	}, nil
}

// homeFallback returns the value of key, or rel joined to the home directory.
func homeFallback(key, rel string) (string, error) {
	if value, ok := os.LookupEnv(key); ok {
		return value, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("locate home directory for %s: %w", key, err)
	}
	return filepath.Join(home, rel), nil
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
