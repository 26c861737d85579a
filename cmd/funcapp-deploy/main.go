package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"funcapp-deploy/internal/adapters/docker"
	"funcapp-deploy/internal/adapters/kubernetes"
	"funcapp-deploy/internal/adapters/memory"
	"funcapp-deploy/internal/adapters/postgres"
	"funcapp-deploy/internal/azcli"
	"funcapp-deploy/internal/config"
	"funcapp-deploy/internal/core/funcapp"
	api "funcapp-deploy/internal/delivery/http"

	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run())
}

// run holds every deferred cleanup so they execute before the process exits.
func run() int {
	cfg := config.MustLoad()

	log := zerolog.New(os.Stdout).Level(cfg.LogLevel).With().Timestamp().
		Str("svc", "funcapp-deploy").Logger()
	log.Info().
		Str("mode", string(cfg.Mode)).
		Str("deployment_env", string(cfg.DeploymentEnv)).
		Msg("bootstrapping")

	method, needContainers, err := containerRuntimeNeeded(cfg)
	if err != nil {
		log.Error().Err(err).Msg("invalid DEPLOY_METHOD")
		return 2
	}

	var store funcapp.Store
	if cfg.DatabaseDSN != "" {
		pg, err := postgres.New(cfg.DatabaseDSN, log)
		if err != nil {
			log.Error().Err(err).Msg("database connect")
			return 1
		}
		defer pg.Close()
		store = pg
	} else {
		store = memory.New()
	}

	runner := azcli.NewExecRunner(log)
	builder := &funcapp.Builder{
		Runner:         runner,
		SourceDir:      cfg.SourceDir,
		AzureConfigDir: cfg.AzureConfigDir,
		Image:          cfg.CoreToolsImage,
		AzBinary:       cfg.AzBinary,
		PollInterval:   cfg.PollInterval,
		TriggerMarker:  cfg.TriggerMarker,
		Logger:         log,
	}

	if needContainers {
		switch cfg.DeploymentEnv {
		case config.EnvKubernetes:
			kcli, err := kubernetes.New(cfg, log)
			if err != nil {
				log.Error().Err(err).Msg("kubernetes client init")
				return 1
			}
			builder.Containers = kcli
		default:
			dcli, err := docker.New(cfg, log)
			if err != nil {
				log.Error().Err(err).Msg("docker client init")
				return 1
			}
			defer dcli.Close()
			builder.Containers = dcli
		}
	}

	mgr := funcapp.NewManager(store, builder, runner, cfg.AzBinary, log)

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Mode == config.ModeServe {
		serve(ctx, cfg, mgr, log)
		return 0
	}

	d, err := mgr.Deploy(ctx, funcapp.Request{
		Name:           cfg.AppName,
		ResourceGroup:  cfg.ResourceGroup,
		Method:         method,
		Location:       cfg.Location,
		WaitForTrigger: cfg.WaitForTrigger,
		WaitTimeout:    cfg.WaitTimeout,
	})
	if err != nil {
		log.Error().Err(err).Msg("deployment failed")
		return 1
	}
	log.Info().Str("deployment_id", d.ID).Str("app", d.AppName).Msg("deployment complete")
	return 0
}

// containerRuntimeNeeded reports whether a container runtime must be
// connected. Serve mode accepts every method; deploy mode needs one only for
// core-tools publishing.
func containerRuntimeNeeded(cfg config.Config) (funcapp.Method, bool, error) {
	if cfg.Mode == config.ModeServe {
		return "", true, nil
	}
	method, err := funcapp.ParseMethod(cfg.DeployMethod)
	if err != nil {
		return "", false, err
	}
	return method, method == funcapp.MethodBundle, nil
}

func serve(ctx context.Context, cfg config.Config, mgr *funcapp.Manager, log zerolog.Logger) {
	handler := api.NewHandler(mgr, log)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}

	go func() {
		log.Info().Str("listen", cfg.ListenAddr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("shutting down server...")
	_ = srv.Shutdown(context.Background())

	mgr.Shutdown()
	log.Info().Msg("shutdown complete")
}
