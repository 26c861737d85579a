package funcapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"funcapp-deploy/internal/azcli"
	"funcapp-deploy/pkg/rand"

	"github.com/rs/zerolog"
)

// Store persists deployment records. Get returns ErrNotFound for unknown IDs.
type Store interface {
	Create(ctx context.Context, d *Deployment) error
	Save(ctx context.Context, d *Deployment) error
	Get(ctx context.Context, id string) (*Deployment, error)
	List(ctx context.Context) ([]Deployment, error)
}

// AppFactory builds the App for a deployment request.
type AppFactory interface {
	New(method Method, name, resourceGroup string) (App, error)
}

type Manager struct {
	store    Store
	apps     AppFactory
	runner   azcli.Runner
	azBinary string
	lg       zerolog.Logger

	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewManager(store Store, apps AppFactory, runner azcli.Runner, azBinary string, lg zerolog.Logger) *Manager {
	if azBinary == "" {
		azBinary = DefaultAzBinary
	}
	bg, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    store,
		apps:     apps,
		runner:   runner,
		azBinary: azBinary,
		lg:       lg.With().Str("component", "deployment-manager").Logger(),
		bg:       bg,
		cancel:   cancel,
	}
}

// Deploy runs a deployment to completion and returns its final record. The
// returned error is the deployment failure, if any; the record reflects it.
func (m *Manager) Deploy(ctx context.Context, req Request) (*Deployment, error) {
	d, err := m.newRecord(ctx, req)
	if err != nil {
		return nil, err
	}
	err = m.run(ctx, d, req)
	return d, err
}

// StartDeployment records a deployment and runs it in the background. The
// returned record is a snapshot taken before the run starts.
func (m *Manager) StartDeployment(ctx context.Context, req Request) (*Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShutdown
	}

	d, err := m.newRecord(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := *d

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.run(m.bg, d, req); err != nil {
			m.lg.Error().Err(err).Str("deployment_id", d.ID).Msg("background deployment failed")
		}
	}()
	return &snapshot, nil
}

// Shutdown cancels background deployments and waits for them to record
// their outcome. Later StartDeployment calls fail with ErrShutdown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) ListDeployments(ctx context.Context) ([]Deployment, error) {
	return m.store.List(ctx)
}

func (m *Manager) newRecord(ctx context.Context, req Request) (*Deployment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	method, err := ParseMethod(string(req.Method))
	if err != nil {
		return nil, err
	}
	d := &Deployment{
		ID:            rand.ID16(),
		AppName:       req.Name,
		ResourceGroup: req.ResourceGroup,
		Method:        method,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("db create deployment record: %w", err)
	}
	return d, nil
}

func (m *Manager) run(ctx context.Context, d *Deployment, req Request) (err error) {
	lg := m.lg.With().Str("deployment_id", d.ID).Str("app", d.AppName).Logger()

	defer func() {
		now := time.Now().UTC()
		d.FinishedAt = &now
		if err != nil {
			d.Status = StatusFailed
			d.Error = err.Error()
			lg.Error().Err(err).Msg("deployment failed")
		} else {
			d.Status = StatusSucceeded
			lg.Info().Msg("deployment succeeded")
		}
		m.save(context.WithoutCancel(ctx), d, lg)
	}()

	if req.Location != "" {
		if err := m.ensureResourceGroup(ctx, d.ResourceGroup, req.Location); err != nil {
			return err
		}
	}

	app, err := m.apps.New(d.Method, d.AppName, d.ResourceGroup)
	if err != nil {
		return fmt.Errorf("prepare %s deployment: %w", d.Method, err)
	}
	defer func() {
		if cerr := app.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("cleanup: %w", cerr)
		}
	}()

	d.Status = StatusDeploying
	m.save(ctx, d, lg)
	if err := app.Deploy(ctx); err != nil {
		return fmt.Errorf("deploy %s: %w", d.AppName, err)
	}

	if !req.WaitForTrigger {
		return nil
	}
	d.Status = StatusWaiting
	m.save(ctx, d, lg)

	wctx := ctx
	if req.WaitTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, req.WaitTimeout)
		defer cancel()
	}
	if err := app.WaitForEventTrigger(wctx); err != nil {
		return fmt.Errorf("wait for event trigger: %w", err)
	}
	return nil
}

func (m *Manager) ensureResourceGroup(ctx context.Context, name, location string) error {
	m.lg.Info().Str("resource_group", name).Str("location", location).Msg("ensuring resource group")
	err := azcli.Discard(ctx, m.runner, m.azBinary, "group", "create", "--name", name, "--location", location)
	if err != nil {
		return fmt.Errorf("create resource group %s: %w", name, err)
	}
	return nil
}

func (m *Manager) save(ctx context.Context, d *Deployment, lg zerolog.Logger) {
	if err := m.store.Save(ctx, d); err != nil {
		lg.Error().Err(err).Str("status", d.Status).Msg("failed to save deployment record")
	}
}
