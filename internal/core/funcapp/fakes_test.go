package funcapp

import (
	"context"
	"sync"

	"funcapp-deploy/internal/azcli"
)

type response struct {
	out string
	err error
}

// fakeRunner replays scripted responses in order, repeating the last one
// once the script runs out.
type fakeRunner struct {
	mu        sync.Mutex
	responses []response
	calls     [][]string
}

func newFakeRunner(responses ...response) *fakeRunner {
	return &fakeRunner{responses: responses}
}

func (f *fakeRunner) Output(_ context.Context, argv ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), argv...))
	if len(f.responses) == 0 {
		return nil, nil
	}
	i := len(f.calls) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	r := f.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.out), nil
}

func (f *fakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

func commandFailed(argv ...string) error {
	return &azcli.CommandError{Args: argv, ExitCode: 1, Stderr: "ResourceNotFound"}
}

type fakeContainers struct {
	mu    sync.Mutex
	specs []ContainerSpec
	err   error
}

func (f *fakeContainers) RunContainer(_ context.Context, spec ContainerSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	return f.err
}

type fakeStore struct {
	mu      sync.Mutex
	byID    map[string]Deployment
	history []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[string]Deployment)}
}

func (s *fakeStore) Create(_ context.Context, d *Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[d.ID] = *d
	s.history = append(s.history, d.Status)
	return nil
}

func (s *fakeStore) Save(ctx context.Context, d *Deployment) error {
	return s.Create(ctx, d)
}

func (s *fakeStore) Get(_ context.Context, id string) (*Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *fakeStore) List(_ context.Context) ([]Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Deployment, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, d)
	}
	return out, nil
}

func (s *fakeStore) Statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// fakeApp lets manager tests observe the lifecycle calls.
type fakeApp struct {
	*Base
	deployErr error
	waitErr   error
	closeErr  error

	mu       sync.Mutex
	deployed int
	waited   int
	closed   int
}

func (a *fakeApp) Deploy(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deployed++
	return a.deployErr
}

func (a *fakeApp) WaitForEventTrigger(ctx context.Context) error {
	a.mu.Lock()
	a.waited++
	err := a.waitErr
	a.mu.Unlock()
	if err == errBlock {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (a *fakeApp) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed++
	return a.closeErr
}

type fakeFactory struct {
	app *fakeApp
	err error
}

func (f *fakeFactory) New(_ Method, name, resourceGroup string) (App, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.app, nil
}

type sentinel string

func (s sentinel) Error() string { return string(s) }

// errBlock makes fakeApp.WaitForEventTrigger block until its context ends.
const errBlock = sentinel("block")
