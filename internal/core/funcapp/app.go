package funcapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"funcapp-deploy/internal/azcli"

	"github.com/rs/zerolog"
)

var (
	ErrNotImplemented = errors.New("deploy is not implemented for this function app")
	ErrNotFound       = errors.New("deployment not found")
	ErrInvalidRequest = errors.New("invalid deployment request")
	ErrUnknownMethod  = errors.New("unknown deployment method")
	ErrShutdown       = errors.New("deployment manager is shut down")
)

const (
	DefaultPollInterval  = 5 * time.Second
	DefaultTriggerMarker = "eventGridTrigger"
	DefaultAzBinary      = "az"
)

// App is a function app that can be deployed and watched until its Event
// Grid trigger is registered. Close releases any artifact the app created.
type App interface {
	Name() string
	ResourceGroup() string
	ArtifactPath() string
	Deploy(ctx context.Context) error
	WaitForEventTrigger(ctx context.Context) error
	Close() error
}

type options struct {
	lg            zerolog.Logger
	pollInterval  time.Duration
	triggerMarker string
	azBinary      string
}

type Option func(*options)

func WithLogger(lg zerolog.Logger) Option {
	return func(o *options) { o.lg = lg }
}

func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

func WithTriggerMarker(marker string) Option {
	return func(o *options) {
		if marker != "" {
			o.triggerMarker = marker
		}
	}
}

func WithAzBinary(bin string) Option {
	return func(o *options) {
		if bin != "" {
			o.azBinary = bin
		}
	}
}

// Base carries identity and artifact ownership shared by every variant.
// It does not know how to deploy; variants embed it and provide Deploy.
type Base struct {
	name          string
	resourceGroup string
	artifactPath  string
	owned         bool

	runner azcli.Runner
	opts   options
	lg     zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewBase returns a Base. When owned is true, Close removes artifactPath.
func NewBase(name, resourceGroup, artifactPath string, owned bool, runner azcli.Runner, opts ...Option) *Base {
	o := options{
		lg:            zerolog.Nop(),
		pollInterval:  DefaultPollInterval,
		triggerMarker: DefaultTriggerMarker,
		azBinary:      DefaultAzBinary,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Base{
		name:          name,
		resourceGroup: resourceGroup,
		artifactPath:  artifactPath,
		owned:         owned,
		runner:        runner,
		opts:          o,
		lg: o.lg.With().
			Str("component", "funcapp").
			Str("app", name).
			Str("resource_group", resourceGroup).
			Logger(),
	}
}

func (b *Base) Name() string          { return b.name }
func (b *Base) ResourceGroup() string { return b.resourceGroup }
func (b *Base) ArtifactPath() string  { return b.artifactPath }

// Deploy always fails; variants override it.
func (b *Base) Deploy(context.Context) error {
	return ErrNotImplemented
}

// Close removes the artifact if this app created it and it is still on disk.
// Only the first call does any work.
func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	if !b.owned || b.artifactPath == "" {
		return nil
	}
	if _, err := os.Stat(b.artifactPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.Remove(b.artifactPath); err != nil {
		return fmt.Errorf("remove artifact %s: %w", b.artifactPath, err)
	}
	b.lg.Debug().Str("artifact", b.artifactPath).Msg("artifact removed")
	return nil
}

func (b *Base) az(args ...string) []string {
	return append([]string{b.opts.azBinary}, args...)
}
