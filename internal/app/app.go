// Package app composes the module core from configuration: storage, the
// event bus, registries, the sandbox factory and the optional relay.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/lythra/lythra/internal/atoms"
	"github.com/lythra/lythra/internal/bus"
	"github.com/lythra/lythra/internal/config"
	"github.com/lythra/lythra/internal/dashboard"
	"github.com/lythra/lythra/internal/manifest"
	"github.com/lythra/lythra/internal/modulectx"
	"github.com/lythra/lythra/internal/modules"
	"github.com/lythra/lythra/internal/platform"
	"github.com/lythra/lythra/internal/registry"
	"github.com/lythra/lythra/internal/relay"
	"github.com/lythra/lythra/internal/sandbox"
	"github.com/lythra/lythra/internal/storage"
)

// flushTimeout bounds how long Close waits for queued relay events.
const flushTimeout = 5 * time.Second

// Options overrides platform collaborators. Zero fields are built from the
// configuration.
type Options struct {
	HTTP      platform.HTTPDoer
	Audio     platform.AudioDevice
	Notifier  platform.Notifier
	Publisher relay.Publisher
}

// App is the running module core.
type App struct {
	Config   *config.Config
	DB       *storage.DB
	Events   *bus.EventBus
	Atoms    *atoms.Registry
	Registry *registry.Registry
	Factory  *sandbox.Factory
	Provider *modulectx.Provider
	Store    *dashboard.Store
	// Relay is nil unless telemetry is enabled.
	Relay *relay.Relay

	sync      *dashboard.Sync
	publisher relay.Publisher

	mu        sync.Mutex
	cancelRun context.CancelFunc
	runDone   chan struct{}
	closed    bool
}

// New builds the app from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	dbPath := cfg.DatabasePath()
	if err := config.EnsureDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.Open(dbPath, cfg.Storage.Driver)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		DB:     db,
		Events: bus.New(),
		Atoms:  atoms.NewRegistry(),
		Store:  dashboard.NewStore(db),
	}
	a.Registry = registry.New(a.Events, a.Atoms)

	if cfg.Telemetry.Enabled {
		pub := opts.Publisher
		if pub == nil {
			kp, err := relay.NewKafkaPublisher(cfg.Telemetry.Brokers, cfg.Telemetry.Topic)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("telemetry publisher: %w", err)
			}
			pub = kp
		}
		a.publisher = pub
		a.Relay = relay.New(pub, cfg.Telemetry.Buffer)
		a.Relay.Attach(a.Events)
	}

	if err := modules.Install(a.Registry, a.Atoms); err != nil {
		a.Close()
		return nil, err
	}
	a.loadManifests(cfg.Manifests.Dir)

	restored, err := a.Store.RestoreInto(a.Registry)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("restore dashboard: %w", err)
	}
	if restored > 0 {
		slog.Info("Dashboard restored", "instances", restored)
	}
	a.sync = dashboard.NewSync(a.Events, a.Store, a.Registry)

	a.Factory = &sandbox.Factory{
		Store:    db.KV(),
		HTTP:     opts.HTTP,
		Audio:    opts.Audio,
		Notifier: opts.Notifier,
		Blocklist: sandbox.Blocklist{
			Hosts:        cfg.Network.BlockedHosts,
			PathPrefixes: cfg.Network.BlockedPathPrefixes,
		},
	}
	if a.Factory.HTTP == nil {
		a.Factory.HTTP = platform.NewHTTPClient(cfg.Network.Timeout)
	}
	if a.Factory.Audio == nil {
		a.Factory.Audio = platform.NewHeadlessAudio(cfg.Audio.ClipDuration)
	}
	if a.Factory.Notifier == nil {
		a.Factory.Notifier = newNotifier(cfg)
	}

	a.Provider = &modulectx.Provider{
		Registry: a.Registry,
		Factory:  a.Factory,
		Events:   a.Events,
		Atoms:    a.Atoms,
	}
	return a, nil
}

func (a *App) loadManifests(dir string) {
	if dir == "" {
		return
	}
	defs, err := manifest.LoadDir(dir)
	if err != nil {
		slog.Warn("Module manifests not loaded", "dir", dir, "error", err)
		return
	}
	for _, def := range defs {
		if err := a.Registry.Register(def); err != nil {
			slog.Warn("Module manifest rejected", "type", def.Type, "error", err)
		}
	}
}

func newNotifier(cfg *config.Config) platform.Notifier {
	if cfg.Notifications.Provider != "slack" {
		return platform.LogNotifier{}
	}
	n, err := platform.NewSlackNotifier(
		cfg.Notifications.SlackToken,
		cfg.Notifications.SlackChannel,
		cfg.Notifications.SlackAPIURL,
		platform.NewHTTPClient(cfg.Network.Timeout),
	)
	if err != nil {
		slog.Warn("Slack notifications unavailable, logging instead", "error", err)
		return platform.LogNotifier{}
	}
	return n
}

// Start runs background work (the relay) until ctx is cancelled or Close
// is called.
func (a *App) Start(ctx context.Context) {
	if a.Relay == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelRun != nil || a.closed {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancelRun = cancel
	a.runDone = done
	go func() {
		defer close(done)
		_ = a.Relay.Run(runCtx)
	}()
}

// Close stops background work, flushes queued events and closes storage.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cancel, done := a.cancelRun, a.runDone
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if a.sync != nil {
		a.sync.Stop()
	}

	var errs []error
	if a.Relay != nil {
		a.Relay.Detach()
		ctx, cancelFlush := context.WithTimeout(context.Background(), flushTimeout)
		a.Relay.Flush(ctx)
		cancelFlush()
		if dropped := a.Relay.Dropped(); dropped > 0 {
			slog.Warn("Relay dropped events", "count", dropped)
		}
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}
