package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lythra/lythra/internal/bus"
	"github.com/lythra/lythra/internal/config"
	"github.com/lythra/lythra/internal/modules/timer"
	"github.com/lythra/lythra/internal/platform"
	"github.com/lythra/lythra/internal/policy"
	"github.com/lythra/lythra/internal/relay"
	"github.com/lythra/lythra/internal/sandbox"
)

const noteManifest = `type: note
version: 1.0.0
category: text
defaultSettings:
  text: hello
template: "${text}"
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Paths.DataDir = dir
	cfg.Manifests.Dir = filepath.Join(dir, "modules")
	if err := os.MkdirAll(cfg.Manifests.Dir, 0o755); err != nil {
		t.Fatalf("mkdir manifests: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Manifests.Dir, "note.yaml"), []byte(noteManifest), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return cfg
}

func TestNewInstallsModulesAndPersists(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(cfg, Options{Audio: platform.NewHeadlessAudio(0)})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if a.Relay != nil {
		t.Fatal("relay should be off when telemetry is disabled")
	}
	if _, ok := a.Registry.Definition("note"); !ok {
		t.Fatal("manifest module should be registered")
	}
	if _, ok := a.Registry.Definition(timer.Type); !ok {
		t.Fatal("built-in modules should be registered")
	}
	created, err := a.Registry.Create(timer.Type, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	note, err := a.Registry.Create("note", nil)
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}

	reopened, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, ok := reopened.Registry.Instance(created.ID); !ok {
		t.Fatal("instance should be restored from storage")
	}
	view, err := reopened.Provider.RenderInstance(context.Background(), note.ID)
	if err != nil {
		t.Fatalf("render restored note: %v", err)
	}
	if view.Body != "hello" {
		t.Fatalf("unexpected note body %q", view.Body)
	}
}

func TestNewAppliesNetworkBlocklist(t *testing.T) {
	cfg := testConfig(t)
	cfg.Network.BlockedHosts = []string{"intranet.example"}

	a, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	sb := a.Factory.New("probe", []policy.Permission{policy.NetworkRead})
	_, err = sb.Network.Fetch(context.Background(), "https://intranet.example/", sandbox.FetchOptions{})
	if !errors.Is(err, sandbox.ErrBlockedTarget) {
		t.Fatalf("configured host should be blocked, got %v", err)
	}
}

func TestCloseFlushesRelay(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telemetry.Enabled = true
	pub := relay.NewChannelPublisher(64)

	a, err := New(cfg, Options{Publisher: pub})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := a.Registry.Create(timer.Type, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// four built-ins and one manifest registered, then one instance created
	if len(pub.C) != 6 {
		t.Fatalf("expected 6 relayed events, got %d", len(pub.C))
	}
}

func TestStartRelaysInBackground(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telemetry.Enabled = true
	pub := relay.NewChannelPublisher(64)

	a, err := New(cfg, Options{Publisher: pub})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	cfgCreated, err := a.Registry.Create(timer.Type, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-pub.C:
			e, err := relay.DecodeEvent(msg.Value)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if e.Type == bus.EventModuleCreated {
				if string(msg.Key) != cfgCreated.ID {
					t.Fatalf("created event keyed by %q", msg.Key)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for created event")
		}
	}
}
