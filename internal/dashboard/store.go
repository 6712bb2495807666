// Package dashboard persists module instances and keeps the store in step
// with the registry through bus events.
package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lythra/lythra/internal/bus"
	"github.com/lythra/lythra/internal/registry"
	"github.com/lythra/lythra/internal/storage"
)

// Store reads and writes instance configs in the database.
type Store struct {
	db *storage.DB
}

// NewStore creates a store over db.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Save upserts cfg.
func (s *Store) Save(cfg registry.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode instance %s: %w", cfg.ID, err)
	}
	return s.db.PutInstance(storage.InstanceRecord{
		ID:        cfg.ID,
		Type:      cfg.Type,
		Version:   cfg.Version,
		Data:      data,
		CreatedAt: cfg.CreatedAt,
		UpdatedAt: cfg.UpdatedAt,
	})
}

// Delete removes the instance with id.
func (s *Store) Delete(id string) error {
	return s.db.DeleteInstance(id)
}

// Load returns the stored config for id.
func (s *Store) Load(id string) (registry.Config, error) {
	rec, err := s.db.GetInstance(id)
	if err != nil {
		return registry.Config{}, err
	}
	return decode(rec)
}

// List returns every stored config ordered by creation time.
func (s *Store) List() ([]registry.Config, error) {
	recs, err := s.db.ListInstances()
	if err != nil {
		return nil, err
	}
	out := make([]registry.Config, 0, len(recs))
	for _, rec := range recs {
		cfg, err := decode(rec)
		if err != nil {
			slog.Warn("Skipping unreadable stored instance", "id", rec.ID, "error", err)
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

func decode(rec storage.InstanceRecord) (registry.Config, error) {
	var cfg registry.Config
	if err := json.Unmarshal(rec.Data, &cfg); err != nil {
		return registry.Config{}, fmt.Errorf("decode instance %s: %w", rec.ID, err)
	}
	if cfg.ID == "" {
		cfg.ID = rec.ID
	}
	return cfg, nil
}

// RestoreInto loads every stored instance into reg and returns the count.
// Instances already present in reg are skipped.
func (s *Store) RestoreInto(reg *registry.Registry) (int, error) {
	cfgs, err := s.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, cfg := range cfgs {
		if err := reg.Restore(cfg); err != nil {
			if errors.Is(err, registry.ErrDuplicateInstance) {
				continue
			}
			slog.Warn("Failed to restore instance", "id", cfg.ID, "error", err)
			continue
		}
		n++
	}
	slog.Debug("Dashboard restored", "instances", n)
	return n, nil
}

// Instances looks up the live config of an instance.
type Instances interface {
	Instance(id string) (registry.Config, bool)
}

// Sync persists registry changes announced on the bus. Lifecycle events may
// arrive out of order because the registry emits after releasing its lock,
// so saves write the registry's current config and skip removed instances.
type Sync struct {
	mu        sync.Mutex
	store     *Store
	instances Instances
	unsubs    []func()
}

// NewSync subscribes store to instance lifecycle events on events.
func NewSync(events *bus.EventBus, store *Store, instances Instances) *Sync {
	s := &Sync{store: store, instances: instances}
	s.unsubs = []func(){
		events.Subscribe(bus.EventModuleCreated, s.save),
		events.Subscribe(bus.EventModuleSettingsChanged, s.save),
		events.Subscribe(bus.EventModuleDestroyed, s.remove),
	}
	return s
}

func (s *Sync) save(e bus.Event) {
	if _, ok := e.Payload.(registry.Config); !ok {
		slog.Warn("Dashboard sync ignored event without config payload", "type", e.Type, "id", e.ModuleID)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, live := s.instances.Instance(e.ModuleID)
	if !live {
		slog.Debug("Dashboard sync skipped removed instance", "type", e.Type, "id", e.ModuleID)
		return
	}
	if err := s.store.Save(cfg); err != nil {
		slog.Error("Dashboard sync save failed", "id", cfg.ID, "error", err)
	}
}

func (s *Sync) remove(e bus.Event) {
	if e.ModuleID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(e.ModuleID); err != nil {
		slog.Error("Dashboard sync delete failed", "id", e.ModuleID, "error", err)
	}
}

// Stop unsubscribes from the bus.
func (s *Sync) Stop() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}
