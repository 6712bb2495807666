package sandbox

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/lythra/lythra/internal/storage"
)

// namespaceEscaper keeps the instance id free of the separator so one
// namespace can never be a prefix of another.
var namespaceEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

func namespace(instanceID string) string {
	return namespaceEscaper.Replace(instanceID) + ":"
}

// Storage is the instance-namespaced key/value accessor. Values are stored
// as JSON. Failures are logged and never returned.
type Storage struct {
	instanceID string
	prefix     string
	kv         storage.KV
}

// Get returns the decoded value for key, or nil when absent or unreadable.
func (s *Storage) Get(key string) any {
	var v any
	if !s.GetInto(key, &v) {
		return nil
	}
	return v
}

// GetInto decodes the value for key into dst and reports success.
func (s *Storage) GetInto(key string, dst any) bool {
	raw, ok, err := s.kv.Get(s.prefix + key)
	if err != nil {
		slog.Warn("Sandbox storage read failed", "instance", s.instanceID, "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		slog.Warn("Sandbox storage decode failed", "instance", s.instanceID, "key", key, "error", err)
		return false
	}
	return true
}

// Set stores value under key.
func (s *Storage) Set(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("Sandbox storage encode failed", "instance", s.instanceID, "key", key, "error", err)
		return
	}
	if err := s.kv.Set(s.prefix+key, string(data)); err != nil {
		slog.Warn("Sandbox storage write failed", "instance", s.instanceID, "key", key, "error", err)
	}
}

// Remove deletes key.
func (s *Storage) Remove(key string) {
	if err := s.kv.Delete(s.prefix + key); err != nil {
		slog.Warn("Sandbox storage remove failed", "instance", s.instanceID, "key", key, "error", err)
	}
}

// Keys lists this instance's keys without the namespace prefix.
func (s *Storage) Keys() []string {
	full, err := s.kv.Keys(s.prefix)
	if err != nil {
		slog.Warn("Sandbox storage list failed", "instance", s.instanceID, "error", err)
		return []string{}
	}
	out := make([]string, 0, len(full))
	for _, k := range full {
		out = append(out, strings.TrimPrefix(k, s.prefix))
	}
	return out
}

// Clear removes every key in this instance's namespace, one at a time.
func (s *Storage) Clear() {
	for _, k := range s.Keys() {
		s.Remove(k)
	}
}
