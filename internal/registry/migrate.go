package registry

import (
	"fmt"
	"log/slog"
)

// migrate runs def.Migrate, converting a panic into an error. Without a
// migration function settings carry over unchanged.
func migrate(def Definition, settings Settings, from, to string) (out Settings, err error) {
	if def.Migrate == nil {
		return settings, nil
	}
	if !def.Compatible(from) {
		slog.Warn("Migrating from a version not listed as compatible",
			"type", def.Type, "from", from, "to", to, "compatible_with", def.CompatibleWith)
	}
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("migration panicked: %v", rec)
		}
	}()
	out, err = def.Migrate(cloneSettings(settings), from, to)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = Settings{}
	}
	if err := CheckJSONValue(map[string]any(out)); err != nil {
		return nil, fmt.Errorf("migration produced invalid settings: %w", err)
	}
	return cloneSettings(out), nil
}
