// Package cliconfig implements the config editing and diagnostics behind
// the lythra CLI.
package cliconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/lythra/lythra/internal/config"
)

// segment is one step of a dotted path: a map key or an array index.
type segment struct {
	key   string
	index int
	isIdx bool
}

// Get returns the effective value (defaults, file and environment merged)
// at path, e.g. "server.port" or "network.blockedHosts[0]".
func Get(path string) (any, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	val, ok := lookup(tree, segs)
	if !ok {
		return nil, fmt.Errorf("path not found: %s", path)
	}
	return val, nil
}

// Set writes value at path in the config file. rawValue is decoded as JSON
// when possible and kept as a string otherwise. The result must still
// decode into a valid configuration.
func Set(path, rawValue string) error {
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	tree, cfgPath, err := readFileTree()
	if err != nil {
		return err
	}
	updated, ok := assign(tree, segs, ParseValue(rawValue)).(map[string]any)
	if !ok {
		return fmt.Errorf("invalid config root after set")
	}
	if err := checkDecodes(updated); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return writeFileTree(cfgPath, updated)
}

// Unset removes path from the config file.
func Unset(path string) error {
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	tree, cfgPath, err := readFileTree()
	if err != nil {
		return err
	}
	updated, removed := remove(tree, segs)
	if !removed {
		return fmt.Errorf("path not found: %s", path)
	}
	return writeFileTree(cfgPath, updated.(map[string]any))
}

// ParseValue decodes raw as JSON, falling back to the raw string.
func ParseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func toTree(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func checkDecodes(tree map[string]any) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	var cfg config.Config
	if err := dec.Decode(&cfg); err != nil {
		return err
	}
	return nil
}

func readFileTree() (map[string]any, string, error) {
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return map[string]any{}, cfgPath, nil
	}
	if err != nil {
		return nil, "", err
	}
	var m map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", cfgPath, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, cfgPath, nil
}

func writeFileTree(cfgPath string, m map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cfgPath, append(data, '\n'), 0o600)
}

func parsePath(path string) ([]segment, error) {
	s := strings.TrimSpace(path)
	if s == "" {
		return nil, fmt.Errorf("path is empty")
	}
	var out []segment
	for _, part := range strings.Split(s, ".") {
		key := part
		var idxs []string
		if open := strings.IndexByte(part, '['); open >= 0 {
			key = part[:open]
			rest := part[open:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("invalid path %q", path)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, fmt.Errorf("invalid path: missing closing ] in %q", path)
				}
				idxs = append(idxs, strings.TrimSpace(rest[1:end]))
				rest = rest[end+1:]
			}
		}
		if key = strings.TrimSpace(key); key != "" {
			out = append(out, segment{key: key})
		}
		for _, raw := range idxs {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid array index %q in %q", raw, path)
			}
			out = append(out, segment{index: n, isIdx: true})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("path is empty")
	}
	return out, nil
}

func lookup(node any, segs []segment) (any, bool) {
	for _, seg := range segs {
		if seg.isIdx {
			arr, ok := node.([]any)
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			node = arr[seg.index]
			continue
		}
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		if node, ok = obj[seg.key]; !ok {
			return nil, false
		}
	}
	return node, true
}

// assign returns node with value stored at segs, creating containers.
func assign(node any, segs []segment, value any) any {
	if len(segs) == 0 {
		return value
	}
	seg := segs[0]
	if seg.isIdx {
		arr, _ := node.([]any)
		for len(arr) <= seg.index {
			arr = append(arr, nil)
		}
		arr[seg.index] = assign(arr[seg.index], segs[1:], value)
		return arr
	}
	obj, ok := node.(map[string]any)
	if !ok {
		obj = map[string]any{}
	}
	obj[seg.key] = assign(obj[seg.key], segs[1:], value)
	return obj
}

// remove returns node without the value at segs and whether it existed.
func remove(node any, segs []segment) (any, bool) {
	seg := segs[0]
	last := len(segs) == 1
	if seg.isIdx {
		arr, ok := node.([]any)
		if !ok || seg.index >= len(arr) {
			return node, false
		}
		if last {
			return append(arr[:seg.index], arr[seg.index+1:]...), true
		}
		child, removed := remove(arr[seg.index], segs[1:])
		arr[seg.index] = child
		return arr, removed
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return node, false
	}
	child, exists := obj[seg.key]
	if !exists {
		return node, false
	}
	if last {
		delete(obj, seg.key)
		return obj, true
	}
	child, removed := remove(child, segs[1:])
	obj[seg.key] = child
	return obj, removed
}
