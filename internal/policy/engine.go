// Package policy provides capability authorization for module sandboxes.
package policy

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Permission is a capability token granted to every instance of a module type.
type Permission string

// The closed set of capability tokens.
const (
	StorageRead         Permission = "storage:read"
	StorageWrite        Permission = "storage:write"
	NetworkRead         Permission = "network:read"
	NetworkWrite        Permission = "network:write"
	AudioPlay           Permission = "audio:play"
	NotificationsCreate Permission = "notifications:create"
)

// All returns every known permission in declaration order.
func All() []Permission {
	return []Permission{
		StorageRead, StorageWrite,
		NetworkRead, NetworkWrite,
		AudioPlay, NotificationsCreate,
	}
}

// Valid reports whether p is one of the known capability tokens.
func (p Permission) Valid() bool {
	for _, known := range All() {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePermission converts a string into a Permission, rejecting unknown tokens.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.TrimSpace(s))
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission: %q", s)
	}
	return p, nil
}

// ParsePermissions converts a list of strings, failing on the first unknown token.
func ParsePermissions(values []string) ([]Permission, error) {
	out := make([]Permission, 0, len(values))
	for _, v := range values {
		p, err := ParsePermission(v)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// RequiredForMethod maps an HTTP method to the permission it needs.
// GET and HEAD are reads; every other method is a write.
func RequiredForMethod(method string) Permission {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case "", http.MethodGet, http.MethodHead:
		return NetworkRead
	default:
		return NetworkWrite
	}
}

// Set is an immutable permission membership set.
type Set struct {
	members map[Permission]bool
}

// NewSet builds a set from a permission list. Duplicates collapse.
func NewSet(perms []Permission) Set {
	m := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		m[p] = true
	}
	return Set{members: m}
}

// Has reports whether p is a member of the set.
func (s Set) Has(p Permission) bool {
	return s.members[p]
}

// List returns the members sorted alphabetically.
func (s Set) List() []Permission {
	out := make([]Permission, 0, len(s.members))
	for p := range s.members {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of distinct permissions.
func (s Set) Len() int { return len(s.members) }

// Request holds information about a pending capability use.
type Request struct {
	InstanceID string
	Permission Permission
	Granted    Set
	Op         string
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allow  bool
	Reason string
	Ts     time.Time
}

// Engine evaluates whether a capability use should proceed.
type Engine interface {
	Evaluate(req Request) Decision
}

// DefaultEngine allows a request iff the permission is in the granted set.
type DefaultEngine struct{}

// NewDefaultEngine creates the membership-based policy engine.
func NewDefaultEngine() *DefaultEngine {
	return &DefaultEngine{}
}

// Evaluate checks permission membership.
func (e *DefaultEngine) Evaluate(req Request) Decision {
	d := Decision{Ts: time.Now()}
	if !req.Permission.Valid() {
		d.Reason = fmt.Sprintf("unknown_permission:%s", req.Permission)
		return d
	}
	if !req.Granted.Has(req.Permission) {
		d.Reason = fmt.Sprintf("permission_missing:%s", req.Permission)
		return d
	}
	d.Allow = true
	d.Reason = "permission_granted"
	return d
}
