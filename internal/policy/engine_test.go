package policy

import (
	"net/http"
	"testing"
)

func TestGrantedPermissionAllowed(t *testing.T) {
	eng := NewDefaultEngine()
	d := eng.Evaluate(Request{
		InstanceID: "inst-1",
		Permission: AudioPlay,
		Granted:    NewSet([]Permission{AudioPlay}),
	})
	if !d.Allow {
		t.Fatalf("granted permission should be allowed, got: %s", d.Reason)
	}
	if d.Reason != "permission_granted" {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestMissingPermissionDenied(t *testing.T) {
	eng := NewDefaultEngine()
	d := eng.Evaluate(Request{
		Permission: NetworkWrite,
		Granted:    NewSet([]Permission{NetworkRead}),
	})
	if d.Allow {
		t.Fatal("network:write should be denied when only network:read is granted")
	}
	if d.Reason != "permission_missing:network:write" {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestEmptySetDeniesEverything(t *testing.T) {
	eng := NewDefaultEngine()
	for _, p := range All() {
		if d := eng.Evaluate(Request{Permission: p, Granted: NewSet(nil)}); d.Allow {
			t.Fatalf("%s should be denied for an empty set", p)
		}
	}
}

func TestUnknownPermissionDenied(t *testing.T) {
	eng := NewDefaultEngine()
	d := eng.Evaluate(Request{
		Permission: Permission("camera:record"),
		Granted:    NewSet([]Permission{Permission("camera:record")}),
	})
	if d.Allow {
		t.Fatal("unknown permission should never be allowed")
	}
}

func TestParsePermissions(t *testing.T) {
	perms, err := ParsePermissions([]string{"storage:read", " audio:play "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(perms) != 2 || perms[1] != AudioPlay {
		t.Fatalf("unexpected permissions: %v", perms)
	}
	if _, err := ParsePermissions([]string{"storage:read", "root"}); err == nil {
		t.Fatal("expected unknown token to fail")
	}
}

func TestRequiredForMethod(t *testing.T) {
	cases := map[string]Permission{
		http.MethodGet:    NetworkRead,
		"head":            NetworkRead,
		"":                NetworkRead,
		http.MethodPost:   NetworkWrite,
		http.MethodDelete: NetworkWrite,
		"PATCH":           NetworkWrite,
	}
	for method, want := range cases {
		if got := RequiredForMethod(method); got != want {
			t.Errorf("RequiredForMethod(%q) = %s, want %s", method, got, want)
		}
	}
}

func TestSetListSortedAndDeduplicated(t *testing.T) {
	s := NewSet([]Permission{StorageWrite, AudioPlay, StorageWrite})
	if s.Len() != 2 {
		t.Fatalf("expected 2 members, got %d", s.Len())
	}
	list := s.List()
	if list[0] != AudioPlay || list[1] != StorageWrite {
		t.Fatalf("unexpected order: %v", list)
	}
}
