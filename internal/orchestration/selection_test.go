package orchestration

import (
	"testing"

	"github.com/edgecv/fleet-console/internal/domain"
)

func TestParseComponentLabel(t *testing.T) {
	cases := []struct {
		label   string
		name    string
		version string
	}{
		{"modelA v2.3.1", "modelA", "2.3.1"},
		{"modelB", "modelB", "latest"},
		{"edge-runtime v2", "edge-runtime", "2"},
		{"vision model v10.0.4", "vision model", "10.0.4"},
		{"vortex", "vortex", "latest"},
		{"  padded v1.0  ", "padded", "1.0"},
		{"cam-v1.2", "cam", "1.2"},
		{"detector_v3", "detector", "3"},
		{"nav-vision", "nav-vision", "latest"},
		{"ev2", "ev2", "latest"},
	}
	for _, tc := range cases {
		name, version := ParseComponentLabel(tc.label)
		if name != tc.name || version != tc.version {
			t.Fatalf("ParseComponentLabel(%q)=(%q,%q), want (%q,%q)", tc.label, name, version, tc.name, tc.version)
		}
	}
}

func TestSelectionAdd_IsIdempotentByARN(t *testing.T) {
	var s Selection
	entry := domain.CatalogEntry{ARN: "arn:a", Label: "compA v1.0.0", Scope: domain.ScopePrivate}
	if !s.Add(entry) {
		t.Fatalf("first add should change the list")
	}
	if s.Add(entry) {
		t.Fatalf("second add of the same arn should be a no-op")
	}
	relabeled := entry
	relabeled.Label = "compA v9.9.9"
	s.Add(relabeled)
	if s.Len() != 1 {
		t.Fatalf("Len()=%d, want 1", s.Len())
	}
	got := s.Items()[0]
	if got.ComponentName != "compA" || got.ComponentVersion != "1.0.0" || got.Scope != domain.ScopePrivate {
		t.Fatalf("unexpected selection %+v", got)
	}
}

func TestSelectionRemove(t *testing.T) {
	var s Selection
	for _, arn := range []string{"arn:a", "arn:b", "arn:c"} {
		s.Add(domain.CatalogEntry{ARN: arn, Label: arn})
	}
	if s.Remove("arn:missing") {
		t.Fatalf("removing an absent arn should report no change")
	}
	if s.Len() != 3 {
		t.Fatalf("Len()=%d, want 3 after no-op remove", s.Len())
	}
	if !s.Remove("arn:b") {
		t.Fatalf("expected removal")
	}
	items := s.Items()
	if len(items) != 2 || items[0].ARN != "arn:a" || items[1].ARN != "arn:c" {
		t.Fatalf("order not preserved: %+v", items)
	}
	s.Add(domain.CatalogEntry{ARN: "arn:b", Label: "b"})
	items = s.Items()
	if items[2].ARN != "arn:b" {
		t.Fatalf("re-added entry should be appended: %+v", items)
	}
}

func TestSelectionItems_ReturnsCopy(t *testing.T) {
	var s Selection
	s.Add(domain.CatalogEntry{ARN: "arn:a", Label: "a v1"})
	items := s.Items()
	items[0].ARN = "mutated"
	if !s.Contains("arn:a") {
		t.Fatalf("mutating Items() result must not change the selection")
	}
}

func TestSelectionPreselect(t *testing.T) {
	private := []domain.CatalogEntry{
		{ARN: "arn:a", Label: "compA v1.2.3", Scope: domain.ScopePrivate},
		{ARN: "arn:b", Label: "compB", Scope: domain.ScopePrivate},
	}

	var found Selection
	if !found.Preselect("arn:b", private) {
		t.Fatalf("expected preselect to find arn:b")
	}
	items := found.Items()
	if len(items) != 1 || items[0].ARN != "arn:b" || items[0].ComponentVersion != "latest" {
		t.Fatalf("unexpected preselection %+v", items)
	}

	var missing Selection
	if missing.Preselect("arn:not-loaded", private) {
		t.Fatalf("preselect of an unloaded arn should report false")
	}
	if missing.Len() != 0 {
		t.Fatalf("selection should stay empty, got %d", missing.Len())
	}
}
