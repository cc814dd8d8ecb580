package main

import (
	"regexp"
	"testing"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestGenerateUUIDFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		id := GenerateUUID()
		if !uuidRegex.MatchString(id) {
			t.Errorf("GenerateUUID() = %q, does not match UUID v4 format", id)
		}
	}
}

func TestGenerateIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateID(4)
		if len(id) != 8 {
			t.Fatalf("GenerateID(4) should be 8 hex chars, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestClamps(t *testing.T) {
	if ClampI(7, 1, 6) != 6 || ClampI(0, 1, 6) != 1 || ClampI(3, 1, 6) != 3 {
		t.Error("ClampI misbehaves")
	}
	if ClampF(6.5, 1, 6) != 6 || ClampF(0.5, 1, 6) != 1 || ClampF(3.5, 1, 6) != 3.5 {
		t.Error("ClampF misbehaves")
	}
}
