package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauses(t *testing.T) {
	if err := Guard(nil, "escrow"); err != nil {
		t.Fatalf("nil view must not pause: %v", err)
	}
	pauses := NewPauses("Escrow")
	if err := Guard(pauses, "escrow"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	pauses.Set("escrow", false)
	if err := Guard(pauses, "escrow"); err != nil {
		t.Fatalf("expected resumed module, got %v", err)
	}
}
