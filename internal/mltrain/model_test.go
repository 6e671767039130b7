package mltrain

import (
	"path/filepath"
	"testing"
)

func TestLinearModel_SaveLoadRoundTrip(t *testing.T) {
	m := NewLinearModel("mobilenet_v2", []string{"cat", "dog"})
	m.Weights[0][0] = 1.5
	m.Bias[1] = 0.25

	path := filepath.Join(t.TempDir(), "model.pth")
	if err := m.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := LoadLinearModel(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Architecture != "mobilenet_v2" {
		t.Fatalf("unexpected architecture: %s", loaded.Architecture)
	}
	if loaded.Weights[0][0] != 1.5 || loaded.Bias[1] != 0.25 {
		t.Fatalf("weights/bias did not round-trip: %+v", loaded)
	}
}
