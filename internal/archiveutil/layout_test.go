package archiveutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolve_PreSplitLayout(t *testing.T) {
	root := t.TempDir()
	for _, split := range []string{"train", "val", "test"} {
		for _, class := range []string{"cat", "dog"} {
			writeFile(t, filepath.Join(root, split, class, "a.jpg"))
		}
	}
	layout, err := Resolve(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(layout.Classes) != 2 {
		t.Fatalf("expected 2 classes, got %v", layout.Classes)
	}
}

func TestResolve_MismatchedClassesRejected(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "train", "cat", "a.jpg"))
	writeFile(t, filepath.Join(root, "val", "dog", "a.jpg"))
	writeFile(t, filepath.Join(root, "test", "cat", "a.jpg"))
	if _, err := Resolve(root); err == nil {
		t.Fatal("expected error for mismatched class sets")
	}
}

func TestResolve_AutoSplitsSingleRoot(t *testing.T) {
	root := t.TempDir()
	for _, class := range []string{"cat", "dog"} {
		for i := 0; i < 20; i++ {
			writeFile(t, filepath.Join(root, class, fmt.Sprintf("img-%d.jpg", i)))
		}
	}
	layout, err := Resolve(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(layout.Classes) != 2 {
		t.Fatalf("expected 2 classes, got %v", layout.Classes)
	}
	if _, err := os.Stat(layout.TrainDir); err != nil {
		t.Fatalf("expected train dir to exist: %v", err)
	}
}

func TestSplitBucket_Deterministic(t *testing.T) {
	if splitBucket("img-1.jpg") != splitBucket("img-1.jpg") {
		t.Fatal("splitBucket must be deterministic for the same filename")
	}
}
