package archiveutil

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
)

// Layout describes the resolved train/val/test directories after either
// finding a pre-split archive or performing the deterministic auto-split
// described below.
type Layout struct {
	TrainDir string
	ValDir   string
	TestDir  string
	Classes  []string
}

const (
	trainFraction = 0.70
	valFraction   = 0.15
	// remaining 0.15 goes to test
)

// Resolve inspects rootDir for either a pre-split layout
// ({train,val,test}/<class>/...) or a flat single-class-subdirectory root,
// and returns a Layout with train/val/test directories populated
// (auto-splitting into a sibling "_split" directory when needed).
// Returns an apperrors-classified error via the caller — this package
// reports plain errors; trainingagent wraps them as KindBadDatasetLayout.
func Resolve(rootDir string) (*Layout, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, fmt.Errorf("read dataset root: %w", err)
	}

	names := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			names[e.Name()] = true
		}
	}

	if names["train"] && names["val"] && names["test"] {
		trainDir := filepath.Join(rootDir, "train")
		valDir := filepath.Join(rootDir, "val")
		testDir := filepath.Join(rootDir, "test")
		trainClasses, err := classDirs(trainDir)
		if err != nil {
			return nil, err
		}
		valClasses, err := classDirs(valDir)
		if err != nil {
			return nil, err
		}
		testClasses, err := classDirs(testDir)
		if err != nil {
			return nil, err
		}
		if !sameSet(trainClasses, valClasses) || !sameSet(trainClasses, testClasses) {
			return nil, fmt.Errorf("class sets differ across train/val/test splits")
		}
		return &Layout{TrainDir: trainDir, ValDir: valDir, TestDir: testDir, Classes: trainClasses}, nil
	}

	// Single class-subdirectory root: auto-split 70/15/15 deterministically
	// by filename hash.
	classes, err := classDirs(rootDir)
	if err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("dataset root contains neither a train/val/test split nor class subdirectories")
	}

	splitRoot := rootDir + "_split"
	if err := autoSplit(rootDir, splitRoot, classes); err != nil {
		return nil, err
	}
	return &Layout{
		TrainDir: filepath.Join(splitRoot, "train"),
		ValDir:   filepath.Join(splitRoot, "val"),
		TestDir:  filepath.Join(splitRoot, "test"),
		Classes:  classes,
	}, nil
}

func classDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// splitBucket deterministically assigns a filename to train/val/test by
// hashing it, so re-running the split on the same files is reproducible.
func splitBucket(filename string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(filename))
	frac := float64(h.Sum32()%10000) / 10000.0
	switch {
	case frac < trainFraction:
		return "train"
	case frac < trainFraction+valFraction:
		return "val"
	default:
		return "test"
	}
}

func autoSplit(rootDir, splitRoot string, classes []string) error {
	for _, split := range []string{"train", "val", "test"} {
		for _, class := range classes {
			if err := os.MkdirAll(filepath.Join(splitRoot, split, class), 0o755); err != nil {
				return fmt.Errorf("create split directory: %w", err)
			}
		}
	}

	for _, class := range classes {
		classDir := filepath.Join(rootDir, class)
		files, err := os.ReadDir(classDir)
		if err != nil {
			return fmt.Errorf("read class directory %s: %w", classDir, err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			bucket := splitBucket(f.Name())
			src := filepath.Join(classDir, f.Name())
			dst := filepath.Join(splitRoot, bucket, class, f.Name())
			if err := linkOrCopy(src, dst); err != nil {
				return fmt.Errorf("place %s into %s split: %w", src, bucket, err)
			}
		}
	}
	return nil
}

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
