package evalagent

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/automl-platform/orchestrator/internal/mltrain"
)

const predictScriptTemplate = `"""Standalone loader for the bundled model.

Usage: python predict.py <image-path>

Loads model.pth and labels.json and prints a summary of them. The image
path is required on the command line but the image is not classified.
"""
import json
import sys

# NOTE: this bundle's model.pth is a JSON-serialized linear classifier over
# a downsampled grayscale feature vector, not a torch state_dict — load it
# accordingly rather than with torch.load.


def load_model(path="model.pth"):
    with open(path) as f:
        return json.load(f)


def load_labels(path="labels.json"):
    with open(path) as f:
        return json.load(f)


if __name__ == "__main__":
    if len(sys.argv) != 2:
        print("usage: predict.py <image-path>")
        sys.exit(1)
    model = load_model()
    labels = load_labels()
    print(f"loaded model for architecture {model['architecture']} with {len(labels)} classes")
`

const readmeTemplate = `Model bundle for project %q

Contents:
  model.pth    - trained classifier weights (JSON-serialized)
  predict.py   - loads the model and labels and prints a summary (does not classify images)
  labels.json  - class names in training index order

Architecture: %s
Accuracy: %.4f
`

// AssembleBundle writes model.pth, predict.py, labels.json, and
// README.txt into bundleDir and zips the directory into zipPath — the
// bundle contents named exactly as the gateway expects.
func AssembleBundle(modelWeightsPath string, model *mltrain.LinearModel, accuracy float64, projectName, bundleDir, zipPath string) error {
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	weights, err := os.ReadFile(modelWeightsPath)
	if err != nil {
		return fmt.Errorf("read model weights: %w", err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "model.pth"), weights, 0o644); err != nil {
		return fmt.Errorf("write bundle model.pth: %w", err)
	}

	labels, err := json.Marshal(model.Classes)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "labels.json"), labels, 0o644); err != nil {
		return fmt.Errorf("write labels.json: %w", err)
	}

	if err := os.WriteFile(filepath.Join(bundleDir, "predict.py"), []byte(predictScriptTemplate), 0o644); err != nil {
		return fmt.Errorf("write predict.py: %w", err)
	}

	readme := fmt.Sprintf(readmeTemplate, projectName, model.Architecture, accuracy)
	if err := os.WriteFile(filepath.Join(bundleDir, "README.txt"), []byte(readme), 0o644); err != nil {
		return fmt.Errorf("write README.txt: %w", err)
	}

	return zipDir(bundleDir, zipPath)
}

func zipDir(dir, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create bundle zip: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, name := range []string{"model.pth", "predict.py", "labels.json", "README.txt"} {
		if err := addFileToZip(zw, filepath.Join(dir, name), name); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addFileToZip(zw *zip.Writer, srcPath, nameInZip string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read %s for bundling: %w", srcPath, err)
	}
	w, err := zw.Create(nameInZip)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", nameInZip, err)
	}
	_, err = w.Write(data)
	return err
}
