package mltrain

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Sample is one labeled training example.
type Sample struct {
	Features []float64
	ClassIdx int
}

// LoadSplit walks a directory laid out as <dir>/<class>/<image>, in the
// class order given, and returns the loaded feature vectors.
func LoadSplit(dir string, classes []string) ([]Sample, error) {
	var samples []Sample
	for idx, class := range classes {
		classDir := filepath.Join(dir, class)
		entries, err := os.ReadDir(classDir)
		if err != nil {
			return nil, fmt.Errorf("read class directory %s: %w", classDir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			features, err := LoadFeatures(filepath.Join(classDir, e.Name()))
			if err != nil {
				continue // skip unreadable/corrupt images rather than failing the whole epoch
			}
			samples = append(samples, Sample{Features: features, ClassIdx: idx})
		}
	}
	return samples, nil
}

// TrainConfig configures the reference training loop.
type TrainConfig struct {
	Epochs       int
	LearningRate float64
	BatchSize    int
}

// EpochResult is the per-epoch train/val loss the training agent logs at
// info level.
type EpochResult struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
}

// Train runs cfg.Epochs passes of mini-batch gradient descent over train,
// reporting validation loss on val after every epoch, and returns the
// trained model plus the final epoch's losses.
func Train(architecture string, classes []string, train, val []Sample, cfg TrainConfig, onEpoch func(EpochResult)) (*LinearModel, float64, float64, error) {
	if len(train) == 0 {
		return nil, 0, 0, fmt.Errorf("training split is empty")
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 10
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 1e-3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	model := NewLinearModel(architecture, classes)
	var lastTrainLoss, lastValLoss float64

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		lastTrainLoss = trainEpoch(model, train, cfg)
		if len(val) > 0 {
			lastValLoss = crossEntropyLoss(model, val)
		}
		if onEpoch != nil {
			onEpoch(EpochResult{Epoch: epoch, TrainLoss: lastTrainLoss, ValLoss: lastValLoss})
		}
	}
	return model, lastTrainLoss, lastValLoss, nil
}

func trainEpoch(model *LinearModel, samples []Sample, cfg TrainConfig) float64 {
	var totalLoss float64
	numClasses := len(model.Classes)

	for start := 0; start < len(samples); start += cfg.BatchSize {
		end := start + cfg.BatchSize
		if end > len(samples) {
			end = len(samples)
		}
		batch := samples[start:end]

		gradW := make([][]float64, numClasses)
		gradB := make([]float64, numClasses)
		for c := range gradW {
			gradW[c] = make([]float64, FeatureLength)
		}

		for _, s := range batch {
			_, probs := model.Predict(s.Features)
			totalLoss += -safeLog(probs[s.ClassIdx])
			for c := 0; c < numClasses; c++ {
				target := 0.0
				if c == s.ClassIdx {
					target = 1.0
				}
				diff := probs[c] - target
				gradB[c] += diff
				for i, f := range s.Features {
					gradW[c][i] += diff * f
				}
			}
		}

		n := float64(len(batch))
		for c := 0; c < numClasses; c++ {
			model.Bias[c] -= cfg.LearningRate * gradB[c] / n
			for i := range model.Weights[c] {
				model.Weights[c][i] -= cfg.LearningRate * gradW[c][i] / n
			}
		}
	}

	return totalLoss / float64(len(samples))
}

func crossEntropyLoss(model *LinearModel, samples []Sample) float64 {
	var total float64
	for _, s := range samples {
		_, probs := model.Predict(s.Features)
		total += -safeLog(probs[s.ClassIdx])
	}
	return total / float64(len(samples))
}

func safeLog(p float64) float64 {
	const epsilon = 1e-12
	if p < epsilon {
		p = epsilon
	}
	return math.Log(p)
}
