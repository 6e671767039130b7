package mltrain

import (
	"math/rand"
	"testing"
)

func syntheticSamples(n int, numClasses int, seed int64) []Sample {
	r := rand.New(rand.NewSource(seed))
	samples := make([]Sample, n)
	for i := range samples {
		class := i % numClasses
		features := make([]float64, FeatureLength)
		for j := range features {
			features[j] = float64(class)/float64(numClasses) + r.Float64()*0.05
		}
		samples[i] = Sample{Features: features, ClassIdx: class}
	}
	return samples
}

func TestTrain_ReducesLossAcrossEpochs(t *testing.T) {
	classes := []string{"cat", "dog", "bird"}
	train := syntheticSamples(90, 3, 1)
	val := syntheticSamples(30, 3, 2)

	var first, last float64
	epoch := 0
	model, trainLoss, valLoss, err := Train("resnet18", classes, train, val, TrainConfig{Epochs: 5, LearningRate: 0.5, BatchSize: 16}, func(r EpochResult) {
		epoch++
		if epoch == 1 {
			first = r.TrainLoss
		}
		last = r.TrainLoss
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last >= first {
		t.Fatalf("expected training loss to decrease: first=%v last=%v", first, last)
	}
	if trainLoss <= 0 || valLoss <= 0 {
		t.Fatalf("expected positive losses, got train=%v val=%v", trainLoss, valLoss)
	}
	if model.Architecture != "resnet18" {
		t.Fatalf("unexpected architecture tag: %s", model.Architecture)
	}
}

func TestEvaluate_PerfectSeparationYieldsHighAccuracy(t *testing.T) {
	classes := []string{"cat", "dog"}
	train := syntheticSamples(60, 2, 3)
	model, _, _, err := Train("resnet18", classes, train, nil, TrainConfig{Epochs: 30, LearningRate: 0.5, BatchSize: 16}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	test := syntheticSamples(20, 2, 4)
	result, err := Evaluate(model, test)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accuracy < 0.7 {
		t.Fatalf("expected reasonably high accuracy on separable synthetic data, got %v", result.Accuracy)
	}
	if len(result.PerClass) != 2 {
		t.Fatalf("expected 2 per-class reports, got %d", len(result.PerClass))
	}
}
