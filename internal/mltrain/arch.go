// Package mltrain implements the training and scoring mechanics the
// training and evaluation agents need: architecture selection, the Train
// function, and a reference in-process implementation. Training-algorithm
// innovation is explicitly out of scope here — the mechanical contract
// (epochs, logging, loss reporting, weight persistence, scoring) is what
// this package guarantees; Train's signature is the seam where a real deep
// learning backend would be wired in.
package mltrain

import "fmt"

// SupportedArchitectures is the preferred_model enum 
// step 5.
var SupportedArchitectures = map[string]bool{
	"resnet18":        true,
	"resnet34":        true,
	"resnet50":        true,
	"mobilenet_v2":     true,
	"efficientnet_b0":  true,
}

// ValidateArchitecture rejects any preferred_model outside the supported
// set.
func ValidateArchitecture(name string) error {
	if !SupportedArchitectures[name] {
		return fmt.Errorf("unsupported architecture %q", name)
	}
	return nil
}

// InputSize is the standard 224-pixel input side of the supported
// architectures. LoadFeatures does not resize to it; images are reduced to
// a featureGrid x featureGrid grayscale grid instead.
const InputSize = 224

// ImageNetMean and ImageNetStd are the standard ImageNet normalization
// constants. LoadFeatures does not apply them; its features are grayscale
// intensities in [0,1].
var (
	ImageNetMean = [3]float64{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float64{0.229, 0.224, 0.225}
)
