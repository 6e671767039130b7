package mltrain

import "fmt"

// ClassReport holds per-class precision/recall/F1 plus support count, the
// per-class report the evaluation agent stores in the Model row's metadata.
type ClassReport struct {
	Class     string  `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// EvalResult is the scoring output stored into Model.metadata and
// Model.accuracy.
type EvalResult struct {
	Accuracy       float64       `json:"accuracy"`
	MacroPrecision float64       `json:"macro_precision"`
	MacroRecall    float64       `json:"macro_recall"`
	MacroF1        float64       `json:"macro_f1"`
	PerClass       []ClassReport `json:"per_class"`
}

// Evaluate scores model against samples, computing top-1 accuracy and a
// macro-averaged precision/recall/F1 report per class.
func Evaluate(model *LinearModel, samples []Sample) (*EvalResult, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("evaluation split is empty")
	}
	numClasses := len(model.Classes)
	truePos := make([]int, numClasses)
	falsePos := make([]int, numClasses)
	falseNeg := make([]int, numClasses)
	support := make([]int, numClasses)

	correct := 0
	for _, s := range samples {
		predIdx, _ := model.Predict(s.Features)
		support[s.ClassIdx]++
		if predIdx == s.ClassIdx {
			correct++
			truePos[predIdx]++
		} else {
			falsePos[predIdx]++
			falseNeg[s.ClassIdx]++
		}
	}

	var sumP, sumR, sumF1 float64
	perClass := make([]ClassReport, numClasses)
	for c := 0; c < numClasses; c++ {
		precision := ratio(truePos[c], truePos[c]+falsePos[c])
		recall := ratio(truePos[c], truePos[c]+falseNeg[c])
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		perClass[c] = ClassReport{Class: model.Classes[c], Precision: precision, Recall: recall, F1: f1, Support: support[c]}
		sumP += precision
		sumR += recall
		sumF1 += f1
	}

	return &EvalResult{
		Accuracy:       float64(correct) / float64(len(samples)),
		MacroPrecision: sumP / float64(numClasses),
		MacroRecall:    sumR / float64(numClasses),
		MacroF1:        sumF1 / float64(numClasses),
		PerClass:       perClass,
	}, nil
}

func ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}
