package gateway

import (
	"context"
	"fmt"
	"mime/multipart"
	"os"

	"github.com/automl-platform/orchestrator/internal/apperrors"
	"github.com/automl-platform/orchestrator/internal/mltrain"
	"github.com/automl-platform/orchestrator/internal/models"
)

// predict downloads the project's trained weights and scores a single
// uploaded image against them — the POST /api/ml/projects/{id}/test
// endpoint uses it.
func (g *Gateway) predict(ctx context.Context, project *models.Project, file *multipart.FileHeader) (string, float64, error) {
	modelRow, err := g.store.GetModelByProject(ctx, project.ID)
	if err != nil {
		return "", 0, fmt.Errorf("load model: %w", err)
	}

	tmpWeights, err := os.CreateTemp("", "predict-weights-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	weightsPath := tmpWeights.Name()
	tmpWeights.Close()
	defer os.Remove(weightsPath)

	if err := g.objects.Download(ctx, modelRow.ObjectURI, weightsPath); err != nil {
		return "", 0, fmt.Errorf("download model weights: %w", err)
	}
	model, err := mltrain.LoadLinearModel(weightsPath)
	if err != nil {
		return "", 0, fmt.Errorf("load model weights: %w", err)
	}

	src, err := file.Open()
	if err != nil {
		return "", 0, fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	tmpImage, err := os.CreateTemp("", "predict-image-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	imagePath := tmpImage.Name()
	defer os.Remove(imagePath)
	if _, err := tmpImage.ReadFrom(src); err != nil {
		tmpImage.Close()
		return "", 0, fmt.Errorf("stage uploaded file: %w", err)
	}
	tmpImage.Close()

	features, err := mltrain.LoadFeatures(imagePath)
	if err != nil {
		return "", 0, fmt.Errorf("decode uploaded image: %w", err)
	}

	idx, probs := model.Predict(features)
	return model.Classes[idx], probs[idx], nil
}

func errKind(err error) string {
	return string(apperrors.KindOf(err))
}
