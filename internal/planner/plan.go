package planner

import (
	"fmt"
	"strings"
)

// supportedModels is the architecture enum the planner may choose.
var supportedModels = map[string]bool{
	"resnet18":        true,
	"resnet34":        true,
	"resnet50":        true,
	"mobilenet_v2":     true,
	"efficientnet_b0":  true,
}

// Plan is the strict-schema output the LLM must produce. Fields carry
// documented defaults so a partially-populated LLM response can still be
// completed deterministically.
type Plan struct {
	Name             string   `json:"name"`
	TaskType         string   `json:"task_type"`
	Framework        string   `json:"framework"`
	DatasetSource    string   `json:"dataset_source"`
	SearchKeywords   []string `json:"search_keywords"`
	PreferredModel   string   `json:"preferred_model"`
	TargetMetric     string   `json:"target_metric"`
	TargetValue      float64  `json:"target_value"`
	MaxDatasetSizeGB float64  `json:"max_dataset_size_gb"`
}

// ApplyDefaults fills every field the LLM omitted with its named
// default, deriving Name from the utterance when absent.
func (p *Plan) ApplyDefaults(utterance string) {
	if p.Name == "" {
		p.Name = deriveTitle(utterance)
	}
	if p.TaskType == "" {
		p.TaskType = "image_classification"
	}
	if p.Framework == "" {
		p.Framework = "pytorch"
	}
	if p.DatasetSource == "" {
		p.DatasetSource = "kaggle"
	}
	if p.PreferredModel == "" {
		p.PreferredModel = "resnet18"
	}
	if p.TargetMetric == "" {
		p.TargetMetric = "accuracy"
	}
	if p.TargetValue == 0 {
		p.TargetValue = 0.9
	}
	if p.MaxDatasetSizeGB == 0 {
		p.MaxDatasetSizeGB = ParseMaxDatasetSizeGB(utterance)
	}
	normalized := make([]string, 0, len(p.SearchKeywords))
	for _, k := range p.SearchKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			normalized = append(normalized, k)
		}
	}
	p.SearchKeywords = normalized
}

// Validate enforces the schema constraints: name length, keyword count,
// target value range, supported architecture.
func (p *Plan) Validate() error {
	if l := len(p.Name); l < 3 || l > 80 {
		return fmt.Errorf("name must be 3-80 characters, got %d", l)
	}
	if l := len(p.SearchKeywords); l < 1 || l > 8 {
		return fmt.Errorf("search_keywords must have 1-8 entries, got %d", l)
	}
	if p.TargetValue < 0 || p.TargetValue > 1 {
		return fmt.Errorf("target_value must be in [0, 1], got %v", p.TargetValue)
	}
	if !supportedModels[p.PreferredModel] {
		return fmt.Errorf("preferred_model %q is not a supported architecture", p.PreferredModel)
	}
	if p.MaxDatasetSizeGB <= 0 {
		return fmt.Errorf("max_dataset_size_gb must be positive, got %v", p.MaxDatasetSizeGB)
	}
	return nil
}

// deriveTitle produces a default project name (<=60 chars) from the raw
// utterance when the LLM omits one.
func deriveTitle(utterance string) string {
	title := strings.TrimSpace(utterance)
	if title == "" {
		title = "untitled project"
	}
	if len(title) > 60 {
		title = title[:60]
	}
	return title
}
