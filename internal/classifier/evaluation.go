package classifier

import (
	"encoding/json"
	"fmt"
	"os"
)

// EvaluationFile is written next to the models by the training pipeline.
const EvaluationFile = "metrics.json"

// ModelMetrics are held-out evaluation scores for one model.
type ModelMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Evaluation maps content type keys to their scores.
type Evaluation map[string]ModelMetrics

// DefaultEvaluation reports zero for every type.
func DefaultEvaluation() Evaluation {
	e := make(Evaluation, len(AllContentTypes))
	for _, t := range AllContentTypes {
		e[string(t)] = ModelMetrics{}
	}
	return e
}

// LoadEvaluation reads metrics.json. Types missing from the file report zero.
func LoadEvaluation(path string) (Evaluation, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the model directory setting
	if err != nil {
		return nil, err
	}

	var parsed map[string]ModelMetrics
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	e := DefaultEvaluation()
	for _, t := range AllContentTypes {
		if m, ok := parsed[string(t)]; ok {
			e[string(t)] = m
		}
	}
	return e, nil
}
