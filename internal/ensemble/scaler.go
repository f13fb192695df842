package ensemble

import (
	"encoding/json"
	"fmt"
	"os"
)

// Scaler is the fitted standard scaler shared by every model in the
// ensemble. Its declared feature order is the canonical column order
// enforced on the feature vector before scaling.
type Scaler struct {
	FeatureNames []string  `json:"feature_names"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
}

// LoadScaler reads the fitted scaler artifact.
func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scaler artifact: %w", err)
	}
	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scaler artifact: %w", err)
	}
	if len(s.FeatureNames) == 0 {
		return nil, fmt.Errorf("scaler artifact declares no feature names")
	}
	if len(s.Mean) != len(s.FeatureNames) || len(s.Scale) != len(s.FeatureNames) {
		return nil, fmt.Errorf("scaler artifact is inconsistent: %d names, %d means, %d scales",
			len(s.FeatureNames), len(s.Mean), len(s.Scale))
	}
	return &s, nil
}

// Transform standardizes a single row already in the scaler's column order.
func (s *Scaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for i, v := range row {
		scale := s.Scale[i]
		if scale == 0 {
			// Zero-variance column: center only, matching fitted behavior.
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out
}
