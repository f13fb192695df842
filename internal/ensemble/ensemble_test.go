package ensemble

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"FlowSentry/internal/engine/feature"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// writeModelsDir lays out a models directory with the shared scaler (identity
// transform) and metadata listing the given model names.
func writeModelsDir(t *testing.T, models map[string]any) string {
	t.Helper()
	dir := t.TempDir()

	evaluated := make(map[string]any, len(models))
	for name := range models {
		evaluated[name] = map[string]any{"f1_score": 0.9}
	}
	writeJSON(t, filepath.Join(dir, "metadata.json"), map[string]any{
		"selected_model":   "logistic",
		"evaluated_models": evaluated,
	})

	mean := make([]float64, feature.NumFeatures)
	scale := make([]float64, feature.NumFeatures)
	for i := range scale {
		scale[i] = 1
	}
	writeJSON(t, filepath.Join(dir, "scaler.json"), map[string]any{
		"feature_names": feature.Names[:],
		"mean":          mean,
		"scale":         scale,
	})

	for name, artifact := range models {
		writeJSON(t, filepath.Join(dir, name+".json"), artifact)
	}
	return dir
}

func logisticArtifact(intercept float64) map[string]any {
	return map[string]any{
		"type":          "logistic",
		"feature_names": feature.Names[:],
		"coefficients":  make([]float64, feature.NumFeatures),
		"intercept":     intercept,
	}
}

func svmArtifact() map[string]any {
	return map[string]any{
		"type":          "linear_svm",
		"feature_names": feature.Names[:],
		"coefficients":  make([]float64, feature.NumFeatures),
		"intercept":     0.0,
	}
}

func TestLoadAndScoreLogistic(t *testing.T) {
	dir := writeModelsDir(t, map[string]any{"logistic": logisticArtifact(2.0)})

	e, err := Load(dir)
	if err != nil {
		t.Fatalf("failed to load ensemble: %v", err)
	}

	models := e.Models()
	if len(models) != 1 || models[0] != "logistic" {
		t.Fatalf("unexpected model list: %v", models)
	}

	// Zero coefficients make the probability depend only on the intercept.
	probs := e.Score(feature.Vector{}, nil)
	want := 1.0 / (1.0 + math.Exp(-2.0))
	got, ok := probs["logistic"]
	if !ok {
		t.Fatalf("logistic model missing from scores: %v", probs)
	}
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("logistic probability = %v, want %v", got, want)
	}
}

func TestScoreSkipsNonProbabilisticModels(t *testing.T) {
	dir := writeModelsDir(t, map[string]any{
		"logistic": logisticArtifact(0),
		"svm":      svmArtifact(),
	})

	e, err := Load(dir)
	if err != nil {
		t.Fatalf("failed to load ensemble: %v", err)
	}

	if models := e.Models(); len(models) != 1 || models[0] != "logistic" {
		t.Fatalf("uncalibrated model must not appear in Models(): %v", models)
	}

	probs := e.Score(feature.Vector{}, nil)
	if _, ok := probs["svm"]; ok {
		t.Errorf("uncalibrated model must not produce a probability")
	}
	if len(probs) != 1 {
		t.Errorf("expected exactly 1 probability, got %v", probs)
	}

	// Explicitly selecting the uncalibrated model still skips it.
	probs = e.Score(feature.Vector{}, []string{"svm"})
	if len(probs) != 0 {
		t.Errorf("selected uncalibrated model must be skipped, got %v", probs)
	}
}

func TestScoreSkipsUnknownSelectedModel(t *testing.T) {
	dir := writeModelsDir(t, map[string]any{"logistic": logisticArtifact(0)})
	e, err := Load(dir)
	if err != nil {
		t.Fatalf("failed to load ensemble: %v", err)
	}
	if probs := e.Score(feature.Vector{}, []string{"missing"}); len(probs) != 0 {
		t.Errorf("unknown model must be skipped, got %v", probs)
	}
}

func TestLoadRejectsFeatureOrderMismatch(t *testing.T) {
	reversed := make([]string, feature.NumFeatures)
	for i, name := range feature.Names {
		reversed[feature.NumFeatures-1-i] = name
	}
	artifact := logisticArtifact(0)
	artifact["feature_names"] = reversed

	dir := writeModelsDir(t, map[string]any{"logistic": artifact})
	if _, err := Load(dir); err == nil {
		t.Fatalf("feature order mismatch must fail the load")
	}
}

func TestLoadFailsWithoutProbabilisticModels(t *testing.T) {
	dir := writeModelsDir(t, map[string]any{"svm": svmArtifact()})
	if _, err := Load(dir); err == nil {
		t.Fatalf("an ensemble with no calibrated models must fail to load")
	}
}

func TestLoadSkipsMissingArtifact(t *testing.T) {
	dir := writeModelsDir(t, map[string]any{"logistic": logisticArtifact(0)})

	// metadata references a model whose artifact file does not exist.
	writeJSON(t, filepath.Join(dir, "metadata.json"), map[string]any{
		"evaluated_models": map[string]any{
			"logistic": map[string]any{},
			"ghost":    map[string]any{},
		},
	})

	e, err := Load(dir)
	if err != nil {
		t.Fatalf("missing artifact must be skipped, not fatal: %v", err)
	}
	if models := e.Models(); len(models) != 1 || models[0] != "logistic" {
		t.Fatalf("unexpected model list: %v", models)
	}
}

func TestLoadBundleForest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forest.json")
	writeJSON(t, path, map[string]any{
		"type":          "forest",
		"feature_names": []string{"f1", "f2"},
		"trees": []map[string]any{
			{
				"children_left":  []int{1, -1, -1},
				"children_right": []int{2, -1, -1},
				"feature":        []int{0, -2, -2},
				"threshold":      []float64{0.5, 0, 0},
				"value":          [][]float64{{0, 0}, {3, 1}, {1, 3}},
			},
		},
	})

	b, err := LoadBundle("forest", path)
	if err != nil {
		t.Fatalf("failed to load forest bundle: %v", err)
	}
	if !b.HasProbability {
		t.Fatalf("forest model must report probability support")
	}

	if got := b.Probability([]float64{0, 0}); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("left leaf probability = %v, want 0.25", got)
	}
	if got := b.Probability([]float64{1, 0}); math.Abs(got-0.75) > 1e-12 {
		t.Errorf("right leaf probability = %v, want 0.75", got)
	}
}

func TestLoadBundleGBDT(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gbdt.json")
	writeJSON(t, path, map[string]any{
		"type":          "gbdt",
		"feature_names": []string{"f1"},
		"learning_rate": 0.5,
		"base_score":    0.0,
		"trees": []map[string]any{
			{
				"children_left":  []int{-1},
				"children_right": []int{-1},
				"feature":        []int{-2},
				"threshold":      []float64{0},
				"value":          [][]float64{{2.0}},
			},
		},
	})

	b, err := LoadBundle("gbdt", path)
	if err != nil {
		t.Fatalf("failed to load gbdt bundle: %v", err)
	}
	want := 1.0 / (1.0 + math.Exp(-1.0)) // sigmoid(0 + 0.5*2.0)
	if got := b.Probability([]float64{0}); math.Abs(got-want) > 1e-12 {
		t.Errorf("gbdt probability = %v, want %v", got, want)
	}
}

func TestLoadBundleLinearSVMHasNoProbability(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "svm.json")
	writeJSON(t, path, map[string]any{
		"type":          "linear_svm",
		"feature_names": []string{"f1", "f2"},
		"coefficients":  []float64{0.5, -0.5},
		"intercept":     0.0,
	})

	b, err := LoadBundle("svm", path)
	if err != nil {
		t.Fatalf("failed to load linear_svm bundle: %v", err)
	}
	if b.HasProbability {
		t.Fatalf("linear_svm must not report probability support")
	}
	// Calling Probability on an uncalibrated bundle must be safe.
	if got := b.Probability([]float64{1, 1}); got != 0 {
		t.Errorf("uncalibrated bundle probability = %v, want 0", got)
	}
}

func TestLoadBundleRejectsMalformedArtifacts(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]map[string]any{
		"unknown type": {
			"type":          "perceptron",
			"feature_names": []string{"f1"},
		},
		"coefficient count mismatch": {
			"type":          "logistic",
			"feature_names": []string{"f1", "f2"},
			"coefficients":  []float64{0.1},
		},
		"empty trees": {
			"type":          "forest",
			"feature_names": []string{"f1"},
			"trees":         []map[string]any{},
		},
		"child index out of range": {
			"type":          "forest",
			"feature_names": []string{"f1"},
			"trees": []map[string]any{
				{
					"children_left":  []int{5},
					"children_right": []int{-1},
					"feature":        []int{0},
					"threshold":      []float64{0},
					"value":          [][]float64{{1, 1}},
				},
			},
		},
	}

	for name, artifact := range cases {
		path := filepath.Join(dir, "bad.json")
		writeJSON(t, path, artifact)
		if _, err := LoadBundle("bad", path); err == nil {
			t.Errorf("%s: expected load error", name)
		}
	}
}

func TestScalerTransform(t *testing.T) {
	s := &Scaler{
		FeatureNames: []string{"a", "b", "c"},
		Mean:         []float64{10, 5, 2},
		Scale:        []float64{2, 0, 1},
	}
	got := s.Transform([]float64{14, 8, 2})
	want := []float64{2, 3, 0} // zero scale falls back to centering only
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("column %d = %v, want %v", i, got[i], want[i])
		}
	}
}
