package ensemble

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"FlowSentry/internal/engine/feature"
)

// metadata mirrors the trainer's model_metadata.json: the evaluated model
// names are the loadable artifacts of the models directory.
type metadata struct {
	SelectedModel     string                     `json:"selected_model"`
	SelectionCriteria string                     `json:"selection_criteria"`
	EvaluatedModels   map[string]json.RawMessage `json:"evaluated_models"`
	GeneratedOn       string                     `json:"generated_on"`
}

// Ensemble holds the independently trained classifiers and the single
// fitted scaler they share. It is read-only after Load and safe for
// unsynchronized concurrent scoring.
type Ensemble struct {
	scaler  *Scaler
	bundles map[string]*Bundle

	// columnOrder maps each scaler column to its index in the extractor's
	// feature vector, resolved once at load time.
	columnOrder []int
}

// Load reads the models directory: metadata.json and scaler.json are
// required, each evaluated model is loaded from <name>.json. A missing or
// non-probabilistic model is skipped with a warning; a feature-order
// mismatch against the scaler is a fatal artifact error because it would
// silently corrupt every downstream decision.
func Load(dir string) (*Ensemble, error) {
	metaData, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model metadata: %w", err)
	}
	if len(meta.EvaluatedModels) == 0 {
		return nil, fmt.Errorf("model metadata lists no evaluated models")
	}

	scaler, err := LoadScaler(filepath.Join(dir, "scaler.json"))
	if err != nil {
		return nil, err
	}

	columnOrder, err := resolveColumnOrder(scaler.FeatureNames)
	if err != nil {
		return nil, err
	}

	e := &Ensemble{
		scaler:      scaler,
		bundles:     make(map[string]*Bundle),
		columnOrder: columnOrder,
	}

	names := make([]string, 0, len(meta.EvaluatedModels))
	for name := range meta.EvaluatedModels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name+".json")
		bundle, err := LoadBundle(name, path)
		if err != nil {
			log.Printf("Warning: skipping model '%s': %v", name, err)
			continue
		}
		if !sameOrder(bundle.FeatureNames, scaler.FeatureNames) {
			return nil, fmt.Errorf("model '%s' feature order does not match the shared scaler", name)
		}
		if !bundle.HasProbability {
			log.Printf("Warning: model '%s' (%s) lacks calibrated probability output and will be skipped", name, bundle.Type)
		}
		e.bundles[name] = bundle
		log.Printf("Loaded model '%s' (%s)", name, bundle.Type)
	}

	if len(e.probabilisticModels()) == 0 {
		return nil, fmt.Errorf("no probabilistic models could be loaded from %s", dir)
	}
	log.Printf("Ensemble ready: %d models, %d feature columns", len(e.bundles), len(scaler.FeatureNames))
	return e, nil
}

// resolveColumnOrder maps the scaler's declared columns onto the
// extractor's fixed vector, failing fast on any unknown or missing column.
func resolveColumnOrder(scalerNames []string) ([]int, error) {
	if len(scalerNames) != feature.NumFeatures {
		return nil, fmt.Errorf("scaler declares %d columns, extractor produces %d",
			len(scalerNames), feature.NumFeatures)
	}
	index := make(map[string]int, feature.NumFeatures)
	for i, name := range feature.Names {
		index[name] = i
	}
	order := make([]int, len(scalerNames))
	for i, name := range scalerNames {
		pos, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("scaler column %q is not produced by the feature extractor", name)
		}
		order[i] = pos
	}
	return order, nil
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (e *Ensemble) probabilisticModels() []string {
	var names []string
	for name, b := range e.bundles {
		if b.HasProbability {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Models returns the names of all loaded probabilistic models.
func (e *Ensemble) Models() []string {
	return e.probabilisticModels()
}

// Score runs every selected model against one feature vector and returns
// the per-model probability of the attack class. selected == nil scores all
// loaded models. Unknown or non-probabilistic models are skipped; the scaler
// is applied exactly once.
func (e *Ensemble) Score(vec feature.Vector, selected []string) map[string]float64 {
	row := make([]float64, len(e.columnOrder))
	for i, src := range e.columnOrder {
		row[i] = vec[src]
	}
	scaled := e.scaler.Transform(row)

	names := selected
	if len(names) == 0 {
		names = e.probabilisticModels()
	}

	probs := make(map[string]float64, len(names))
	for _, name := range names {
		bundle, ok := e.bundles[name]
		if !ok {
			log.Printf("Warning: requested model '%s' is not loaded, skipping", name)
			continue
		}
		if !bundle.HasProbability {
			// Capability recorded at load time; nothing to probe here.
			continue
		}
		probs[name] = bundle.Probability(scaled)
	}
	return probs
}
