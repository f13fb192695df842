package ensemble

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Bundle is one loaded classifier: an opaque predictor plus the exact
// ordered feature list it expects and a capability flag for calibrated
// probability output. The flag is recorded once at load time so the scoring
// path never probes for missing capabilities per flow.
type Bundle struct {
	Name           string
	Type           string
	FeatureNames   []string
	HasProbability bool

	predict func(x []float64) float64
}

// Probability returns the calibrated probability of the positive (attack)
// class for a scaled feature row. A bundle without calibrated output
// (HasProbability false) always returns 0.
func (b *Bundle) Probability(x []float64) float64 {
	if b.predict == nil {
		return 0
	}
	return b.predict(x)
}

// bundleFile is the on-disk artifact layout. Fields beyond Type and
// FeatureNames are model-type specific.
type bundleFile struct {
	Type         string    `json:"type"`
	FeatureNames []string  `json:"feature_names"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Trees        []tree    `json:"trees"`
	LearningRate float64   `json:"learning_rate"`
	BaseScore    float64   `json:"base_score"`
}

// tree is a flattened decision tree in the usual exported form: parallel
// node arrays where children index -1 marks a leaf.
type tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

func (t *tree) validate(numFeatures int) error {
	n := len(t.ChildrenLeft)
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("inconsistent tree node arrays")
	}
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	for i := 0; i < n; i++ {
		if t.ChildrenLeft[i] >= n || t.ChildrenRight[i] >= n {
			return fmt.Errorf("tree child index out of range at node %d", i)
		}
		if t.ChildrenLeft[i] >= 0 && t.Feature[i] >= numFeatures {
			return fmt.Errorf("tree split feature %d out of range at node %d", t.Feature[i], i)
		}
	}
	return nil
}

// leaf descends to the leaf node for a feature row and returns its value row.
func (t *tree) leaf(x []float64) []float64 {
	node := 0
	for t.ChildrenLeft[node] >= 0 {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// LoadBundle reads and validates one model artifact.
func LoadBundle(name, path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	var bf bundleFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model artifact: %w", err)
	}
	if len(bf.FeatureNames) == 0 {
		return nil, fmt.Errorf("model artifact declares no feature names")
	}

	b := &Bundle{
		Name:         name,
		Type:         bf.Type,
		FeatureNames: bf.FeatureNames,
	}
	numFeatures := len(bf.FeatureNames)

	switch bf.Type {
	case "logistic":
		if len(bf.Coefficients) != numFeatures {
			return nil, fmt.Errorf("logistic model has %d coefficients for %d features",
				len(bf.Coefficients), numFeatures)
		}
		coef, intercept := bf.Coefficients, bf.Intercept
		b.HasProbability = true
		b.predict = func(x []float64) float64 {
			return sigmoid(dot(coef, x) + intercept)
		}

	case "forest":
		trees, err := validateTrees(bf.Trees, numFeatures)
		if err != nil {
			return nil, err
		}
		b.HasProbability = true
		b.predict = func(x []float64) float64 {
			sum := 0.0
			for i := range trees {
				sum += leafClassProbability(trees[i].leaf(x))
			}
			return sum / float64(len(trees))
		}

	case "gbdt":
		trees, err := validateTrees(bf.Trees, numFeatures)
		if err != nil {
			return nil, err
		}
		rate, base := bf.LearningRate, bf.BaseScore
		if rate == 0 {
			rate = 1
		}
		b.HasProbability = true
		b.predict = func(x []float64) float64 {
			margin := base
			for i := range trees {
				margin += rate * trees[i].leaf(x)[0]
			}
			return sigmoid(margin)
		}

	case "linear_svm":
		if len(bf.Coefficients) != numFeatures {
			return nil, fmt.Errorf("linear_svm model has %d coefficients for %d features",
				len(bf.Coefficients), numFeatures)
		}
		// Uncalibrated margin only: the ensemble skips this model for
		// probability scoring.
		b.HasProbability = false

	default:
		return nil, fmt.Errorf("unknown model type %q", bf.Type)
	}

	return b, nil
}

func validateTrees(trees []tree, numFeatures int) ([]tree, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("tree model contains no trees")
	}
	for i := range trees {
		if err := trees[i].validate(numFeatures); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return trees, nil
}

// leafClassProbability converts a leaf's class-count row to the probability
// of the positive class.
func leafClassProbability(value []float64) float64 {
	if len(value) < 2 {
		return 0
	}
	total := value[0] + value[1]
	if total == 0 {
		return 0
	}
	return value[1] / total
}
