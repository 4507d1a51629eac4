package classify

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/cormorant-bio/indelclass/internal/features"
)

// forestArtifact is the on-disk layout of a native model: gzipped JSON
// holding each tree as flat node arrays with per-leaf class counts.
type forestArtifact struct {
	Schema    string       `json:"schema"`
	NFeatures int          `json:"n_features"`
	Classes   []string     `json:"classes"`
	Trees     []forestTree `json:"trees"`
}

type forestTree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// Forest is a random-forest model backend. Prediction is the mean of
// the per-tree leaf class distributions. Read-only after load; safe for
// concurrent use.
type Forest struct {
	trees     []forestTree
	nFeatures int
	// classIdx maps the artifact's class column order onto the
	// canonical (somatic, germline, artifact) order.
	classIdx [3]int
}

// LoadForest reads and validates a forest artifact. Dimensionality and
// schema-version disagreements surface as SchemaMismatchError.
func LoadForest(path string) (*Forest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}

	var a forestArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}

	name := filepath.Base(path)
	if err := features.CheckVersion(name, a.Schema); err != nil {
		return nil, err
	}
	if err := features.CheckWidth(name, a.NFeatures); err != nil {
		return nil, err
	}

	classIdx, err := classIndex(a.Classes)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}

	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("model %s: no trees", name)
	}
	for i := range a.Trees {
		if err := a.Trees[i].validate(a.NFeatures, len(a.Classes)); err != nil {
			return nil, fmt.Errorf("model %s tree %d: %w", name, i, err)
		}
	}

	return &Forest{trees: a.Trees, nFeatures: a.NFeatures, classIdx: classIdx}, nil
}

// classIndex maps artifact class columns onto canonical order.
func classIndex(classes []string) ([3]int, error) {
	var idx [3]int
	if len(classes) != 3 {
		return idx, fmt.Errorf("expected 3 classes, found %d", len(classes))
	}
	seen := 0
	for col, c := range classes {
		switch Label(c) {
		case LabelSomatic:
			idx[ClassSomatic] = col
		case LabelGermline:
			idx[ClassGermline] = col
		case LabelArtifact:
			idx[ClassArtifact] = col
		default:
			return idx, fmt.Errorf("unknown class %q", c)
		}
		seen++
	}
	if seen != 3 {
		return idx, fmt.Errorf("classes %v incomplete", classes)
	}
	return idx, nil
}

func (t *forestTree) validate(nFeatures, nClasses int) error {
	n := len(t.ChildrenLeft)
	if len(t.ChildrenRight) != n || len(t.Feature) != n ||
		len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays disagree on length")
	}
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	for i := 0; i < n; i++ {
		if t.ChildrenLeft[i] >= n || t.ChildrenRight[i] >= n {
			return fmt.Errorf("node %d: child out of range", i)
		}
		if t.ChildrenLeft[i] >= 0 && t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, t.Feature[i])
		}
		if len(t.Value[i]) != nClasses {
			return fmt.Errorf("node %d: %d class counts", i, len(t.Value[i]))
		}
	}
	return nil
}

// leaf walks the tree for one vector and returns the leaf node index.
func (t *forestTree) leaf(x []float64) int {
	i := 0
	for t.ChildrenLeft[i] >= 0 {
		if x[t.Feature[i]] <= t.Threshold[i] {
			i = t.ChildrenLeft[i]
		} else {
			i = t.ChildrenRight[i]
		}
	}
	return i
}

// Probs returns the mean of the per-tree leaf class distributions.
func (f *Forest) Probs(x []float64) ([3]float64, error) {
	var out [3]float64
	if len(x) != f.nFeatures {
		return out, fmt.Errorf("vector has %d features, model expects %d", len(x), f.nFeatures)
	}

	for ti := range f.trees {
		t := &f.trees[ti]
		counts := t.Value[t.leaf(x)]

		var total float64
		for _, c := range counts {
			total += c
		}
		if total == 0 {
			continue
		}
		for class, col := range f.classIdx {
			out[class] += counts[col] / total
		}
	}

	n := float64(len(f.trees))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}

// Close satisfies Model; a forest holds no resources.
func (f *Forest) Close() error {
	return nil
}
