// Package classify resolves feature vectors to class labels through
// pre-trained ensemble models, subject to deterministic override rules.
package classify

// Label is the classification outcome for one record.
type Label string

const (
	LabelSomatic      Label = "somatic"
	LabelGermline     Label = "germline"
	LabelArtifact     Label = "artifact"
	LabelUnclassified Label = "unclassified"
)

// Class indices in probability order.
const (
	ClassSomatic = iota
	ClassGermline
	ClassArtifact
)

// classLabels maps class indices onto labels.
var classLabels = [3]Label{LabelSomatic, LabelGermline, LabelArtifact}

// Source says which rule produced a result.
type Source string

const (
	SourceModel        Source = "model"
	SourcePanel        Source = "panel_override"
	SourceInsufficient Source = "insufficient_evidence"
)

// Result is the classification of one record. Probs holds (somatic,
// germline, artifact) and sums to 1 when Source is SourceModel.
type Result struct {
	Label  Label
	Probs  [3]float64
	Source Source
}

// Model is the capability the ensemble requires of a backend: given a
// feature vector in schema order, return per-class probabilities.
type Model interface {
	Probs(x []float64) ([3]float64, error)
	Close() error
}

// Buckets partition records by indel length, mirroring the per-length
// model artifacts.
const (
	BucketSingle = "single" // 1-base indels
	BucketMulti  = "multi"  // longer indels
)

// BucketFor returns the model bucket for an indel length.
func BucketFor(length int) string {
	if length <= 1 {
		return BucketSingle
	}
	return BucketMulti
}

// labelFor picks the highest-probability class. Ties resolve by the
// fixed priority artifact > germline > somatic.
func labelFor(p [3]float64) Label {
	best := ClassArtifact
	for _, i := range []int{ClassGermline, ClassSomatic} {
		if p[i] > p[best] {
			best = i
		}
	}
	return classLabels[best]
}
