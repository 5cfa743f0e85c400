// Package calibration rates the tracker's calibration quality.
package calibration

// Result is the summary of a tracker calibration run.
type Result struct {
	Succeeded          bool    `json:"result"`
	AverageErrorDegree float64 `json:"deg"`
	AverageErrorLeft   float64 `json:"degl"`
	AverageErrorRight  float64 `json:"degr"`
}

// Rating labels.
const (
	LabelError    = "ERROR"
	LabelPerfect  = "PERFECT"
	LabelGood     = "GOOD"
	LabelModerate = "MODERATE"
	LabelPoor     = "POOR"
	LabelRedo     = "REDO"
)

// thresholds are upper bounds on average error in degrees, best first.
var thresholds = []struct {
	maxDeg float64
	rating int
	label  string
}{
	{0.5, 5, LabelPerfect},
	{0.7, 4, LabelGood},
	{1.0, 3, LabelModerate},
	{1.5, 2, LabelPoor},
}

// Rate returns a rating from 1 (redo) to 5 (perfect) and its label.
// A nil result rates -1 with LabelError.
func Rate(r *Result) (int, string) {
	if r == nil {
		return -1, LabelError
	}
	for _, t := range thresholds {
		if r.AverageErrorDegree < t.maxDeg {
			return t.rating, t.label
		}
	}
	return 1, LabelRedo
}
