package harvest

import "strings"

// Label is the class assigned to a tweet by the file it was found in.
type Label string

// Supported labels.
const (
	LabelFake Label = "fake"
	LabelReal Label = "real"
)

// Tag is the value written to the first output column.
func (l Label) Tag() string {
	if l == LabelFake {
		return "False"
	}
	return "Factual"
}

// OutputFile is the per-batch dataset name for the label.
func (l Label) OutputFile() string {
	return string(l) + "_1.csv"
}

const sourceSuffix = "_tweets.csv"

// Classify labels a source file by name. Names containing "fake" win over
// "real"; anything else, or a name without the _tweets.csv suffix, is
// unrecognized.
func Classify(name string) (Label, bool) {
	n := strings.ToLower(name)
	if !strings.HasSuffix(n, sourceSuffix) {
		return "", false
	}
	switch {
	case strings.Contains(n, string(LabelFake)):
		return LabelFake, true
	case strings.Contains(n, string(LabelReal)):
		return LabelReal, true
	default:
		return "", false
	}
}
