package classifier

import "fmt"

// Class labels. The positive class always encodes to 1, independent of alphabetical order.
const (
	LabelNormal    = "normal"
	LabelEmergency = "emergency"
)

// Labels maps class indices to names. Classes[1] is the positive class.
type Labels struct {
	Classes []string `json:"classes"`
}

// DefaultLabels returns the binary normal/emergency encoding.
func DefaultLabels() Labels {
	return Labels{Classes: []string{LabelNormal, LabelEmergency}}
}

// Encode returns the numeric target for label.
func (l Labels) Encode(label string) (float64, error) {
	for i, class := range l.Classes {
		if class == label {
			return float64(i), nil
		}
	}

	return 0, fmt.Errorf("unknown class label %q", label)
}

// Decode returns the name of class index. Out of range indices decode to the empty string.
func (l Labels) Decode(index int) string {
	if index < 0 || index >= len(l.Classes) {
		return ""
	}

	return l.Classes[index]
}

func (l Labels) valid() bool {
	return len(l.Classes) == 2 && l.Classes[1] == LabelEmergency && l.Classes[0] != l.Classes[1]
}
