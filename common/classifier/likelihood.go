package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Likelihood is the ordinal explicit-content likelihood reported per frame
type Likelihood int

const (
	Unknown Likelihood = iota
	VeryUnlikely
	Unlikely
	Possible
	Likely
	VeryLikely
)

var likelihoodNames = [...]string{
	Unknown:      "UNKNOWN",
	VeryUnlikely: "VERY_UNLIKELY",
	Unlikely:     "UNLIKELY",
	Possible:     "POSSIBLE",
	Likely:       "LIKELY",
	VeryLikely:   "VERY_LIKELY",
}

func (l Likelihood) String() string {
	if l < Unknown || l > VeryLikely {
		return fmt.Sprintf("Likelihood(%d)", int(l))
	}
	return likelihoodNames[l]
}

// ParseLikelihood accepts names like "LIKELY" or "very_likely"
func ParseLikelihood(s string) (Likelihood, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range likelihoodNames {
		if n == name {
			return Likelihood(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown likelihood %q", s)
}

// MarshalJSON encodes the likelihood by name
func (l Likelihood) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts either the name or the ordinal
func (l *Likelihood) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseLikelihood(name)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}

	var ordinal int
	if err := json.Unmarshal(data, &ordinal); err != nil {
		return fmt.Errorf("likelihood must be a string or integer: %w", err)
	}
	if ordinal < int(Unknown) || ordinal > int(VeryLikely) {
		return fmt.Errorf("likelihood %d out of range", ordinal)
	}
	*l = Likelihood(ordinal)
	return nil
}
