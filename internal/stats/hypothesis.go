package stats

import "fmt"

// Significance is the fixed rejection threshold: p <= 0.05 rejects.
const Significance = 0.05

// Hypothesis is the outcome of comparing two named samples.
type Hypothesis struct {
	First, Second string
	Alternative   Alternative
	Test          MannWhitney
	Reject        bool
	Null          string
	Claim         string // statement of the alternative hypothesis
}

// TestHypothesis runs a Mann-Whitney U test of first against second.
func TestHypothesis(firstName string, first []float64, secondName string, second []float64, alt Alternative) (Hypothesis, error) {
	mw, err := MannWhitneyU(first, second, alt)
	if err != nil {
		return Hypothesis{}, fmt.Errorf("%s vs %s: %w", firstName, secondName, err)
	}
	h := Hypothesis{
		First:       firstName,
		Second:      secondName,
		Alternative: alt,
		Test:        mw,
		Reject:      mw.PValue <= Significance,
		Null: fmt.Sprintf("the distribution of %s times is the same as the distribution of %s times",
			firstName, secondName),
	}
	switch alt {
	case TwoSided:
		h.Claim = fmt.Sprintf("the distribution underlying %s differs from the distribution underlying %s",
			firstName, secondName)
	default:
		h.Claim = fmt.Sprintf("the distribution underlying %s is stochastically %s than the distribution underlying %s",
			firstName, alt, secondName)
	}
	return h, nil
}

// Decision renders the outcome as a single line.
func (h Hypothesis) Decision() string {
	if h.Reject {
		return "REJECT NULL HYPOTHESIS: " + h.Null
	}
	return "FAILS TO REJECT NULL HYPOTHESIS: " + h.Null
}
