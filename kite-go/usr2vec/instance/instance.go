package instance

import "github.com/pkg/errors"

// Instance is one user's training data.
type Instance struct {
	User int
	// Train and Test are messages, each a sequence of word ids
	Train [][]int
	Test  [][]int
	// CondProbs[i] holds one log conditional context probability per
	// position of Train[i], or is empty
	CondProbs [][]float64
	// NegSamples is nil until the instance has been augmented; afterwards
	// NegSamples[i][j] holds the negative samples for position j of Train[i]
	NegSamples [][][]int
}

// Augmented returns true if negative samples have been attached.
func (i *Instance) Augmented() bool {
	return i.NegSamples != nil
}

// Validate checks that the per-message fields are aligned with Train. If
// negSize > 0 every position must also carry exactly negSize negative samples.
func (i *Instance) Validate(negSize int) error {
	if len(i.CondProbs) != 0 && len(i.CondProbs) != len(i.Train) {
		return errors.Errorf("user %d: %d cond prob groups for %d train messages", i.User, len(i.CondProbs), len(i.Train))
	}
	for m, cp := range i.CondProbs {
		if len(cp) != 0 && len(cp) != len(i.Train[m]) {
			return errors.Errorf("user %d: message %d has %d tokens but %d cond probs", i.User, m, len(i.Train[m]), len(cp))
		}
	}
	if !i.Augmented() {
		return nil
	}
	if len(i.NegSamples) != len(i.Train) {
		return errors.Errorf("user %d: %d negative sample groups for %d train messages", i.User, len(i.NegSamples), len(i.Train))
	}
	for m, neg := range i.NegSamples {
		if len(neg) != len(i.Train[m]) {
			return errors.Errorf("user %d: message %d has %d tokens but %d negative sample sets", i.User, m, len(i.Train[m]), len(neg))
		}
		if negSize <= 0 {
			continue
		}
		for j, set := range neg {
			if len(set) != negSize {
				return errors.Errorf("user %d: message %d position %d has %d negative samples, expected %d", i.User, m, j, len(set), negSize)
			}
		}
	}
	return nil
}

// CondProbsFor returns the cond probs for train message m, or nil.
func (i *Instance) CondProbsFor(m int) []float64 {
	if m < len(i.CondProbs) {
		return i.CondProbs[m]
	}
	return nil
}

// SameContent returns true if a and b agree on every field other than
// NegSamples. Nil and empty slices are considered equal.
func SameContent(a, b *Instance) bool {
	if a.User != b.User || !equalInts2(a.Train, b.Train) || !equalInts2(a.Test, b.Test) {
		return false
	}
	if len(a.CondProbs) != len(b.CondProbs) {
		return false
	}
	for m := range a.CondProbs {
		if len(a.CondProbs[m]) != len(b.CondProbs[m]) {
			return false
		}
		for j := range a.CondProbs[m] {
			if a.CondProbs[m][j] != b.CondProbs[m][j] {
				return false
			}
		}
	}
	return true
}

func equalInts2(a, b [][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for r := range a {
		if len(a[r]) != len(b[r]) {
			return false
		}
		for j := range a[r] {
			if a[r][j] != b[r][j] {
				return false
			}
		}
	}
	return true
}
