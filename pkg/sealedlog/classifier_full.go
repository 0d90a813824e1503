package sealedlog

// fullWindow is the prefix inspected by the plaintext gate.
const fullWindow = 100

// FullClassifier inspects a 100 byte prefix and the complete byte histogram.
// Its cost grows linearly with the payload.
type FullClassifier struct{}

// Profile returns ProfileFull.
func (FullClassifier) Profile() Profile {
	return ProfileFull
}

// Evaluate runs the length, plaintext and entropy gates in order.
func (FullClassifier) Evaluate(payload []byte) Verdict {
	if len(payload) < MinLength {
		return reject(ReasonTooShort)
	}
	if looksLikePlaintext(payload, fullWindow) {
		return reject(ReasonLooksLikePlaintext)
	}

	// A payload shorter than the alphabet can at best use len distinct values.
	denominator := len(payload)
	if denominator > 256 {
		denominator = 256
	}
	if uniqueBytes(payload)*100/denominator < entropyPercent {
		return reject(ReasonLowEntropy)
	}
	return accept()
}
