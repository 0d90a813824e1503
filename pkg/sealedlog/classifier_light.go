package sealedlog

const (
	lightWindow = 32
	// lightSampleSize bounds how many bytes the entropy gate reads.
	lightSampleSize = 64
	// sampledEntropyPercent is lower than entropyPercent since 64 samples
	// of random data collide more often than a full histogram would show.
	sampledEntropyPercent = 50
)

// LightClassifier inspects a 32 byte prefix and at most 64 sampled positions,
// so its cost is independent of payload size.
type LightClassifier struct{}

// Profile returns ProfileLight.
func (LightClassifier) Profile() Profile {
	return ProfileLight
}

// Evaluate runs the length, plaintext and entropy gates in order.
func (LightClassifier) Evaluate(payload []byte) Verdict {
	n := len(payload)
	if n < MinLength {
		return reject(ReasonTooShort)
	}
	if looksLikePlaintext(payload, lightWindow) {
		return reject(ReasonLooksLikePlaintext)
	}

	if n <= lightSampleSize {
		if uniqueBytes(payload)*100/n < entropyPercent {
			return reject(ReasonLowEntropy)
		}
		return accept()
	}

	var h byteHistogram
	for i := 0; i < lightSampleSize; i++ {
		h.add(payload[i*n/lightSampleSize])
	}
	if h.unique()*100/lightSampleSize < sampledEntropyPercent {
		return reject(ReasonLowEntropy)
	}
	return accept()
}
