package sealedlog

import (
	"fmt"
	"strings"
)

// Profile selects a classifier tier.
type Profile string

// Classifier profiles, ordered by cost.
const (
	ProfileNone  Profile = "none"
	ProfileLight Profile = "light"
	ProfileFull  Profile = "full"
)

// IsValid reports whether p names a known profile.
func (p Profile) IsValid() bool {
	switch p {
	case ProfileNone, ProfileLight, ProfileFull:
		return true
	}
	return false
}

// ParseProfile maps a case-insensitive profile name to a Profile.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown classifier profile %q (use none, light or full)", s)
	}
	return p, nil
}

// Reason explains a classifier verdict.
type Reason string

const (
	ReasonLooksEncrypted     Reason = "looks_encrypted"
	ReasonTooShort           Reason = "too_short"
	ReasonLooksLikePlaintext Reason = "looks_like_plaintext"
	ReasonLowEntropy         Reason = "low_entropy"
	// ReasonUnchecked is reported by the no-op classifier.
	ReasonUnchecked Reason = "unchecked"
)

// Verdict is the outcome of evaluating a payload.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason"`
}

// Classifier decides whether a payload is plausible ciphertext.
// Implementations are pure and safe for concurrent use.
type Classifier interface {
	Evaluate(payload []byte) Verdict
	Profile() Profile
}

// Shared thresholds. All comparisons are integer percentages with floor division.
const (
	// MinLength is the shortest payload any profile will accept.
	MinLength = 40

	plaintextPercent = 90
	entropyPercent   = 60
)

// NewClassifier returns the classifier for profile.
func NewClassifier(profile Profile) (Classifier, error) {
	switch profile {
	case ProfileNone:
		return NoopClassifier{}, nil
	case ProfileLight:
		return LightClassifier{}, nil
	case ProfileFull:
		return FullClassifier{}, nil
	default:
		return nil, fmt.Errorf("unknown classifier profile %q", profile)
	}
}

func accept() Verdict {
	return Verdict{Accepted: true, Reason: ReasonLooksEncrypted}
}

func reject(reason Reason) Verdict {
	return Verdict{Reason: reason}
}

// looksLikePlaintext inspects the first window bytes of payload.
func looksLikePlaintext(payload []byte, window int) bool {
	if window > len(payload) {
		window = len(payload)
	}
	if window == 0 {
		return false
	}

	printable, spaces := 0, 0
	for _, b := range payload[:window] {
		if b >= 32 && b <= 126 {
			printable++
		}
		if b == ' ' {
			spaces++
		}
	}
	return printable*100/window > plaintextPercent && spaces > 0
}

// byteHistogram counts distinct byte values. It stays on the stack.
type byteHistogram [256]int

func (h *byteHistogram) add(b byte) {
	h[b]++
}

func (h *byteHistogram) unique() int {
	n := 0
	for _, c := range h {
		if c > 0 {
			n++
		}
	}
	return n
}

func uniqueBytes(payload []byte) int {
	var h byteHistogram
	for _, b := range payload {
		h.add(b)
	}
	return h.unique()
}
