package schema

import (
	"fmt"
	"strings"
)

// DetectionKind is the lifecycle state of a Detection.
type DetectionKind uint8

const (
	// ModelDetection is produced by an external detector or classifier.
	ModelDetection DetectionKind = iota
	// ActiveDetection was selected by the active-learning sampler for review.
	ActiveDetection
	// UserDetection carries a definitive human label recorded in an Oracle.
	UserDetection
)

var kindNames = [...]string{
	ModelDetection:  "model",
	ActiveDetection: "active",
	UserDetection:   "user",
}

// Valid reports whether k is one of the known kinds.
func (k DetectionKind) Valid() bool {
	return int(k) < len(kindNames)
}

func (k DetectionKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k DetectionKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, violation("detection", "kind", "unknown code %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (k *DetectionKind) UnmarshalText(text []byte) error {
	parsed, ok := ParseDetectionKind(string(text))
	if !ok {
		return violation("detection", "kind", "unknown value %q", string(text))
	}
	*k = parsed
	return nil
}

// ParseDetectionKind converts a name (model, active, user) into a kind.
func ParseDetectionKind(value string) (DetectionKind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for idx, name := range kindNames {
		if name == normalized {
			return DetectionKind(idx), true
		}
	}
	return 0, false
}

// CanTransition reports whether a detection of kind k may move to next.
// Repeated review keeps a UserDetection in place; no transition goes backward.
func (k DetectionKind) CanTransition(next DetectionKind) bool {
	switch {
	case k == ModelDetection && next == ActiveDetection:
		return true
	case k == ActiveDetection && next == UserDetection:
		return true
	case k == UserDetection && next == UserDetection:
		return true
	default:
		return false
	}
}

// Transition returns next when the move is allowed.
func (k DetectionKind) Transition(next DetectionKind) (DetectionKind, error) {
	if !k.Valid() || !next.Valid() || !k.CanTransition(next) {
		return k, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, k, next)
	}
	return next, nil
}
