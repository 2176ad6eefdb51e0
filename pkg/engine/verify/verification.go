package verify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusValidated Status = "VALIDATED"
	StatusExpired   Status = "EXPIRED"
)

// Correctness is a three-valued verdict. The zero value is Unknown and
// serializes to JSON null.
type Correctness int8

const (
	Unknown Correctness = iota
	Correct
	Incorrect
)

// Bool returns the verdict and whether one exists.
func (c Correctness) Bool() (value, ok bool) {
	switch c {
	case Correct:
		return true, true
	case Incorrect:
		return false, true
	}
	return false, false
}

func (c Correctness) String() string {
	switch c {
	case Correct:
		return "true"
	case Incorrect:
		return "false"
	}
	return "null"
}

func (c Correctness) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Correctness) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true":
		*c = Correct
	case "false":
		*c = Incorrect
	case "null":
		*c = Unknown
	default:
		return fmt.Errorf("is_correct: expected true, false or null, got %s", b)
	}
	return nil
}

// Verification is the verdict on one dependency edge. It is computed on demand
// and never stored.
type Verification struct {
	SourceID           string      `json:"source_id"`
	TargetID           string      `json:"target_id"`
	DetectedConfidence float64     `json:"detected_confidence"`
	EvidenceSources    []string    `json:"evidence_sources"`
	Status             Status      `json:"validation_status"`
	IsCorrect          Correctness `json:"is_correct"`
	LastSeen           *time.Time  `json:"last_seen,omitempty"`
	Notes              string      `json:"notes,omitempty"`
}

var _ json.Marshaler = Correctness(0)
