package contracts

import "time"

// IdentityGuess is an inferred role for one participant with a confidence
// in [0,1].
type IdentityGuess struct {
	Identity   string  `json:"identity"`
	Confidence float64 `json:"confidence"`
}

// RelationshipGuess is the inferred relationship between the two parties.
type RelationshipGuess struct {
	Type       string  `json:"type"`
	Details    string  `json:"details,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Profile is the evolving, confidence-scored inference of who each
// participant is and how they relate. It is replaced wholesale after each
// stage; merging is the accumulator's responsibility, never the caller's.
type Profile struct {
	P1           IdentityGuess     `json:"p1"`
	P2           IdentityGuess     `json:"p2"`
	Relationship RelationshipGuess `json:"relationship"`
	Clues        []string          `json:"clues,omitempty"`
	LastStage    Stage             `json:"last_stage,omitempty"`
	UpdatedAt    time.Time         `json:"last_updated"`
}

// UnknownProfile returns the fully-unknown, zero-confidence shell used when
// no inference has been made (or every attempt failed).
func UnknownProfile() *Profile {
	return &Profile{
		P1:           IdentityGuess{Identity: "unknown"},
		P2:           IdentityGuess{Identity: "unknown"},
		Relationship: RelationshipGuess{Type: "unknown"},
		Clues:        []string{},
	}
}

// Known reports whether the profile carries any identity inference at all.
func (p *Profile) Known() bool {
	if p == nil {
		return false
	}
	return (p.P1.Identity != "" && p.P1.Identity != "unknown") ||
		(p.P2.Identity != "" && p.P2.Identity != "unknown")
}
