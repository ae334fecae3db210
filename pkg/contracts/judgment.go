package contracts

// Verdict is one point on the closed six-point ordinal scale, from
// "participant 1 fully right" to "participant 2 fully right".
type Verdict string

const (
	VerdictP1Right      Verdict = "p1_right"
	VerdictP1MoreRight  Verdict = "p1_more_right"
	VerdictBothRight    Verdict = "both_right"
	VerdictNeitherRight Verdict = "neither_right"
	VerdictP2MoreRight  Verdict = "p2_more_right"
	VerdictP2Right      Verdict = "p2_right"
)

// Verdicts lists the scale in order. No other value is ever persisted.
var Verdicts = []Verdict{
	VerdictP1Right,
	VerdictP1MoreRight,
	VerdictBothRight,
	VerdictNeitherRight,
	VerdictP2MoreRight,
	VerdictP2Right,
}

// Valid reports whether v is on the scale.
func (v Verdict) Valid() bool {
	for _, allowed := range Verdicts {
		if v == allowed {
			return true
		}
	}
	return false
}

// DisputedFact states one contested topic with each side's version restated
// neutrally.
type DisputedFact struct {
	Topic     string `json:"topic"`
	P1Version string `json:"p1_version"`
	P2Version string `json:"p2_version"`
}

// SanitizedRecord is the tone-free factual record produced by the first
// judgment phase. The verdict phase sees only this record, never the raw
// narrative.
type SanitizedRecord struct {
	P1FactualClaims    []string       `json:"p1_factual_claims"`
	P2FactualClaims    []string       `json:"p2_factual_claims"`
	AgreedFacts        []string       `json:"agreed_facts"`
	DisputedFacts      []DisputedFact `json:"disputed_facts"`
	DocumentedEvidence []string       `json:"documented_evidence"`
	P1DesiredOutcome   string         `json:"p1_desired_outcome"`
	P2DesiredOutcome   string         `json:"p2_desired_outcome"`
}

// Judgment is the terminal artifact of a session.
type Judgment struct {
	Verdict             Verdict          `json:"verdict"`
	P1CorrectBehaviors  []string         `json:"p1_correct_behaviors"`
	P1WrongBehaviors    []string         `json:"p1_wrong_behaviors"`
	P2CorrectBehaviors  []string         `json:"p2_correct_behaviors"`
	P2WrongBehaviors    []string         `json:"p2_wrong_behaviors"`
	Justification       string           `json:"justification"`
	Sanitized           *SanitizedRecord `json:"sanitized_record,omitempty"`
}
