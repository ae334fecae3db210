package contracts

// FactSource attributes an extracted fact to the participant(s) who stated it.
type FactSource string

const (
	SourceP1   FactSource = "p1"
	SourceP2   FactSource = "p2"
	SourceBoth FactSource = "both"
)

// Fact is an atomic, extracted, checkable claim. Facts are generated once
// per session and never mutated afterward.
type Fact struct {
	ID        int        `json:"id"`
	Statement string     `json:"statement"`
	Source    FactSource `json:"source"`
}

// VerificationStatus is a participant's stance on one fact.
type VerificationStatus string

const (
	VerifyAgree     VerificationStatus = "agree"
	VerifyDisagree  VerificationStatus = "disagree"
	VerifyPartially VerificationStatus = "partially"
)

// Valid reports whether v is a member of the verification enumeration.
func (v VerificationStatus) Valid() bool {
	return v == VerifyAgree || v == VerifyDisagree || v == VerifyPartially
}

// FactVerification is one participant's verdict on one fact.
type FactVerification struct {
	Status  VerificationStatus `json:"status"`
	Comment string             `json:"comment,omitempty"`
}

// VerificationSet maps a fact's position WITHIN THE FILTERED LIST THE
// PARTICIPANT SAW to their verification of it. The two participants see
// different filtered subsets, so the same index means different facts for
// each; never index a VerificationSet with a global fact position.
type VerificationSet map[int]FactVerification

// FactView is the filtered subset of facts one participant verifies,
// together with the stable-id index mapping. Each participant verifies the
// counter-party's claims: participant 1 sees facts sourced p2 or both,
// participant 2 sees facts sourced p1 or both. The mapping is computed once
// here rather than recomputed filter-then-index at every read site.
type FactView struct {
	Facts   []Fact      `json:"facts"`
	indexBy map[int]int // fact id -> position in Facts
}

// ViewFor constructs the fact view participant n verifies.
func ViewFor(all []Fact, n ParticipantNumber) FactView {
	counter := SourceP2
	if n == Participant2 {
		counter = SourceP1
	}
	v := FactView{indexBy: make(map[int]int)}
	for _, f := range all {
		if f.Source == counter || f.Source == SourceBoth {
			v.indexBy[f.ID] = len(v.Facts)
			v.Facts = append(v.Facts, f)
		}
	}
	return v
}

// Index returns the filtered position of the fact with the given stable id.
func (v FactView) Index(factID int) (int, bool) {
	i, ok := v.indexBy[factID]
	return i, ok
}

// Verification recovers, from a set indexed by filtered position, the
// verification for a global fact id.
func (v FactView) Verification(set VerificationSet, factID int) (FactVerification, bool) {
	i, ok := v.indexBy[factID]
	if !ok {
		return FactVerification{}, false
	}
	fv, ok := set[i]
	return fv, ok
}
