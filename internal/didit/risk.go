package didit

import "github.com/tidwall/gjson"

// Risk tiers.
const (
	TierLow    = "low"
	TierMedium = "medium"
	TierHigh   = "high"
)

// Verification results.
const (
	ResultApproved      = "approved"
	ResultDeclined      = "declined"
	ResultPendingReview = "pending_review"
)

// RiskScore is the outcome of scoring the data Didit extracted from a
// verification. Score is 0-100, higher is more trustworthy.
type RiskScore struct {
	Score        int    `json:"total_score"`
	Tier         string `json:"risk_tier"`
	AutoApproved bool   `json:"auto_approved"`
}

// Score weights the liveness, document and face match confidences (0-1) at
// 30 points each and awards the last 10 for a clean AML screen. A sanctions
// hit is always high risk.
func Score(extracted gjson.Result) RiskScore {
	points := 0.0
	for _, field := range []string{"liveness_score", "document_authenticity", "face_match_score"} {
		v := extracted.Get(field).Float()
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		points += v * 30
	}

	sanctioned := extracted.Get("sanctions_hit").Bool()
	flags := extracted.Get("aml_flags")
	if !sanctioned && (!flags.Exists() || len(flags.Array()) == 0) {
		points += 10
	}

	s := RiskScore{Score: int(points + 0.5)}
	switch {
	case sanctioned:
		s.Tier = TierHigh
	case s.Score >= 80:
		s.Tier = TierLow
		s.AutoApproved = true
	case s.Score >= 50:
		s.Tier = TierMedium
	default:
		s.Tier = TierHigh
	}
	return s
}

// Result maps a score to the verification outcome: auto-approved scores are
// approved, high risk is declined and the rest go to admin review.
func (s RiskScore) Result() string {
	switch {
	case s.AutoApproved:
		return ResultApproved
	case s.Tier == TierHigh:
		return ResultDeclined
	default:
		return ResultPendingReview
	}
}
