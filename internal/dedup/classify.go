package dedup

// Tier is the coarse similarity classification of a best-match score.
type Tier string

const (
	TierUnique    Tier = "unique"
	TierAmbiguous Tier = "ambiguous"
	TierDuplicate Tier = "duplicate"
)

// DefaultAmbiguousThreshold and DefaultDuplicateThreshold are the
// load-bearing tier boundaries: scores at or above the duplicate threshold
// are auto-discarded, scores below the ambiguous threshold are unique, and
// everything in between goes to arbitration.
const (
	DefaultAmbiguousThreshold = 0.75
	DefaultDuplicateThreshold = 0.90
)

// Classify maps a similarity score to a tier. Pure, no I/O.
func Classify(score, ambiguousThreshold, duplicateThreshold float64) Tier {
	switch {
	case score >= duplicateThreshold:
		return TierDuplicate
	case score < ambiguousThreshold:
		return TierUnique
	default:
		return TierAmbiguous
	}
}
