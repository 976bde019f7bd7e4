package recon

import "conciliar/internal"

// Classifier thresholds a best score into the three confidence bands.
// Classification is recomputed on every analyze call; it is never persisted
// and never demotes an already linked document.
type Classifier struct {
	AutoThreshold   float64
	ReviewThreshold float64
}

func (c Classifier) Classify(score float64) internal.MatchStatus {
	switch {
	case score >= c.AutoThreshold:
		return internal.MatchAutomatic
	case score >= c.ReviewThreshold:
		return internal.MatchPossible
	default:
		return internal.MatchNone
	}
}
