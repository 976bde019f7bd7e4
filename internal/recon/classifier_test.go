package recon

import (
	"testing"

	"conciliar/internal"
)

func TestClassify(t *testing.T) {
	c := Classifier{AutoThreshold: 0.80, ReviewThreshold: 0.50}

	cases := []struct {
		name  string
		score float64
		want  internal.MatchStatus
	}{
		{name: "high confidence", score: 0.95, want: internal.MatchAutomatic},
		{name: "auto boundary inclusive", score: 0.80, want: internal.MatchAutomatic},
		{name: "just below auto", score: 0.7999, want: internal.MatchPossible},
		{name: "review boundary inclusive", score: 0.50, want: internal.MatchPossible},
		{name: "just below review", score: 0.4999, want: internal.MatchNone},
		{name: "zero", score: 0, want: internal.MatchNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Classify(tc.score); got != tc.want {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}
