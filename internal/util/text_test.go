package util

import (
	"math"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercase", input: "distribuidora norte", want: "DISTRIBUIDORA NORTE"},
		{name: "padding", input: "  ACME SAS  ", want: "ACME SAS"},
		{name: "inner spaces", input: "ACME   DEL\tSUR", want: "ACME DEL SUR"},
		{name: "already clean", input: "ACME", want: "ACME"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeName(tc.input); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestFirstRunes(t *testing.T) {
	if got := FirstRunes("DISTRIBUIDORA", 10); got != "DISTRIBUID" {
		t.Fatalf("got %q", got)
	}
	if got := FirstRunes("ACME", 10); got != "ACME" {
		t.Fatalf("got %q", got)
	}
	if got := FirstRunes("CAFÉS DEL SUR", 5); got != "CAFÉS" {
		t.Fatalf("got %q", got)
	}
}

func TestSimilarityRatio(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "ACME SAS", b: "ACME SAS", want: 1},
		{name: "disjoint", a: "ABC", b: "XYZ", want: 0},
		{name: "empty", a: "", b: "ACME", want: 0},
		{name: "one substitution", a: "ABCD", b: "ABXD", want: 0.75},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SimilarityRatio(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}

	// Legal-form suffixes should not tank the ratio.
	got := SimilarityRatio("DISTRIBUIDORA NORTE", "DISTRIBUIDORA NORTE SAS")
	if got < 0.9 {
		t.Fatalf("ratio too low: %v", got)
	}
}
