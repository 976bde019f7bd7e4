package util

import (
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "1234567.89", want: "1234567.89"},
		{name: "dot grouped", input: "1.234.567,89", want: "1234567.89"},
		{name: "comma grouped", input: "1,234,567.89", want: "1234567.89"},
		{name: "decimal comma", input: "1250,5", want: "1250.5"},
		{name: "currency sign", input: "$2500", want: "2500"},
		{name: "negative grouped", input: "-1.250.000", want: "-1250000"},
		{name: "integer", input: "48", want: "48"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.input)
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tc.want {
				t.Fatalf("got %s want %s", got.String(), tc.want)
			}
		})
	}

	if _, err := ParseAmount("  "); err == nil {
		t.Fatal("expected error for empty amount")
	}
	if _, err := ParseAmount("n/a"); err == nil {
		t.Fatal("expected error for junk amount")
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		input string
	}{
		{name: "iso", input: "2025-03-14"},
		{name: "slash dmy", input: "14/03/2025"},
		{name: "dash dmy", input: "14-03-2025"},
		{name: "iso with time", input: "2025-03-14 16:20:00"},
		{name: "excelize serial render", input: "03-14-25"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDate(tc.input)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(want) {
				t.Fatalf("got %v want %v", got, want)
			}
		})
	}

	if _, err := ParseDate(""); err == nil {
		t.Fatal("expected error for empty date")
	}
	if _, err := ParseDate("marzo 14"); err == nil {
		t.Fatal("expected error for unrecognized date")
	}
}
