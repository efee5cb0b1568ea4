package utils

import "testing"

func TestNormalizeSignature(t *testing.T) {
	cases := []struct {
		name      string
		text      string
		minLength int
		maxLength int
		want      string
	}{
		{"lowercases and strips punctuation", "Buy NOW!!! Cheap крипта...", 5, 64, "buy now cheap крипта"},
		{"collapses whitespace", "a  lot\t of   space here", 5, 64, "a lot of space here"},
		{"too short returns empty", "hi", 5, 64, ""},
		{"truncates to max", "abcdefghij", 4, 6, "abcdef"},
		{"punctuation only returns empty", "!!! ??? ...", 1, 64, ""},
	}
	for _, tc := range cases {
		if got := NormalizeSignature(tc.text, tc.minLength, tc.maxLength); got != tc.want {
			t.Fatalf("%s: NormalizeSignature = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestUniqueTokenRatio(t *testing.T) {
	if got := UniqueTokenRatio("spam spam spam spam spam spam spam spam spam spam", 10); got != 0.1 {
		t.Fatalf("all-repeats ratio = %v, want 0.1", got)
	}
	if got := UniqueTokenRatio("short text", 10); got != 1 {
		t.Fatalf("below minTokens ratio = %v, want 1", got)
	}
	if got := UniqueTokenRatio("a b c d e f g h i j", 10); got != 1 {
		t.Fatalf("all-distinct ratio = %v, want 1", got)
	}
}

func TestMaxRunLength(t *testing.T) {
	if got := MaxRunLength("heeeeello"); got != 5 {
		t.Fatalf("MaxRunLength = %d, want 5", got)
	}
	if got := MaxRunLength(""); got != 0 {
		t.Fatalf("MaxRunLength of empty = %d, want 0", got)
	}
	if got := MaxRunLength("abc"); got != 1 {
		t.Fatalf("MaxRunLength of distinct = %d, want 1", got)
	}
}
