package util

import "testing"

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "ab\x00cd\x01\x02\n\txy"
	out := SanitizeText(in)
	if out != "abcd\n\txy" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}

func TestExcerptTruncates(t *testing.T) {
	in := "one  two\nthree four five"
	out := Excerpt(in, 13)
	if out != "one two three..." {
		t.Fatalf("unexpected excerpt: %q", out)
	}
	if Excerpt("short", 100) != "short" {
		t.Fatalf("short input should pass through unchanged")
	}
}
