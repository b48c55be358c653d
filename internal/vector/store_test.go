package vector

import "testing"

func TestToLiteral(t *testing.T) {
	got := ToLiteral([]float32{0.5, -1, 0})
	if got != "[0.5,-1,0]" {
		t.Fatalf("unexpected literal: %s", got)
	}
}

func TestToLiteralEmpty(t *testing.T) {
	if got := ToLiteral(nil); got != "[]" {
		t.Fatalf("unexpected literal for empty vector: %s", got)
	}
}
