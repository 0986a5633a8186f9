package crypto

import "testing"

func TestGeneratorNextIsSixteenHexChars(t *testing.T) {
	g := NewGenerator()
	v := g.Next()
	if len(v) != 16 {
		t.Fatalf("expected 16 chars, got %d (%q)", len(v), v)
	}
	for _, r := range v {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') {
			t.Fatalf("expected lowercase hex, got %q", v)
		}
	}
}

func TestGeneratorMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 100; i++ {
		next := g.Next()
		if next <= prev {
			t.Fatalf("expected strictly increasing stamps, got %q then %q", prev, next)
		}
		prev = next
	}
}
