package voucher

import (
	"strings"
	"testing"
)

func TestRandomChars_InvalidLength(t *testing.T) {
	t.Parallel()

	if _, err := randomChars(0); err == nil {
		t.Fatalf("expected error for invalid length")
	}
}

func TestNewCode_Format(t *testing.T) {
	t.Parallel()

	code, err := NewCode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parts := strings.Split(code, "-")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %q", code)
	}
	if parts[0] != "GC" {
		t.Fatalf("expected GC prefix, got %q", code)
	}
	for _, part := range parts[1:] {
		if len(part) != 4 {
			t.Fatalf("expected 4-char groups, got %q", code)
		}
		for i := 0; i < len(part); i++ {
			if strings.IndexByte(alphabet, part[i]) == -1 {
				t.Fatalf("code contains invalid character %q", part[i])
			}
		}
	}
}

func TestNewCode_UniqueWithinSmallBatch(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		code, err := NewCode()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, exists := seen[code]; exists {
			t.Fatalf("duplicate code generated in small batch: %s", code)
		}
		seen[code] = struct{}{}
	}
}
