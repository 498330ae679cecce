package validate

import (
	"errors"
	"strings"
	"testing"
)

func TestOfferKey(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"pack_a":                true,
		"ab":                    true,
		"a":                     false,
		"Pack_A":                false,
		"pack-a":                false,
		"":                      false,
		strings.Repeat("a", 50): true,
		strings.Repeat("a", 51): false,
		"pack a":                false,
	}
	for in, want := range cases {
		if got := OfferKey(in); got != want {
			t.Fatalf("OfferKey(%q)=%v want %v", in, got, want)
		}
	}
}

type sample struct {
	Key   string `validate:"required,offerkey"`
	Label string `validate:"required,max=10"`
	Wait  string `validate:"duration"`
}

func TestStruct(t *testing.T) {
	t.Parallel()

	if err := Struct(sample{Key: "pack_a", Label: "Pack", Wait: "1s"}); err != nil {
		t.Fatalf("valid struct rejected: %v", err)
	}

	err := Struct(sample{Key: "BAD", Wait: "soon"})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"key must match", "label is required", "wait must be a Go duration"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
}
