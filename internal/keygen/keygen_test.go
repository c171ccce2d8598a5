package keygen

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

// staticRegistry reports a fixed membership set.
type staticRegistry struct {
	taken map[string]bool
	all   bool
}

func (r *staticRegistry) KeyExists(_ context.Context, key string) (bool, error) {
	if r.all {
		return true, nil
	}
	return r.taken[key], nil
}

func TestCandidate_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z]{6}$`)
	for i := 0; i < 200; i++ {
		key := Candidate()
		if !pattern.MatchString(key) {
			t.Fatalf("candidate %q does not match ^[A-Z]{6}$", key)
		}
	}
}

func TestAllocate_ReturnsUnusedKey(t *testing.T) {
	reg := &staticRegistry{taken: map[string]bool{}}
	key, err := Allocate(context.Background(), reg)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(key) != KeyLength {
		t.Fatalf("expected %d-character key, got %q", KeyLength, key)
	}
}

func TestAllocate_ExhaustsBudget(t *testing.T) {
	reg := &staticRegistry{all: true}
	_, err := Allocate(context.Background(), reg)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		key    string
		reason string
	}{
		{name: "empty", key: "", reason: "License key is required"},
		{name: "too short", key: "ABC", reason: "License key must be exactly 6 characters"},
		{name: "too long", key: "ABCDEFG", reason: "License key must be exactly 6 characters"},
		{name: "digits", key: "ABC123", reason: "License key must contain only letters (A-Z)"},
		{name: "symbol", key: "ABC-EF", reason: "License key must contain only letters (A-Z)"},
		{name: "valid", key: "ABCDEF"},
		{name: "valid lowercase", key: "abcdef"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.key)
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			var formatErr *FormatError
			if !errors.As(err, &formatErr) {
				t.Fatalf("expected FormatError, got %v", err)
			}
			if formatErr.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, formatErr.Reason)
			}
		})
	}
}
