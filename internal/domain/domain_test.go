package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	if err := ValidateID("room-1"); err != nil {
		t.Fatalf("valid id rejected: %v", err)
	}
	if err := ValidateID(""); !errors.Is(err, ErrIDEmpty) {
		t.Fatalf("expected ErrIDEmpty, got %v", err)
	}
	if err := ValidateID(strings.Repeat("x", MaxIDLen)); err != nil {
		t.Fatalf("id at max length rejected: %v", err)
	}
	if err := ValidateID(strings.Repeat("x", MaxIDLen+1)); !errors.Is(err, ErrIDTooLong) {
		t.Fatalf("expected ErrIDTooLong, got %v", err)
	}
}

func TestParseMediaKind(t *testing.T) {
	for _, s := range []string{"audio", "video"} {
		kind, err := ParseMediaKind(s)
		if err != nil || string(kind) != s {
			t.Fatalf("parse %q: kind=%q err=%v", s, kind, err)
		}
	}
	if _, err := ParseMediaKind("text"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := ParseMediaKind("Audio"); err == nil {
		t.Fatal("kind is case-sensitive on the wire")
	}
}

func TestParseDirection(t *testing.T) {
	for _, s := range []string{"send", "recv"} {
		d, err := ParseDirection(s)
		if err != nil || string(d) != s {
			t.Fatalf("parse %q: direction=%q err=%v", s, d, err)
		}
	}
	if _, err := ParseDirection("both"); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}
