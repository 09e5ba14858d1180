package models

import (
	"errors"
	"testing"
)

func TestClassifyAlias(t *testing.T) {
	tests := []struct {
		in   string
		want AliasKind
	}{
		{"Shiran", AliasName},
		{"שירן", AliasName},
		{"+972 54-123-4567", AliasPhone},
		{"shiran@example.com", AliasEmail},
		{"Room 101", AliasName},
		{"2024", AliasName},
	}

	for _, tt := range tests {
		if got := ClassifyAlias(tt.in); got != tt.want {
			t.Errorf("ClassifyAlias(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeAlias(t *testing.T) {
	if got := NormalizeAlias(AliasPhone, "+972 (54) 123-4567"); got != "972541234567" {
		t.Errorf("phone = %q", got)
	}

	if got := NormalizeAlias(AliasPhone, "00972541234567"); got != "972541234567" {
		t.Errorf("international prefix = %q", got)
	}

	if got := NormalizeAlias(AliasEmail, " Shiran@Example.COM "); got != "shiran@example.com" {
		t.Errorf("email = %q", got)
	}

	if got := NormalizeAlias(AliasName, "  Shiran  WAINTROB"); got != "shiran waintrob" {
		t.Errorf("name = %q", got)
	}
}

func TestCreatePersonAliasList(t *testing.T) {
	r := CreatePersonRequest{
		CanonicalName: "Shiran Waintrob",
		Aliases:       []string{"שירן", "Shiran", " "},
		Phones:        []string{"054-1234567"},
	}

	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := r.AliasList()
	if len(got) != 4 {
		t.Fatalf("expected 4 aliases, got %d: %+v", len(got), got)
	}

	if got[0].Norm != "shiran waintrob" || got[1].Norm != "שירן" || got[3].Kind != AliasPhone {
		t.Errorf("unexpected aliases: %+v", got)
	}
}

func TestNewResolution(t *testing.T) {
	none := NewResolution("nobody", nil)
	if none.Status != ResolutionNone {
		t.Errorf("expected none, got %s", none.Status)
	}

	one := NewResolution("shiran", []AliasMatch{
		{PersonID: "p1", Norm: "shiran"},
		{PersonID: "p1", Norm: "shiran"},
	})

	if id, ok := one.Resolved(); !ok || id != "p1" {
		t.Errorf("expected resolved p1, got %q %v", id, ok)
	}

	amb := NewResolution("dana", []AliasMatch{{PersonID: "p1"}, {PersonID: "p2"}})
	if amb.Status != ResolutionAmbiguous || len(amb.Candidates) != 2 {
		t.Errorf("expected ambiguous with 2 candidates, got %+v", amb)
	}

	if _, ok := amb.Resolved(); ok {
		t.Error("ambiguous resolution must not resolve")
	}
}

func TestMergeRequestSelf(t *testing.T) {
	r := MergePersonsRequest{SourceID: "a", TargetID: "a"}
	if err := r.Validate(); !errors.Is(err, ErrMergeSelf) {
		t.Errorf("expected ErrMergeSelf, got %v", err)
	}
}

func TestValidateConfidence(t *testing.T) {
	r := UpsertFactRequest{Key: "birthday", Value: "1990-02-03"}
	if err := r.Validate(); err != nil || r.Confidence != 1 {
		t.Errorf("zero confidence should default to 1: %v %v", err, r.Confidence)
	}

	r.Confidence = 1.2
	if err := r.Validate(); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("expected malformed confidence, got %v", err)
	}
}
