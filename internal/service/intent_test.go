package service

import (
	"slices"
	"testing"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name string
		in   IntentInput
		want []Intent
	}{
		{name: "general", in: IntentInput{Query: "quarterly budget numbers"}, want: []Intent{IntentGeneral}},
		{name: "person fact", in: IntentInput{Query: "when is Shiran's birthday", Persons: 1}, want: []Intent{IntentPersonFact}},
		{name: "person history", in: IntentInput{Query: "what did Shiran say about the trip", Persons: 1}, want: []Intent{IntentPersonHistory}},
		{name: "bare person", in: IntentInput{Query: "Shiran", Persons: 1}, want: []Intent{IntentPersonHistory}},
		{name: "fact words without person", in: IntentInput{Query: "birthday cake recipe"}, want: []Intent{IntentGeneral}},
		{name: "family", in: IntentInput{Query: "my sister wedding plans"}, want: []Intent{IntentFamily}},
		{name: "thread filter", in: IntentInput{Query: "plans", ThreadID: "t1"}, want: []Intent{IntentThreadFollow}},
		{name: "thread words", in: IntentInput{Query: "continue the earlier discussion"}, want: []Intent{IntentThreadFollow}},
		{name: "attachment", in: IntentInput{Query: "the pdf contract"}, want: []Intent{IntentAttachmentFollow}},
		{name: "cross channel words", in: IntentInput{Query: "everything across channels about rent"}, want: []Intent{IntentCrossChannel}},
		{name: "cross channel person", in: IntentInput{Query: "Dana whatsapp and email", Persons: 1}, want: []Intent{IntentPersonFact, IntentCrossChannel}},
		{name: "hebrew family", in: IntentInput{Query: "מה אמא אמרה"}, want: []Intent{IntentFamily}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyIntent(tc.in)
			if !slices.Equal(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPolicyFor(t *testing.T) {
	p := PolicyFor([]Intent{IntentFamily, IntentAttachmentFollow, IntentThreadFollow})

	if !p.Temporal || !p.Sibling || !p.Facts || !p.Recency {
		t.Errorf("flags not combined: %+v", p)
	}
	if p.RelationshipHops != 1 || p.NeighborhoodHops != 2 {
		t.Errorf("hops = %d/%d, want 1/2", p.RelationshipHops, p.NeighborhoodHops)
	}
	if !slices.Contains(p.RelationTypes, "spouse") {
		t.Errorf("relation types = %v", p.RelationTypes)
	}

	general := PolicyFor([]Intent{IntentGeneral})
	if general.Facts || general.NeighborhoodHops != 0 || general.Recency {
		t.Errorf("general policy too wide: %+v", general)
	}
}

func TestIntentStrings(t *testing.T) {
	got := intentsField([]Intent{IntentFamily, IntentGeneral})
	if got != "family,general" {
		t.Errorf("got %q", got)
	}
}
