package service

import (
	"strings"
	"testing"

	"github.com/persistorai/recall/internal/models"
)

func textResult(id string, score float64, text string) models.RankedResult {
	r := ranked(id, score)
	r.Chunk.Text = text
	r.Chunk.Sender = "Dana"
	return r
}

func TestAssembler_OrderAndCitations(t *testing.T) {
	a := NewAssembler(nil)
	block := a.Assemble([]models.RankedResult{
		textResult("low", 0.2, "second"),
		textResult("high", 0.9, "first"),
	}, nil, 1000)

	if block.BudgetExceeded {
		t.Fatal("unexpected budget exceeded")
	}
	if len(block.Citations) != 2 {
		t.Fatalf("citations = %d, want 2", len(block.Citations))
	}
	if block.Citations[0].ChunkID != "high" || block.Citations[0].N != 1 {
		t.Errorf("first citation = %+v", block.Citations[0])
	}
	if !strings.HasPrefix(block.Text, "[1] (test, 2025-03-01T12:00:00Z, Dana)\nfirst") {
		t.Errorf("text = %q", block.Text)
	}
	if !strings.Contains(block.Text, "[2] (") {
		t.Errorf("missing second marker: %q", block.Text)
	}
	if block.TokensUsed > block.TokenBudget {
		t.Errorf("used %d > budget %d", block.TokensUsed, block.TokenBudget)
	}
}

func TestAssembler_FactsFirst(t *testing.T) {
	a := NewAssembler(nil)
	facts := []models.GraphFact{{PersonName: "Shiran", Key: "birthday", Value: "March 3"}}

	block := a.Assemble([]models.RankedResult{textResult("x", 0.5, "hello")}, facts, 1000)

	if !strings.HasPrefix(block.Text, "Known facts:\n- Shiran: birthday = March 3\n") {
		t.Errorf("text = %q", block.Text)
	}
	if block.FactsIncluded != 1 || len(block.Citations) != 1 {
		t.Errorf("facts %d citations %d", block.FactsIncluded, len(block.Citations))
	}
}

func TestAssembler_SkipsWhatDoesNotFit(t *testing.T) {
	a := NewAssembler(CharEstimator{CharsPerToken: 1})
	long := strings.Repeat("x", 500)

	block := a.Assemble([]models.RankedResult{
		textResult("big", 0.9, long),
		textResult("small", 0.5, "ok"),
	}, nil, 100)

	if len(block.Citations) != 1 || block.Citations[0].ChunkID != "small" {
		t.Fatalf("citations = %+v, want only small", block.Citations)
	}
	if block.Omitted != 1 {
		t.Errorf("omitted = %d, want 1", block.Omitted)
	}
	if strings.Contains(block.Text, "xxx") {
		t.Error("results must never be split")
	}
	if block.TokensUsed > 100 {
		t.Errorf("used %d > budget", block.TokensUsed)
	}
}

func TestAssembler_BudgetExceeded(t *testing.T) {
	a := NewAssembler(CharEstimator{CharsPerToken: 1})

	block := a.Assemble([]models.RankedResult{textResult("a", 0.9, strings.Repeat("y", 200))}, nil, 10)

	if !block.BudgetExceeded {
		t.Fatal("expected budget exceeded")
	}
	if block.Text != "" || len(block.Citations) != 0 || block.TokensUsed != 0 {
		t.Errorf("block should be empty: %+v", block)
	}
	if block.Omitted != 1 {
		t.Errorf("omitted = %d, want 1", block.Omitted)
	}
}

func TestAssembler_Empty(t *testing.T) {
	block := NewAssembler(nil).Assemble(nil, nil, 0)
	if block.BudgetExceeded || block.Text != "" || block.TokenBudget != DefaultTokenBudget {
		t.Errorf("unexpected block %+v", block)
	}
}

func TestCharEstimator(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"שלום", 1},
	}

	for _, tc := range tests {
		if got := (CharEstimator{CharsPerToken: 4}).Estimate(tc.text); got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
