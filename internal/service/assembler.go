package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/persistorai/recall/internal/models"
)

// DefaultTokenBudget applies when a request does not set one.
const DefaultTokenBudget = 4000

const factsHeader = "Known facts:\n"

// Assembler builds token-budgeted, cited context blocks.
type Assembler struct {
	est TokenEstimator
}

// NewAssembler creates an Assembler. A nil estimator counts four characters
// per token.
func NewAssembler(est TokenEstimator) *Assembler {
	if est == nil {
		est = CharEstimator{CharsPerToken: 4}
	}

	return &Assembler{est: est}
}

// Assemble includes facts first, then whole results by descending score,
// skipping any that no longer fit. Nothing is ever split. When the budget
// cannot hold a single item the block is empty and BudgetExceeded is set.
func (a *Assembler) Assemble(results []models.RankedResult, facts []models.GraphFact, budget int) models.ContextBlock {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	block := models.ContextBlock{TokenBudget: budget, Citations: []models.Citation{}}

	var b strings.Builder

	used := 0

	if len(facts) > 0 {
		header := a.est.Estimate(factsHeader)
		lines := make([]string, 0, len(facts))
		cost := header

		for _, f := range facts {
			line := renderFact(f)
			c := a.est.Estimate(line)

			if cost+c > budget {
				continue
			}

			cost += c
			lines = append(lines, line)
		}

		if len(lines) > 0 {
			b.WriteString(factsHeader)

			for _, l := range lines {
				b.WriteString(l)
			}

			b.WriteString("\n")

			used = cost + a.est.Estimate("\n")
			block.FactsIncluded = len(lines)
		}
	}

	ordered := append([]models.RankedResult(nil), results...)
	sortRanked(ordered)

	for _, r := range ordered {
		n := len(block.Citations) + 1
		entry := renderResult(n, r)
		c := a.est.Estimate(entry)

		if used+c > budget {
			block.Omitted++

			continue
		}

		used += c
		b.WriteString(entry)
		block.Citations = append(block.Citations, citationFor(n, r))
	}

	block.TokensUsed = used

	if block.FactsIncluded == 0 && len(block.Citations) == 0 && (len(results) > 0 || len(facts) > 0) {
		block.BudgetExceeded = true
		block.TokensUsed = 0
		block.Omitted = len(results)

		return block
	}

	block.Text = strings.TrimRight(b.String(), "\n")

	return block
}

func renderFact(f models.GraphFact) string {
	return fmt.Sprintf("- %s: %s = %s\n", f.PersonName, f.Key, f.Value)
}

func renderResult(n int, r models.RankedResult) string {
	c := r.Chunk

	parts := []string{c.Source, c.Timestamp.UTC().Format(time.RFC3339)}
	if c.Sender != "" {
		parts = append(parts, c.Sender)
	}

	if title := c.Meta.Title(); title != "" {
		parts = append(parts, title)
	}

	return fmt.Sprintf("[%d] (%s)\n%s\n\n", n, strings.Join(parts, ", "), strings.TrimSpace(c.Text))
}

func citationFor(n int, r models.RankedResult) models.Citation {
	c := r.Chunk

	return models.Citation{
		N:         n,
		ChunkID:   c.ID,
		Source:    c.Source,
		SourceID:  c.SourceID,
		AssetID:   c.AssetID,
		ThreadID:  c.ThreadID,
		Sender:    c.Sender,
		Title:     c.Meta.Title(),
		Timestamp: c.Timestamp,
		Score:     r.Score,
	}
}
