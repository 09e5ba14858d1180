package service

import (
	"math"
	"testing"

	"github.com/persistorai/recall/internal/models"
)

func TestFuseRRF_Ties(t *testing.T) {
	dense := scored("A", "B", "C", "D")
	lexical := scored("B", "A", "D", "C")

	fused := FuseRRF(60, dense, lexical)
	if len(fused) != 4 {
		t.Fatalf("len = %d, want 4", len(fused))
	}

	byID := map[string]Fused{}
	for _, f := range fused {
		byID[f.Chunk.ID] = f
	}

	if byID["A"].Score != byID["B"].Score {
		t.Errorf("A = %v, B = %v, want equal", byID["A"].Score, byID["B"].Score)
	}
	if byID["C"].Score != byID["D"].Score {
		t.Errorf("C = %v, D = %v, want equal", byID["C"].Score, byID["D"].Score)
	}
	if byID["A"].Score <= byID["C"].Score {
		t.Errorf("A = %v should beat C = %v", byID["A"].Score, byID["C"].Score)
	}

	want := 1.0/61 + 1.0/62
	if math.Abs(byID["A"].Score-want) > 1e-12 {
		t.Errorf("A = %v, want %v", byID["A"].Score, want)
	}

	got := []string{fused[0].Chunk.ID, fused[1].Chunk.ID, fused[2].Chunk.ID, fused[3].Chunk.ID}
	order := []string{"A", "B", "C", "D"}
	for i := range order {
		if got[i] != order[i] {
			t.Errorf("order = %v, want %v", got, order)
			break
		}
	}
}

func TestFuseRRF_IgnoresRawScores(t *testing.T) {
	a := []models.ScoredChunk{{Chunk: chunk("x"), Score: 1000}, {Chunk: chunk("y"), Score: 0.001}}
	b := []models.ScoredChunk{{Chunk: chunk("x"), Score: 0.1}, {Chunk: chunk("y"), Score: 0.09}}

	fused := FuseRRF(60, a, b)
	if fused[0].Chunk.ID != "x" {
		t.Errorf("top = %s, want x", fused[0].Chunk.ID)
	}
	if fused[0].Ranks[0] != 1 || fused[0].Ranks[1] != 1 {
		t.Errorf("ranks = %v, want [1 1]", fused[0].Ranks)
	}
}

func TestFuseRRF_SingleListAndDuplicates(t *testing.T) {
	list := append(scored("a", "b"), models.ScoredChunk{Chunk: chunk("a")})

	fused := FuseRRF(0, list)
	if len(fused) != 2 {
		t.Fatalf("len = %d, want 2", len(fused))
	}
	if want := 1.0 / 61; fused[0].Score != want {
		t.Errorf("score = %v, want %v (duplicate must count once)", fused[0].Score, want)
	}
	if fused[1].Ranks[0] != 2 {
		t.Errorf("b rank = %d, want 2", fused[1].Ranks[0])
	}
}

func TestNormalizeRRF(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		n     int
		want  float64
	}{
		{name: "first in both lists", score: 2.0 / 61, n: 2, want: 1},
		{name: "first in one of two", score: 1.0 / 61, n: 2, want: 0.5},
		{name: "single list first", score: 1.0 / 61, n: 1, want: 1},
		{name: "no lists", score: 1, n: 0, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeRRF(tc.score, 60, tc.n)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
