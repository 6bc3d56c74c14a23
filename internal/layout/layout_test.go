package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainOfThreeSharesWidth(t *testing.T) {
	// A overlaps B, B overlaps C, A and C are disjoint. A pairwise-only
	// algorithm would hand out 2 columns; the cluster needs 3.
	blocks := []Block{
		{ID: "a", Start: 540, End: 600}, // 9:00-10:00
		{ID: "b", Start: 570, End: 630}, // 9:30-10:30
		{ID: "c", Start: 585, End: 660}, // 9:45-11:00
	}
	got := Compute(blocks)

	seen := map[int]bool{}
	for _, id := range []string{"a", "b", "c"} {
		p := got[id]
		require.Equal(t, 3, p.TotalColumns, "id=%s", id)
		require.False(t, seen[p.Column], "column %d reused", p.Column)
		seen[p.Column] = true
	}
	require.Equal(t, map[int]bool{0: true, 1: true, 2: true}, seen)
}

func TestTouchingEndpointsDoNotOverlap(t *testing.T) {
	got := Compute([]Block{
		{ID: "a", Start: 540, End: 600},
		{ID: "b", Start: 600, End: 660},
	})
	require.Equal(t, Placement{Column: 0, TotalColumns: 1}, got["a"])
	require.Equal(t, Placement{Column: 0, TotalColumns: 1}, got["b"])
}

func TestColumnReuseAfterGapInsideCluster(t *testing.T) {
	// d starts after a ends but while b is still active, so the cluster
	// stays open and d reuses column 0.
	got := Compute([]Block{
		{ID: "a", Start: 540, End: 570},
		{ID: "b", Start: 550, End: 640},
		{ID: "d", Start: 580, End: 620},
	})
	require.Equal(t, 0, got["a"].Column)
	require.Equal(t, 1, got["b"].Column)
	require.Equal(t, 0, got["d"].Column)
	for _, id := range []string{"a", "b", "d"} {
		require.Equal(t, 2, got[id].TotalColumns)
	}
}

func TestIdenticalRangesTieBreakByID(t *testing.T) {
	got := Compute([]Block{
		{ID: "zz", Start: 100, End: 200},
		{ID: "aa", Start: 100, End: 200},
	})
	require.Equal(t, 0, got["aa"].Column)
	require.Equal(t, 1, got["zz"].Column)
}

func TestDeterministicAcrossInputOrder(t *testing.T) {
	blocks := []Block{
		{ID: "a", Start: 540, End: 600},
		{ID: "b", Start: 570, End: 630},
		{ID: "c", Start: 585, End: 660},
		{ID: "d", Start: 700, End: 760},
	}
	want := Compute(blocks)

	reversed := make([]Block, 0, len(blocks))
	for i := len(blocks) - 1; i >= 0; i-- {
		reversed = append(reversed, blocks[i])
	}
	require.Equal(t, want, Compute(reversed))
}

func TestDisjointBlocksFullWidth(t *testing.T) {
	got := Compute([]Block{
		{ID: "a", Start: 0, End: 60},
		{ID: "b", Start: 120, End: 180},
		{ID: "c", Start: 300, End: 330},
	})
	for id, p := range got {
		require.Equal(t, Placement{Column: 0, TotalColumns: 1}, p, "id=%s", id)
	}
}

func TestEmptyInput(t *testing.T) {
	require.Empty(t, Compute(nil))
}
