// Package layout resolves temporally-overlapping events of one day column
// into side-by-side visual columns.
package layout

import "sort"

// Block is one event's time range in display-position minutes (already
// normalized against the grid's day start by the caller).
type Block struct {
	ID    string
	Start int
	End   int
}

// Placement is the column assignment for one block.
type Placement struct {
	// Column is the zero-based column index inside the block's overlap
	// cluster.
	Column int
	// TotalColumns is shared by every block in the cluster, so all render
	// at equal fractional width.
	TotalColumns int
}

// Compute assigns columns to blocks so that overlapping blocks never share
// a column.
//
// Overlap requires a positive-duration intersection: touching endpoints do
// not overlap. Blocks are grouped into maximal overlap clusters (connected
// components, so a chain A-B-C shares width across all three even when A
// and C are disjoint). Within a cluster, columns are assigned greedily in
// (start asc, end desc, id asc) order; each block takes the lowest column
// whose previous occupant has already ended. The tie-break for identical
// ranges is the lexicographic block ID, making the result deterministic
// regardless of input order.
func Compute(blocks []Block) map[string]Placement {
	out := make(map[string]Placement, len(blocks))
	if len(blocks) == 0 {
		return out
	}

	sorted := make([]Block, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End > b.End
		}
		return a.ID < b.ID
	})

	// Sweep in start order; a cluster closes once every active block has
	// ended before the next one starts.
	var (
		cluster    []Block
		clusterEnd int
	)
	flush := func() {
		if len(cluster) > 0 {
			assignColumns(cluster, out)
			cluster = cluster[:0]
		}
	}
	for _, b := range sorted {
		if len(cluster) > 0 && b.Start >= clusterEnd {
			flush()
		}
		if len(cluster) == 0 {
			clusterEnd = b.End
		} else if b.End > clusterEnd {
			clusterEnd = b.End
		}
		cluster = append(cluster, b)
	}
	flush()

	return out
}

// assignColumns packs one cluster. columnEnds[i] holds the end of the most
// recent occupant of column i; a block fits column i when that occupant
// has ended at or before the block's start.
func assignColumns(cluster []Block, out map[string]Placement) {
	columnEnds := make([]int, 0, 4)
	maxCol := 0

	for _, b := range cluster {
		col := -1
		for i, end := range columnEnds {
			if end <= b.Start {
				col = i
				break
			}
		}
		if col == -1 {
			col = len(columnEnds)
			columnEnds = append(columnEnds, 0)
		}
		columnEnds[col] = b.End
		if col > maxCol {
			maxCol = col
		}
		out[b.ID] = Placement{Column: col}
	}

	total := maxCol + 1
	for _, b := range cluster {
		p := out[b.ID]
		p.TotalColumns = total
		out[b.ID] = p
	}
}
