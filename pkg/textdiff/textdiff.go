// Package textdiff computes line-based edit scripts between two texts.
package textdiff

import "strings"

// OpKind classifies a line in an edit script.
type OpKind int

const (
	Keep OpKind = iota // Line is unchanged between a and b.
	Del                // Line was removed (present in a only).
	Add                // Line was added (present in b only).
)

// Op is a single operation in an edit script produced by Lines.
type Op struct {
	Kind OpKind
	Line string
}

// SplitLines splits text into lines for diffing. The trailing newline
// does not produce an empty final line.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	s := string(data)
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// Lines computes the shortest edit script transforming a into b using
// the Myers diff algorithm on whole lines.
//
// The algorithm runs in O((N+M)*D) time where N and M are the lengths
// of a and b, and D is the size of the minimum edit script.
func Lines(a, b []string) []Op {
	n := len(a)
	m := len(b)

	// Handle trivial cases.
	if n == 0 && m == 0 {
		return nil
	}
	if n == 0 {
		ops := make([]Op, m)
		for i, line := range b {
			ops[i] = Op{Kind: Add, Line: line}
		}
		return ops
	}
	if m == 0 {
		ops := make([]Op, n)
		for i, line := range a {
			ops[i] = Op{Kind: Del, Line: line}
		}
		return ops
	}

	max := n + m
	size := 2*max + 1

	v := make([]int, size)

	// trace[d] holds a snapshot of v after processing edit distance d.
	var trace [][]int

	for d := 0; d <= max; d++ {
		for k := -d; k <= d; k += 2 {
			idx := k + max
			var x int
			if k == -d || (k != d && v[idx-1] < v[idx+1]) {
				x = v[idx+1] // move down (add)
			} else {
				x = v[idx-1] + 1 // move right (delete)
			}
			y := x - k

			// Follow diagonal (equal lines).
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}

			v[idx] = x

			if x >= n && y >= m {
				// Save this final state and backtrack.
				snap := make([]int, size)
				copy(snap, v)
				trace = append(trace, snap)
				return backtrack(trace, a, b, d)
			}
		}

		snap := make([]int, size)
		copy(snap, v)
		trace = append(trace, snap)
	}

	// Should never reach here for valid inputs.
	return nil
}

// backtrack reconstructs the edit script from the trace of v snapshots.
func backtrack(trace [][]int, a, b []string, dFinal int) []Op {
	n := len(a)
	m := len(b)
	max := n + m

	x := n
	y := m

	// Build the edit script in reverse.
	var ops []Op

	for d := dFinal; d > 0; d-- {
		k := x - y
		idx := k + max

		vPrev := trace[d-1]

		var prevK int
		if k == -d || (k != d && vPrev[idx-1] < vPrev[idx+1]) {
			prevK = k + 1 // came from an add (down move)
		} else {
			prevK = k - 1 // came from a delete (right move)
		}

		prevX := vPrev[prevK+max]
		prevY := prevX - prevK

		// Trace back along the diagonal (equal lines).
		for x > prevX && y > prevY {
			x--
			y--
			ops = append(ops, Op{Kind: Keep, Line: a[x]})
		}

		if k == prevK+1 {
			// This was a delete (right move): prevK = k-1.
			x--
			ops = append(ops, Op{Kind: Del, Line: a[x]})
		} else {
			// This was an add (down move): prevK = k+1.
			y--
			ops = append(ops, Op{Kind: Add, Line: b[y]})
		}
	}

	// Remaining diagonal at d=0.
	for x > 0 && y > 0 {
		x--
		y--
		ops = append(ops, Op{Kind: Keep, Line: a[x]})
	}

	// Reverse to get forward order.
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}

	return ops
}
