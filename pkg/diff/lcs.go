package diff

// OpType classifies a line in an edit script.
type OpType int

const (
	OpEqual  OpType = iota // Line is unchanged between a and b.
	OpInsert               // Line was inserted (present in b only).
	OpDelete               // Line was deleted (present in a only).
)

// Op is a single operation in an edit script produced by myersDiff.
type Op struct {
	Type OpType
	Line string
}

// myersDiff computes the shortest edit script to transform a into b using
// the Myers diff algorithm operating on whole lines.
//
// The algorithm runs in O((N+M)*D) time where N and M are the lengths of a
// and b, and D is the size of the minimum edit script.
func myersDiff(a, b []string) []Op {
	n := len(a)
	m := len(b)

	// Handle trivial cases.
	if n == 0 && m == 0 {
		return nil
	}
	if n == 0 {
		ops := make([]Op, m)
		for i, line := range b {
			ops[i] = Op{Type: OpInsert, Line: line}
		}
		return ops
	}
	if m == 0 {
		ops := make([]Op, n)
		for i, line := range a {
			ops[i] = Op{Type: OpDelete, Line: line}
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
				x = v[idx+1] // move down (insert)
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

	var ops []Op

	for d := dFinal; d > 0; d-- {
		k := x - y
		idx := k + max

		vPrev := trace[d-1]

		var prevK int
		if k == -d || (k != d && vPrev[idx-1] < vPrev[idx+1]) {
			prevK = k + 1 // came from an insert (down move)
		} else {
			prevK = k - 1 // came from a delete (right move)
		}

		prevX := vPrev[prevK+max]
		prevY := prevX - prevK

		// Trace back along the diagonal (equal lines).
		for x > prevX && y > prevY {
			x--
			y--
			ops = append(ops, Op{Type: OpEqual, Line: a[x]})
		}

		if k == prevK+1 {
			x--
			ops = append(ops, Op{Type: OpDelete, Line: a[x]})
		} else {
			y--
			ops = append(ops, Op{Type: OpInsert, Line: b[y]})
		}
	}

	// Remaining diagonal at d=0.
	for x > 0 && y > 0 {
		x--
		y--
		ops = append(ops, Op{Type: OpEqual, Line: a[x]})
	}

	// Reverse to get forward order.
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}

	return ops
}
