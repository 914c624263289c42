package metrics

// Alignment classifies the edit operations of a Levenshtein alignment
// between a reference and a hypothesis token sequence.
type Alignment struct {
	Sub int // substitutions
	Ins int // insertions (extra hypothesis tokens)
	Del int // deletions (missing reference tokens)
}

// Edits returns the total number of edit operations, which equals the
// Levenshtein distance between the aligned sequences.
func (a Alignment) Edits() int {
	return a.Sub + a.Ins + a.Del
}

// Align computes the edit-distance alignment between a reference and a
// hypothesis token sequence with unit costs. The full DP matrix is kept
// so the optimal path can be walked back and each edit classified.
func Align(ref, hyp []string) Alignment {
	lr, lh := len(ref), len(hyp)

	d := make([][]int, lr+1)
	for i := range d {
		d[i] = make([]int, lh+1)
		d[i][0] = i
	}
	for j := 0; j <= lh; j++ {
		d[0][j] = j
	}

	for i := 1; i <= lr; i++ {
		for j := 1; j <= lh; j++ {
			cost := 1
			if ref[i-1] == hyp[j-1] {
				cost = 0
			}
			del := d[i-1][j] + 1
			ins := d[i][j-1] + 1
			sub := d[i-1][j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			d[i][j] = m
		}
	}

	// Walk the optimal path back from the corner, preferring matches and
	// substitutions over insertions and deletions.
	var a Alignment
	i, j := lr, lh
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1] && d[i][j] == d[i-1][j-1]:
			i--
			j--
		case i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+1:
			a.Sub++
			i--
			j--
		case j > 0 && d[i][j] == d[i][j-1]+1:
			a.Ins++
			j--
		default:
			a.Del++
			i--
		}
	}
	return a
}
