package milp

import (
	"context"
	"errors"
	"math"
	"sort"
)

const (
	pivotTol    = 1e-9  // smallest tableau entry taken as a pivot
	costTol     = 1e-9  // smallest reduced cost counted as an improvement
	ratioTol    = 1e-9  // ratio test steps closer than this are ties
	zeroTol     = 1e-12 // tableau entries below this are dropped
	phaseOneTol = 1e-7  // largest artificial total accepted as feasible
	blandAfter  = 50    // degenerate pivots in a row before switching to Bland's rule
)

var (
	errUnbounded      = errors.New("milp: lp relaxation is unbounded")
	errIterationLimit = errors.New("milp: simplex iteration limit reached")
)

// lpRow is sum(terms) <sense> rhs over the columns of an LP
type lpRow struct {
	terms []Term
	sense Sense
	rhs   float64
}

// sparseRow holds the nonzeros of a tableau row by increasing column
type sparseRow struct {
	idx []int
	val []float64
}

func (r *sparseRow) at(j int) float64 {
	k := sort.SearchInts(r.idx, j)
	if k < len(r.idx) && r.idx[k] == j {
		return r.val[k]
	}
	return 0
}

// subScaled sets r to r - f*p, building the result in buf and handing r's old storage to buf
func (r *sparseRow) subScaled(f float64, p *sparseRow, buf *sparseRow) {
	buf.idx, buf.val = buf.idx[:0], buf.val[:0]
	a, b := 0, 0
	for a < len(r.idx) || b < len(p.idx) {
		var j int
		var v float64
		switch {
		case b == len(p.idx) || (a < len(r.idx) && r.idx[a] < p.idx[b]):
			j, v = r.idx[a], r.val[a]
			a++
		case a == len(r.idx) || p.idx[b] < r.idx[a]:
			j, v = p.idx[b], -f*p.val[b]
			b++
		default:
			j, v = r.idx[a], r.val[a]-f*p.val[b]
			a++
			b++
		}
		if math.Abs(v) > zeroTol {
			buf.idx = append(buf.idx, j)
			buf.val = append(buf.val, v)
		}
	}
	r.idx, buf.idx = buf.idx, r.idx
	r.val, buf.val = buf.val, r.val
}

/*
simplex is a bounded-variable primal simplex over a sparse tableau.

Every row gets a slack (A x + s = b) whose bounds encode the sense: [0, inf) for <=,
(-inf, 0] for >= and [0, 0] for =. Columns keep their box bounds, so x <= 1 never
becomes a row, and a nonbasic column always sits at one of its finite bounds. Rows
whose slack cannot absorb b at the start get an artificial column, driven out in a
first phase.
*/
type simplex struct {
	numCols    int // structural columns, slacks and artificials follow
	rows       []sparseRow
	xb         []float64 // value of the basic column of each row
	basis      []int
	pos        []int // row of a basic column, -1 when nonbasic
	atUpper    []bool
	lo, hi     []float64
	cost       []float64
	d          []float64 // reduced costs
	col        []float64 // entering column, scratch
	artificial []int
	buf        sparseRow
}

func newSimplex(numCols int, rows []lpRow) *simplex {
	m := len(rows)
	n := numCols + m
	s := &simplex{
		numCols: numCols,
		rows:    make([]sparseRow, m),
		xb:      make([]float64, m),
		basis:   make([]int, m),
		pos:     make([]int, n),
		atUpper: make([]bool, n),
		lo:      make([]float64, n),
		hi:      make([]float64, n),
		col:     make([]float64, m),
	}
	for j := range s.pos {
		s.pos[j] = -1
	}
	for j := 0; j < numCols; j++ {
		s.hi[j] = 1
	}
	for i, r := range rows {
		slack := numCols + i
		switch r.sense {
		case LessEqual:
			s.hi[slack] = math.Inf(1)
		case GreaterEqual:
			s.lo[slack] = math.Inf(-1)
			s.atUpper[slack] = true
		}
		coefs := map[int]float64{slack: 1}
		for _, t := range r.terms {
			coefs[t.Var] += t.Coef
		}

		// every column starts at zero, so the basic column of the row has to take up b
		basic, sign := slack, 1.0
		if r.rhs < s.lo[slack]-phaseOneTol || r.rhs > s.hi[slack]+phaseOneTol {
			if r.rhs < 0 {
				sign = -1
			}
			basic = len(s.lo)
			s.lo = append(s.lo, 0)
			s.hi = append(s.hi, math.Inf(1))
			s.atUpper = append(s.atUpper, false)
			s.pos = append(s.pos, -1)
			s.artificial = append(s.artificial, basic)
			coefs[basic] = sign
		}
		row := &s.rows[i]
		for j := range coefs {
			row.idx = append(row.idx, j)
		}
		sort.Ints(row.idx)
		for _, j := range row.idx {
			row.val = append(row.val, coefs[j]*sign)
		}
		s.basis[i], s.pos[basic], s.xb[i] = basic, i, r.rhs*sign
	}
	s.cost = make([]float64, len(s.lo))
	s.d = make([]float64, len(s.lo))
	return s
}

// value returns the current value of a column
func (s *simplex) value(j int) float64 {
	if i := s.pos[j]; i >= 0 {
		return s.xb[i]
	}
	if s.atUpper[j] {
		return s.hi[j]
	}
	return s.lo[j]
}

// solve minimises objective over the structural columns
func (s *simplex) solve(ctx context.Context, objective []float64) error {
	if len(s.artificial) > 0 {
		for _, a := range s.artificial {
			s.cost[a] = 1
		}
		s.price()
		if err := s.iterate(ctx); err != nil {
			return err
		}
		infeasibility := 0.0
		for _, a := range s.artificial {
			infeasibility += s.value(a)
			s.cost[a] = 0
			s.hi[a] = 0
		}
		if infeasibility > phaseOneTol {
			return ErrInfeasible
		}
	}
	copy(s.cost, objective)
	s.price()
	return s.iterate(ctx)
}

// price recomputes the reduced costs from the current basis
func (s *simplex) price() {
	copy(s.d, s.cost)
	for i, b := range s.basis {
		cb := s.cost[b]
		if cb == 0 {
			continue
		}
		row := &s.rows[i]
		for k, j := range row.idx {
			s.d[j] -= cb * row.val[k]
		}
	}
}

func (s *simplex) iterate(ctx context.Context) error {
	maxIter := 50*(len(s.rows)+len(s.lo)) + 1000
	degenerate := 0
	for iter := 0; iter < maxIter; iter++ {
		if iter&63 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		bland := degenerate >= blandAfter
		j, dir := s.entering(bland)
		if j < 0 {
			return nil
		}
		for i := range s.rows {
			s.col[i] = s.rows[i].at(j)
		}
		leave, toUpper, theta := s.ratio(j, dir, bland)
		if math.IsInf(theta, 1) {
			return errUnbounded
		}
		start := s.value(j)
		if theta > 0 {
			for i, a := range s.col {
				if a != 0 {
					s.xb[i] -= dir * theta * a
				}
			}
			degenerate = 0
		} else {
			degenerate++
		}
		if leave < 0 {
			// the entering column reached its other bound first
			s.atUpper[j] = !s.atUpper[j]
			continue
		}
		out := s.basis[leave]
		s.pivot(leave, j)
		s.basis[leave], s.pos[j], s.pos[out] = j, leave, -1
		s.xb[leave] = start + dir*theta
		s.atUpper[out] = toUpper
	}
	return errIterationLimit
}

// entering picks the nonbasic column to move and the direction it moves in,
// by largest reduced cost or by lowest index under Bland's rule
func (s *simplex) entering(bland bool) (int, float64) {
	best, dir, score := -1, 0.0, costTol
	for j, dj := range s.d {
		if s.pos[j] >= 0 || s.hi[j] <= s.lo[j] {
			continue
		}
		gain, step := -dj, 1.0
		if s.atUpper[j] {
			gain, step = dj, -1
		}
		if gain <= score {
			continue
		}
		if bland {
			return j, step
		}
		best, dir, score = j, step, gain
	}
	return best, dir
}

// ratio finds how far the entering column can move, and the row that blocks it (-1 when
// the column reaches its own other bound first)
func (s *simplex) ratio(j int, dir float64, bland bool) (int, bool, float64) {
	theta := s.hi[j] - s.lo[j]
	leave, toUpper, bestPivot := -1, false, 0.0
	for i, c := range s.col {
		a := dir * c
		b := s.basis[i]
		var step float64
		var up bool
		switch {
		case a > pivotTol:
			if math.IsInf(s.lo[b], -1) {
				continue
			}
			step = (s.xb[i] - s.lo[b]) / a
		case a < -pivotTol:
			if math.IsInf(s.hi[b], 1) {
				continue
			}
			step, up = (s.hi[b]-s.xb[i])/-a, true
		default:
			continue
		}
		if step < 0 {
			step = 0
		}
		size := math.Abs(a)
		switch {
		case step < theta-ratioTol:
		case step <= theta+ratioTol && leave >= 0:
			if bland && b > s.basis[leave] {
				continue
			}
			if !bland && size <= bestPivot {
				continue
			}
		default:
			continue
		}
		theta, leave, toUpper, bestPivot = step, i, up, size
	}
	return leave, toUpper, theta
}

// pivot makes column j basic in row r, s.col must hold column j
func (s *simplex) pivot(r, j int) {
	prow := &s.rows[r]
	inv := 1 / s.col[r]
	for k := range prow.val {
		prow.val[k] *= inv
	}
	prow.val[sort.SearchInts(prow.idx, j)] = 1
	for i := range s.rows {
		if i == r || s.col[i] == 0 {
			continue
		}
		s.rows[i].subScaled(s.col[i], prow, &s.buf)
	}
	if f := s.d[j]; f != 0 {
		for k, c := range prow.idx {
			s.d[c] -= f * prow.val[k]
		}
		s.d[j] = 0
	}
}

// solveLP minimises objective.x over 0 <= x <= 1 subject to rows, returning the optimum
// and the value of every column
func solveLP(ctx context.Context, objective []float64, rows []lpRow) (float64, []float64, error) {
	s := newSimplex(len(objective), rows)
	if err := s.solve(ctx, objective); err != nil {
		return 0, nil, err
	}
	x := make([]float64, len(objective))
	obj := 0.0
	for j := range x {
		x[j] = math.Min(1, math.Max(0, s.value(j)))
		obj += objective[j] * x[j]
	}
	return obj, x, nil
}
