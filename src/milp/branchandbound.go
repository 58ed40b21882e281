package milp

import (
	"context"
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultNodeLimit is used when BranchAndBound.NodeLimit is zero
	DefaultNodeLimit = 100000

	integralityTol = 1e-6
	pruneTol       = 1e-9
)

// BranchAndBound solves binary programs with LP relaxations solved by a bounded-variable simplex
type BranchAndBound struct {
	NodeLimit int
}

// NewBranchAndBound is the constructor
func NewBranchAndBound(nodeLimit int) *BranchAndBound {
	return &BranchAndBound{NodeLimit: nodeLimit}
}

// bbNode is a subproblem, -1 marks a free variable
type bbNode []int8

// Solve satisfies the Backend interface. Pinned variables are substituted first and the
// rest is split into components that share no constraint, each searched on its own.
// The search is depth first, branching on the most fractional variable and taking the
// side closest to the relaxation first. NodeLimit counts nodes over all components.
func (bb *BranchAndBound) Solve(ctx context.Context, p *Problem) (Assignment, error) {
	limit := bb.NodeLimit
	if limit <= 0 {
		limit = DefaultNodeLimit
	}
	values := make([]bool, p.NumVariables())
	for v, value := range p.fixed {
		values[v] = value
	}
	components, err := split(p)
	if err != nil {
		return Assignment{}, err
	}
	explored := 0
	for _, component := range components {
		sub, nodes, err := search(ctx, component.problem, limit-explored)
		explored += nodes
		if errors.Is(err, ErrNodeLimit) {
			return Assignment{}, fmt.Errorf("%w after %d nodes", ErrNodeLimit, explored)
		}
		if err != nil {
			return Assignment{}, err
		}
		for i, v := range component.vars {
			values[v] = sub[i]
		}
	}
	return Assignment{Values: values, Objective: p.Evaluate(values), Nodes: explored}, nil
}

// component is an independent part of a problem
type component struct {
	vars    []int // variables of the full problem, by index in the component
	problem *Problem
}

// split substitutes the pinned variables and groups the rest by the constraints they share
func split(p *Problem) ([]component, error) {
	n := p.NumVariables()
	parent := make([]int, n)
	for v := range parent {
		parent[v] = v
	}
	find := func(v int) int {
		for parent[v] != v {
			parent[v] = parent[parent[v]]
			v = parent[v]
		}
		return v
	}
	free := func(t Term) bool {
		_, pinned := p.fixed[t.Var]
		return !pinned && t.Coef != 0
	}
	for _, c := range p.constraints {
		root := -1
		for _, t := range c.Terms {
			if !free(t) {
				continue
			}
			if root < 0 {
				root = find(t.Var)
			} else if r := find(t.Var); r != root {
				parent[r] = root
			}
		}
	}

	components := []component{}
	byRoot := make(map[int]int)
	local := make([]int, n)
	for v := 0; v < n; v++ {
		if _, pinned := p.fixed[v]; pinned {
			continue
		}
		root := find(v)
		k, ok := byRoot[root]
		if !ok {
			k = len(components)
			byRoot[root] = k
			components = append(components, component{problem: NewProblem()})
		}
		sub := components[k].problem
		local[v] = sub.AddVariable(p.names[v])
		sub.SetObjective(local[v], p.objective[v])
		components[k].vars = append(components[k].vars, v)
	}

	for _, c := range p.constraints {
		rhs := c.RHS
		terms := []Term{}
		k := -1
		for _, t := range c.Terms {
			if value, pinned := p.fixed[t.Var]; pinned {
				if value {
					rhs -= t.Coef
				}
				continue
			}
			if t.Coef == 0 {
				continue
			}
			k = byRoot[find(t.Var)]
			terms = append(terms, Term{Var: local[t.Var], Coef: t.Coef})
		}
		if k < 0 {
			// only pinned variables left, c.RHS - rhs is their sum
			if !c.satisfied(c.RHS - rhs) {
				return nil, ErrInfeasible
			}
			continue
		}
		sub := components[k].problem
		sub.constraints = append(sub.constraints, &Constraint{Terms: terms, Sense: c.Sense, RHS: rhs})
	}
	return components, nil
}

// search runs the depth first branch-and-bound on a problem without pins
func search(ctx context.Context, p *Problem, limit int) ([]bool, int, error) {
	numVars := p.NumVariables()
	root := make(bbNode, numVars)
	for i := range root {
		root[i] = -1
	}

	// the empty selection is a cheap first incumbent
	var incumbent []bool
	best := math.Inf(1)
	if empty := make([]bool, numVars); p.Feasible(empty) {
		incumbent, best = empty, 0
	}

	stack := []bbNode{root}
	explored := 0
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, explored, err
		}
		if explored >= limit {
			return nil, explored, ErrNodeLimit
		}
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		explored++

		obj, x, err := relax(ctx, p, node)
		if errors.Is(err, ErrInfeasible) {
			continue
		}
		if err != nil {
			return nil, explored, err
		}
		if obj >= best-pruneTol {
			continue
		}

		branchVar, maxFrac := -1, integralityTol
		for v, value := range x {
			if node[v] != -1 {
				continue
			}
			if frac := math.Abs(value - math.Round(value)); frac > maxFrac {
				branchVar, maxFrac = v, frac
			}
		}
		if branchVar == -1 {
			values := make([]bool, numVars)
			for v, value := range x {
				values[v] = value > 0.5
			}
			if p.Feasible(values) {
				if score := p.Evaluate(values); score < best {
					incumbent, best = values, score
				}
			}
			continue
		}

		down, up := node.child(branchVar, 0), node.child(branchVar, 1)
		if x[branchVar] >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}
	if incumbent == nil {
		return nil, explored, ErrInfeasible
	}
	return incumbent, explored, nil
}

// child copies a node with one more variable fixed
func (n bbNode) child(v int, value int8) bbNode {
	c := make(bbNode, len(n))
	copy(c, n)
	c[v] = value
	return c
}

// relax solves the LP relaxation of a subproblem, returning the objective and a value per variable.
// Variables fixed by the node are substituted, equalities stay single rows.
func relax(ctx context.Context, p *Problem, node bbNode) (float64, []float64, error) {
	x := make([]float64, len(node))
	constant := 0.0
	col := make(map[int]int)
	free := []int{}
	for v, state := range node {
		switch state {
		case -1:
			col[v] = len(free)
			free = append(free, v)
		case 1:
			x[v] = 1
			constant += p.objective[v]
		}
	}

	rows := []lpRow{}
	for _, c := range p.constraints {
		row := lpRow{sense: c.Sense, rhs: c.RHS}
		for _, term := range c.Terms {
			if j, ok := col[term.Var]; ok {
				row.terms = append(row.terms, Term{Var: j, Coef: term.Coef})
			} else if node[term.Var] == 1 {
				row.rhs -= term.Coef
			}
		}
		if len(row.terms) == 0 {
			if !c.satisfied(c.RHS - row.rhs) {
				return 0, nil, ErrInfeasible
			}
			continue
		}
		rows = append(rows, row)
	}
	if len(free) == 0 {
		return constant, x, nil
	}

	objective := make([]float64, len(free))
	for j, v := range free {
		objective[j] = p.objective[v]
	}
	obj, lpX, err := solveLP(ctx, objective, rows)
	if errors.Is(err, ErrInfeasible) {
		return 0, nil, ErrInfeasible
	}
	if err != nil {
		return 0, nil, fmt.Errorf("milp: lp relaxation failed: %w", err)
	}
	for j, v := range free {
		x[v] = lpX[j]
	}
	return obj + constant, x, nil
}
