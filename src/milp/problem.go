// Package milp holds a small binary linear program model and a branch-and-bound backend for it
package milp

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// feasibilityTol is the slack allowed when checking a constraint
const feasibilityTol = 1e-9

var (
	// ErrInfeasible is returned when no assignment satisfies the constraints
	ErrInfeasible = errors.New("milp: problem is infeasible")

	// ErrNodeLimit is returned when the search stops before proving optimality
	ErrNodeLimit = errors.New("milp: node limit reached")
)

// Sense is the comparison of a constraint
type Sense int

// the supported comparisons
const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

// String satisfies the Stringer interface
func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "="
	}
	return fmt.Sprintf("Sense(%d)", int(s))
}

// Term is a coefficient on a variable
type Term struct {
	Var  int
	Coef float64
}

// Constraint is sum(terms) <sense> RHS
type Constraint struct {
	Terms []Term
	Sense Sense
	RHS   float64
}

// NewConstraint is the constructor
func NewConstraint(sense Sense, rhs float64) *Constraint {
	return &Constraint{Sense: sense, RHS: rhs}
}

// Add appends a term and returns the constraint so calls can be chained
func (c *Constraint) Add(v int, coef float64) *Constraint {
	c.Terms = append(c.Terms, Term{Var: v, Coef: coef})
	return c
}

// satisfied checks the constraint for a left hand side value
func (c *Constraint) satisfied(lhs float64) bool {
	switch c.Sense {
	case LessEqual:
		return lhs <= c.RHS+feasibilityTol
	case GreaterEqual:
		return lhs >= c.RHS-feasibilityTol
	}
	return math.Abs(lhs-c.RHS) <= feasibilityTol
}

/*
Problem is a minimisation over binary variables with linear constraints
*/
type Problem struct {
	names       []string
	objective   []float64
	constraints []*Constraint
	fixed       map[int]bool
}

// NewProblem is the constructor
func NewProblem() *Problem {
	return &Problem{fixed: make(map[int]bool)}
}

// AddVariable adds a binary variable and returns its index
func (p *Problem) AddVariable(name string) int {
	p.names = append(p.names, name)
	p.objective = append(p.objective, 0)
	return len(p.names) - 1
}

// NumVariables returns the number of variables
func (p *Problem) NumVariables() int { return len(p.names) }

// NumConstraints returns the number of constraints
func (p *Problem) NumConstraints() int { return len(p.constraints) }

// Name returns the name of a variable
func (p *Problem) Name(v int) string { return p.names[v] }

// SetObjective sets the objective coefficient of a variable
func (p *Problem) SetObjective(v int, coef float64) {
	p.objective[v] = coef
}

// Objective returns the objective coefficient of a variable
func (p *Problem) Objective(v int) float64 { return p.objective[v] }

// ResetObjective sets every objective coefficient to zero
func (p *Problem) ResetObjective() {
	for i := range p.objective {
		p.objective[i] = 0
	}
}

// AddConstraint adds a constraint, every term must name an existing variable
func (p *Problem) AddConstraint(c *Constraint) error {
	for _, term := range c.Terms {
		if term.Var < 0 || term.Var >= len(p.names) {
			return fmt.Errorf("milp: constraint uses unknown variable %d", term.Var)
		}
	}
	p.constraints = append(p.constraints, c)
	return nil
}

// Fix pins a variable to a value
func (p *Problem) Fix(v int, value bool) {
	p.fixed[v] = value
}

// ClearFixed removes every pin
func (p *Problem) ClearFixed() {
	p.fixed = make(map[int]bool)
}

// NumFixed returns the number of pinned variables
func (p *Problem) NumFixed() int { return len(p.fixed) }

// Evaluate returns the objective value of an assignment
func (p *Problem) Evaluate(values []bool) float64 {
	total := 0.0
	for i, v := range values {
		if v {
			total += p.objective[i]
		}
	}
	return total
}

// Feasible reports whether an assignment satisfies every constraint and pin
func (p *Problem) Feasible(values []bool) bool {
	if len(values) != len(p.names) {
		return false
	}
	for v, value := range p.fixed {
		if values[v] != value {
			return false
		}
	}
	for _, c := range p.constraints {
		lhs := 0.0
		for _, term := range c.Terms {
			if values[term.Var] {
				lhs += term.Coef
			}
		}
		if !c.satisfied(lhs) {
			return false
		}
	}
	return true
}

// Assignment is a solution of a Problem
type Assignment struct {
	Values    []bool
	Objective float64
	Nodes     int // branch-and-bound nodes explored
}

// Value returns the value of a variable
func (a Assignment) Value(v int) bool {
	return a.Values[v]
}

// Backend solves a Problem to optimality
type Backend interface {
	Solve(ctx context.Context, p *Problem) (Assignment, error)
}
