// Package criteria implements a single predicate over one named fact: the
// atomic unit a Rule conjoins to build up specificity.
package criteria

import (
	"sfpm/internal/facts"
	"sfpm/internal/value"
)

// Operator identifies how a comparison Criteria compares the fact's value
// against its expected value. Criteria with the Predicate operator do not
// compare at all and invoke a user function instead.
type Operator int

const (
	Equal Operator = iota
	NotEqual
	Greater
	Less
	GreaterEqual
	LessEqual
	Predicate
)

// PredicateFunc evaluates a fact's value against arbitrary user logic. It
// receives the same user context the Criteria was constructed with.
type PredicateFunc func(v value.Value, ctx any) bool

// Criteria is an immutable comparison or predicate over one fact. A
// Criteria never mixes the two shapes: comparison criteria never invoke a
// predicate, predicate criteria never consult Expected.
type Criteria struct {
	factName string
	op       Operator
	expected value.Value

	predicate PredicateFunc
	predCtx   any
	debugName string
}

// New creates a comparison criterion: fact `name`, compared to `expected`
// with `op`. op must not be Predicate.
func New(name string, op Operator, expected value.Value) *Criteria {
	if name == "" {
		return nil
	}
	return &Criteria{factName: name, op: op, expected: expected}
}

// NewPredicate creates a predicate criterion. A nil predicate produces a
// criterion that always fails evaluation rather than panicking, the same
// defensive behavior the original C source documents for a null predicate.
func NewPredicate(name string, pred PredicateFunc, ctx any, debugName string) *Criteria {
	if name == "" {
		return nil
	}
	return &Criteria{factName: name, op: Predicate, predicate: pred, predCtx: ctx, debugName: debugName}
}

// FactName returns the fact this criterion evaluates.
func (c *Criteria) FactName() string {
	if c == nil {
		return ""
	}
	return c.factName
}

// Op returns the criterion's operator.
func (c *Criteria) Op() Operator {
	if c == nil {
		return Equal
	}
	return c.op
}

// DebugName returns the optional predicate debug name (empty for
// comparison criteria or when none was supplied).
func (c *Criteria) DebugName() string {
	if c == nil {
		return ""
	}
	return c.debugName
}

// Evaluate looks up the criterion's fact in facts and reports whether it
// matches. A missing fact, a kind mismatch between the fact and a
// comparison criterion's expected value, or a nil predicate are all
// misses (false), never errors. A predicate criterion has no input kind
// of its own: its predicate receives the fact's value whatever its kind.
func (c *Criteria) Evaluate(src facts.Source) bool {
	if c == nil || src == nil {
		return false
	}

	actual, ok := src.TryGet(c.factName)
	if !ok {
		return false
	}

	if c.op == Predicate {
		if c.predicate == nil {
			return false
		}
		return c.predicate(actual, c.predCtx)
	}

	cmp, ok := value.Compare(actual, c.expected)
	if !ok {
		return false
	}

	switch c.op {
	case Equal:
		return cmp == 0
	case NotEqual:
		return cmp != 0
	case Greater:
		return cmp > 0
	case Less:
		return cmp < 0
	case GreaterEqual:
		return cmp >= 0
	case LessEqual:
		return cmp <= 0
	default:
		return false
	}
}
