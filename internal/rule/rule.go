// Package rule implements the conjunctive rule: a list of criteria, a
// payload, an optional priority, and three ordered hook chains that run
// around the payload.
package rule

import (
	"github.com/google/uuid"

	"sfpm/internal/criteria"
	"sfpm/internal/facts"
)

// PayloadFunc is the action a Rule fires when it is selected.
type PayloadFunc func(ctx any)

// HookFunc is a before/middleware/after callback. Before and middleware
// hooks can abort the firing by returning false; after hooks' return
// value is ignored.
type HookFunc func(hookCtx, payloadCtx any) bool

// EvalResult is the outcome of evaluating a Rule against a fact source.
type EvalResult struct {
	Matched       bool
	CriteriaCount int
}

type hook struct {
	fn  HookFunc
	ctx any
}

// Rule is a conjunction of criteria plus a payload and hook chains. Its
// specificity is the number of criteria it carries, fixed for the rule's
// lifetime.
type Rule struct {
	id         string
	name       string
	criteria   []*criteria.Criteria
	payload    PayloadFunc
	payloadCtx any
	priority   int

	before     []hook
	middleware []hook
	after      []hook
}

// New builds a rule over the given criteria (the rule owns this slice;
// callers should not mutate it afterwards). When name is empty, a UUID is
// generated so the rule still has a stable identity for logs and
// uncached-mode diagnostics.
func New(criteria []*criteria.Criteria, payload PayloadFunc, payloadCtx any, name string) *Rule {
	id := uuid.NewString()
	if name == "" {
		name = id
	}
	return &Rule{
		id:         id,
		name:       name,
		criteria:   criteria,
		payload:    payload,
		payloadCtx: payloadCtx,
	}
}

// ID returns the rule's generated identity (stable even when Name was
// supplied explicitly).
func (r *Rule) ID() string { return r.id }

// Name returns the rule's display name.
func (r *Rule) Name() string { return r.name }

// CriteriaCount is the rule's specificity.
func (r *Rule) CriteriaCount() int {
	if r == nil {
		return 0
	}
	return len(r.criteria)
}

// Priority returns the rule's tie-break priority (default 0).
func (r *Rule) Priority() int { return r.priority }

// SetPriority updates the rule's tie-break priority.
func (r *Rule) SetPriority(p int) { r.priority = p }

// Evaluate conjuncts every criterion in order, short-circuiting on the
// first failure. A rule with zero criteria matches vacuously with
// specificity 0.
func (r *Rule) Evaluate(src facts.Source) EvalResult {
	if r == nil || src == nil {
		return EvalResult{}
	}
	for _, c := range r.criteria {
		if c == nil {
			continue
		}
		if !c.Evaluate(src) {
			return EvalResult{}
		}
	}
	return EvalResult{Matched: true, CriteriaCount: len(r.criteria)}
}

// AddBeforeHook appends a before-chain hook. Before hooks run first, in
// insertion order; any of them returning false aborts the firing before
// middleware, payload, or after hooks run.
func (r *Rule) AddBeforeHook(fn HookFunc, ctx any) bool {
	if r == nil || fn == nil {
		return false
	}
	r.before = append(r.before, hook{fn: fn, ctx: ctx})
	return true
}

// AddMiddlewareHook appends a middleware-chain hook. Middleware hooks run
// after every before hook has passed, and before the payload; like before
// hooks, any of them returning false aborts the firing.
//
// This runs entirely before the payload rather than wrapping it. The
// source's own comment calls this a "wrap", but the implementation never
// did that, and this port keeps the documented behavior rather than the
// comment's aspiration.
func (r *Rule) AddMiddlewareHook(fn HookFunc, ctx any) bool {
	if r == nil || fn == nil {
		return false
	}
	r.middleware = append(r.middleware, hook{fn: fn, ctx: ctx})
	return true
}

// AddAfterHook appends an after-chain hook. After hooks always run once
// the payload has run, regardless of what they return, and a hook
// returning false does not stop the remaining after hooks from running.
func (r *Rule) AddAfterHook(fn HookFunc, ctx any) bool {
	if r == nil || fn == nil {
		return false
	}
	r.after = append(r.after, hook{fn: fn, ctx: ctx})
	return true
}

// ClearHooks drops all three hook chains.
func (r *Rule) ClearHooks() {
	if r == nil {
		return
	}
	r.before = nil
	r.middleware = nil
	r.after = nil
}

func (r *Rule) BeforeHookCount() int     { return len(r.before) }
func (r *Rule) MiddlewareHookCount() int { return len(r.middleware) }
func (r *Rule) AfterHookCount() int      { return len(r.after) }

// ExecutePayload walks before, then middleware, then the payload, then
// after, in that order. A before or middleware hook returning false aborts
// silently: the remaining hooks in that chain, the payload, and the after
// chain never run. This is not surfaced as an error; hook abort is a
// normal control-flow outcome.
func (r *Rule) ExecutePayload() {
	if r == nil {
		return
	}

	for _, h := range r.before {
		if !h.fn(h.ctx, r.payloadCtx) {
			return
		}
	}
	for _, h := range r.middleware {
		if !h.fn(h.ctx, r.payloadCtx) {
			return
		}
	}

	if r.payload != nil {
		r.payload(r.payloadCtx)
	}

	for _, h := range r.after {
		h.fn(h.ctx, r.payloadCtx)
	}
}
