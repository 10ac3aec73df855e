package rule

import (
	"testing"

	"sfpm/internal/criteria"
	"sfpm/internal/facts"
	"sfpm/internal/value"
)

func dictWith(pairs map[string]value.Value) *facts.Dict {
	d := facts.NewDict(len(pairs))
	for k, v := range pairs {
		d.Add(k, v)
	}
	return d
}

func TestEvaluateConjunction(t *testing.T) {
	c1 := criteria.New("hp", criteria.Less, value.FromInt(30))
	c2 := criteria.New("enemies", criteria.GreaterEqual, value.FromInt(2))
	r := New([]*criteria.Criteria{c1, c2}, func(any) {}, nil, "critical_situation")

	if r.CriteriaCount() != 2 {
		t.Fatalf("CriteriaCount() = %d, want 2", r.CriteriaCount())
	}

	match := r.Evaluate(dictWith(map[string]value.Value{
		"hp":       value.FromInt(20),
		"enemies":  value.FromInt(3),
	}))
	if !match.Matched || match.CriteriaCount != 2 {
		t.Errorf("Evaluate() = %+v, want a full match", match)
	}

	noMatch := r.Evaluate(dictWith(map[string]value.Value{
		"hp":      value.FromInt(20),
		"enemies": value.FromInt(1),
	}))
	if noMatch.Matched {
		t.Error("expected the second criterion to fail the conjunction")
	}
}

func TestEvaluateShortCircuitsOnFirstFailure(t *testing.T) {
	calls := 0
	neverEvaluated := criteria.NewPredicate("hp", func(v value.Value, ctx any) bool {
		calls++
		return true
	}, nil, "counter")

	alwaysFails := criteria.New("hp", criteria.Equal, value.FromInt(-1))
	r := New([]*criteria.Criteria{alwaysFails, neverEvaluated}, func(any) {}, nil, "")

	r.Evaluate(dictWith(map[string]value.Value{"hp": value.FromInt(5)}))
	if calls != 0 {
		t.Error("a failing earlier criterion should short-circuit the rest")
	}
}

func TestAutoGeneratedNameFallsBackToID(t *testing.T) {
	r := New(nil, nil, nil, "")
	if r.Name() != r.ID() {
		t.Errorf("Name() = %q, ID() = %q, want them equal when no name was given", r.Name(), r.ID())
	}
}

func TestExecutePayloadHookOrdering(t *testing.T) {
	var order []string

	r := New(nil, func(any) {
		order = append(order, "payload")
	}, nil, "ordered")

	r.AddBeforeHook(func(hookCtx, payloadCtx any) bool {
		order = append(order, "before")
		return true
	}, nil)
	r.AddMiddlewareHook(func(hookCtx, payloadCtx any) bool {
		order = append(order, "middleware")
		return true
	}, nil)
	r.AddAfterHook(func(hookCtx, payloadCtx any) bool {
		order = append(order, "after")
		return true
	}, nil)

	r.ExecutePayload()

	want := []string{"before", "middleware", "payload", "after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBeforeHookAbortSkipsEverythingAfter(t *testing.T) {
	var ran []string

	r := New(nil, func(any) {
		ran = append(ran, "payload")
	}, nil, "aborted")
	r.AddBeforeHook(func(hookCtx, payloadCtx any) bool {
		return false
	}, nil)
	r.AddAfterHook(func(hookCtx, payloadCtx any) bool {
		ran = append(ran, "after")
		return true
	}, nil)

	r.ExecutePayload()

	if len(ran) != 0 {
		t.Errorf("expected no further hooks or payload to run, got %v", ran)
	}
}

func TestAfterHooksAllRunRegardlessOfReturn(t *testing.T) {
	count := 0
	r := New(nil, func(any) {}, nil, "after_all")
	r.AddAfterHook(func(hookCtx, payloadCtx any) bool {
		count++
		return false
	}, nil)
	r.AddAfterHook(func(hookCtx, payloadCtx any) bool {
		count++
		return false
	}, nil)

	r.ExecutePayload()

	if count != 2 {
		t.Errorf("count = %d, want 2 (after hooks must all run regardless of return value)", count)
	}
}
