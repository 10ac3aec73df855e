// Package tiered implements the dual-mode opcode dispatcher: a cached
// direct-index path and an uncached full-matcher path over the same rule
// set, switching automatically whenever the rule set is mutated.
package tiered

import (
	"fmt"

	"sfpm/internal/criteria"
	"sfpm/internal/facts"
	"sfpm/internal/matcher"
	"sfpm/internal/rule"
	"sfpm/internal/trace"
	"sfpm/internal/value"
)

// Mode identifies which of the two dispatch strategies is active.
type Mode int

const (
	Cached Mode = iota
	Uncached
)

func (m Mode) String() string {
	if m == Cached {
		return "cached"
	}
	return "uncached"
}

// opcodeContext is the per-opcode mutable slot the cached rule's payload
// closes over. It is not re-entrant: a handler that recursively dispatches
// its own opcode will clobber this slot's operand.
type opcodeContext struct {
	vm      *VM
	operand int
	handler HandlerFunc
}

// Stats snapshots the dispatcher's dispatch counters and mode.
type Stats struct {
	CachedDispatches   uint64
	UncachedDispatches uint64
	CacheInvalidations uint64
	Version            uint64
	Mode               Mode
}

// Dispatcher maps opcodes to rules whose single criterion is
// `opcode == <value>` and whose payload invokes the opcode's registered
// handler. It is not safe for concurrent use.
type Dispatcher struct {
	mode         Mode
	cacheVersion uint64

	ruleCache [OpMax]*rule.Rule
	contexts  [OpMax]*opcodeContext

	allRules []*rule.Rule
	recorder *trace.Recorder

	globalBefore []hookSpec

	cachedDispatches   uint64
	uncachedDispatches uint64
	cacheInvalidations uint64
}

// NewDispatcher returns a dispatcher in cached mode, version 1, with no
// opcodes registered.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{mode: Cached, cacheVersion: 1}
}

// hookSpec is a stored (fn, ctx) pair applied to every opcode rule as it
// is built, letting a caller install one hook across the whole opcode
// table instead of one rule at a time.
type hookSpec struct {
	fn  rule.HookFunc
	ctx any
}

// AddGlobalBeforeHook installs fn as a before-hook on every opcode rule
// the dispatcher builds from this point on (new registrations and future
// hot-swaps). Existing cached rules are unaffected until re-registered.
func (d *Dispatcher) AddGlobalBeforeHook(fn rule.HookFunc, ctx any) {
	d.globalBefore = append(d.globalBefore, hookSpec{fn: fn, ctx: ctx})
}

// SetRecorder attaches a flight recorder: every opcode rule registered
// from this point on logs a "dispatch" event through it after its handler
// runs. Rules registered before the call are unaffected until they are
// next replaced via RegisterOpcode/UpdateOpcode. Pass nil to stop
// recording for future registrations.
func (d *Dispatcher) SetRecorder(r *trace.Recorder) {
	d.recorder = r
}

func opcodeRuleName(op Opcode) string {
	return fmt.Sprintf("opcode_%d", op)
}

// buildRule constructs the single-criterion rule for op, wired to ctx so
// Execute can mutate ctx.vm/ctx.operand before firing it.
func (d *Dispatcher) buildRule(op Opcode, handler HandlerFunc, ctx *opcodeContext) *rule.Rule {
	ctx.handler = handler
	c := criteria.New("opcode", criteria.Equal, value.FromInt(int(op)))
	payload := func(payloadCtx any) {
		pc := payloadCtx.(*opcodeContext)
		pc.handler(pc.vm, pc.operand)
	}
	name := opcodeRuleName(op)
	r := rule.New([]*criteria.Criteria{c}, payload, ctx, name)
	for _, h := range d.globalBefore {
		r.AddBeforeHook(h.fn, h.ctx)
	}
	if d.recorder != nil {
		r.AddAfterHook(d.recorder.HookFunc("dispatch"), name)
	}
	return r
}

// RegisterOpcode installs (or replaces) the handler for op. If the
// dispatcher was in cached mode, it transitions to uncached: any mutation
// of the rule set invalidates the cache, because the direct-index table
// must be rebuilt by an explicit EnterCachedMode call before it can be
// trusted again.
func (d *Dispatcher) RegisterOpcode(op Opcode, handler HandlerFunc) error {
	if op < 0 || int(op) >= OpMax {
		return fmt.Errorf("tiered: opcode %d out of range [0, %d)", op, OpMax)
	}

	ctx := d.contexts[op]
	if ctx == nil {
		ctx = &opcodeContext{}
		d.contexts[op] = ctx
	}

	newRule := d.buildRule(op, handler, ctx)
	oldRule := d.ruleCache[op]
	d.ruleCache[op] = newRule

	replaced := false
	for i, r := range d.allRules {
		if r == oldRule {
			d.allRules[i] = newRule
			replaced = true
			break
		}
	}
	if !replaced {
		d.allRules = append(d.allRules, newRule)
	}

	if d.mode == Cached {
		d.invalidate()
	}
	return nil
}

// UpdateOpcode hot-swaps op's handler. reason is purely documentary (it
// mirrors the original example's optional hot-swap log message) and has
// no effect on behavior.
func (d *Dispatcher) UpdateOpcode(op Opcode, handler HandlerFunc, reason string) error {
	_ = reason
	return d.RegisterOpcode(op, handler)
}

// UnregisterOpcode removes op's handler entirely. Dispatching an
// unregistered opcode afterwards behaves exactly as it did before any
// registration: fatal in cached mode, a silent no-op in uncached mode.
func (d *Dispatcher) UnregisterOpcode(op Opcode) error {
	if op < 0 || int(op) >= OpMax {
		return fmt.Errorf("tiered: opcode %d out of range [0, %d)", op, OpMax)
	}

	old := d.ruleCache[op]
	if old != nil {
		for i, r := range d.allRules {
			if r == old {
				d.allRules = append(d.allRules[:i], d.allRules[i+1:]...)
				break
			}
		}
		d.ruleCache[op] = nil
	}

	if d.mode == Cached {
		d.invalidate()
	}
	return nil
}

func (d *Dispatcher) invalidate() {
	d.mode = Uncached
	d.cacheInvalidations++
}

// EnterCachedMode switches to the direct-index fast path and bumps the
// cache version. Idempotent if already cached.
func (d *Dispatcher) EnterCachedMode() {
	if d.mode == Cached {
		return
	}
	d.mode = Cached
	d.cacheVersion++
}

// EnterUncachedMode switches to the full-matcher path. Idempotent if
// already uncached (repeated calls still do not re-increment the counter
// beyond the one transition that actually occurs).
func (d *Dispatcher) EnterUncachedMode() {
	if d.mode == Uncached {
		return
	}
	d.invalidate()
}

// Mode reports the dispatcher's current dispatch strategy.
func (d *Dispatcher) Mode() Mode { return d.mode }

// Execute dispatches one instruction against vm.
//
// In cached mode, an unregistered opcode is a fatal interpreter condition
// and Execute returns an error without touching vm. In uncached mode, an
// unregistered opcode is a silent no-op: the full matcher runs over the
// flat rule array and simply finds nothing to fire.
func (d *Dispatcher) Execute(vm *VM, instr Instruction) (err error) {
	op := instr.Op
	if op < 0 || int(op) >= OpMax {
		return fmt.Errorf("tiered: opcode %d out of range [0, %d)", op, OpMax)
	}

	defer func() {
		if r := recover(); r != nil {
			if vmErr, ok := r.(*VMError); ok {
				err = vmErr
				return
			}
			panic(r)
		}
	}()

	if d.mode == Cached {
		r := d.ruleCache[op]
		if r == nil {
			return fmt.Errorf("tiered: unknown opcode %d in cached mode", op)
		}
		ctx := d.contexts[op]
		ctx.vm = vm
		ctx.operand = instr.Operand
		r.ExecutePayload()
		d.cachedDispatches++
		return nil
	}

	ctx := d.contexts[op]
	if ctx != nil {
		ctx.vm = vm
		ctx.operand = instr.Operand
	}
	src := facts.Single{Name: "opcode", Value: value.FromInt(int(op))}
	matcher.Match(d.allRules, src, false)
	d.uncachedDispatches++
	return nil
}

// Run executes vm.Program from vm.PC until Halted or the program runs out,
// stepping vm.PC forward after every instruction.
func (d *Dispatcher) Run(vm *VM) error {
	for !vm.Halted && vm.PC < len(vm.Program) {
		instr := vm.Program[vm.PC]
		vm.PC++
		if err := d.Execute(vm, instr); err != nil {
			return err
		}
	}
	return nil
}

// Stats snapshots the dispatcher's counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		CachedDispatches:   d.cachedDispatches,
		UncachedDispatches: d.uncachedDispatches,
		CacheInvalidations: d.cacheInvalidations,
		Version:            d.cacheVersion,
		Mode:               d.mode,
	}
}
