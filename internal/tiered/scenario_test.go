package tiered

import "testing"

// TestGlobalBeforeHookAbortsAfterThreeInvocations exercises a before hook
// installed once across every opcode rule (AddGlobalBeforeHook), modeling
// the original example's shared auth/logging/validation/metrics chain: it
// passes for the first three dispatches and then fails for every dispatch
// after, so only three opcode payloads ever run even though the program
// keeps stepping through its remaining instructions.
func TestGlobalBeforeHookAbortsAfterThreeInvocations(t *testing.T) {
	d := NewDispatcher()
	for op, h := range DefaultHandlers() {
		if err := d.RegisterOpcode(op, h); err != nil {
			t.Fatalf("RegisterOpcode(%d) error = %v", op, err)
		}
	}

	invocations, allowed := 0, 0
	d.AddGlobalBeforeHook(func(hookCtx, payloadCtx any) bool {
		invocations++
		pass := invocations <= 3
		if pass {
			allowed++
		}
		return pass
	}, nil)

	// Re-register so the global hook is attached to each opcode's rule.
	for op, h := range DefaultHandlers() {
		if err := d.RegisterOpcode(op, h); err != nil {
			t.Fatalf("RegisterOpcode(%d) error = %v", op, err)
		}
	}
	d.EnterCachedMode()

	program := []Instruction{
		{Op: OpPush, Operand: 1},
		{Op: OpPush, Operand: 2},
		{Op: OpAdd},
		{Op: OpPush, Operand: 3},
		{Op: OpMul},
		{Op: OpPrint},
		{Op: OpHalt},
	}
	vm := NewVM(program)
	vm.Quiet = true

	if err := d.Run(vm); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if allowed != 3 {
		t.Errorf("opcode payloads that ran = %d, want exactly 3", allowed)
	}
	if invocations != len(program) {
		t.Errorf("hook invocations = %d, want %d (one per dispatched instruction)", invocations, len(program))
	}
	if vm.Halted {
		t.Error("HALT's payload should have been aborted by the hook, so the VM never actually halts")
	}
}

// TestTieredHotSwapExactValues reproduces the hot-swap numeric scenario: a
// buggy ADD handler yields 1015 for 5+10, a fixed ADD yields 15, and the
// swap records at least one cache invalidation.
func TestTieredHotSwapExactValues(t *testing.T) {
	d := NewDispatcher()
	for op, h := range DefaultHandlers() {
		if err := d.RegisterOpcode(op, h); err != nil {
			t.Fatalf("RegisterOpcode(%d) error = %v", op, err)
		}
	}
	if err := d.RegisterOpcode(OpAdd, HandleAddBuggy); err != nil {
		t.Fatalf("RegisterOpcode(buggy add) error = %v", err)
	}
	d.EnterCachedMode()

	program := []Instruction{
		{Op: OpPush, Operand: 5},
		{Op: OpPush, Operand: 10},
		{Op: OpAdd},
		{Op: OpPrint},
		{Op: OpHalt},
	}

	buggyVM := runProgram(t, d, program)
	if len(buggyVM.Out) != 1 || buggyVM.Out[0] != 1015 {
		t.Fatalf("buggy ADD result = %v, want [1015]", buggyVM.Out)
	}

	if err := d.UpdateOpcode(OpAdd, HandleAdd, "fix add bug"); err != nil {
		t.Fatalf("UpdateOpcode error = %v", err)
	}
	d.EnterCachedMode()

	fixedVM := runProgram(t, d, program)
	if len(fixedVM.Out) != 1 || fixedVM.Out[0] != 15 {
		t.Fatalf("fixed ADD result = %v, want [15]", fixedVM.Out)
	}

	if stats := d.Stats(); stats.CacheInvalidations < 1 {
		t.Errorf("CacheInvalidations = %d, want >= 1", stats.CacheInvalidations)
	}
}

// TestInterpreterEquivalenceAcrossModes runs the same program through both
// dispatch modes and checks they leave the same value on top of the stack.
func TestInterpreterEquivalenceAcrossModes(t *testing.T) {
	program := []Instruction{
		{Op: OpPush, Operand: 100},
		{Op: OpPush, Operand: 50},
		{Op: OpAdd},
		{Op: OpPush, Operand: 2},
		{Op: OpMul},
		{Op: OpHalt},
	}

	cached := newDispatcherWithDefaults(t)
	cachedVM := runProgram(t, cached, program)
	if got := cachedVM.Peek(); got != 300 {
		t.Errorf("cached mode: top of stack = %d, want 300", got)
	}

	uncached := newDispatcherWithDefaults(t)
	uncached.EnterUncachedMode()
	uncachedVM := runProgram(t, uncached, program)
	if got := uncachedVM.Peek(); got != 300 {
		t.Errorf("uncached mode: top of stack = %d, want 300", got)
	}
}
