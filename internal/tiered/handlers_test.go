package tiered

import "testing"

func TestHandlePushPop(t *testing.T) {
	vm := NewVM(nil)
	vm.Quiet = true
	HandlePush(vm, 5)
	if got := vm.Pop(); got != 5 {
		t.Errorf("got %d, want 5", got)
	}
}

func TestHandleArithmetic(t *testing.T) {
	cases := []struct {
		name    string
		handler HandlerFunc
		a, b    int
		want    int
	}{
		{"add", HandleAdd, 2, 3, 5},
		{"add_buggy", HandleAddBuggy, 2, 3, 1005},
		{"sub", HandleSub, 10, 4, 6},
		{"mul", HandleMul, 3, 4, 12},
		{"div", HandleDiv, 20, 4, 5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			vm := NewVM(nil)
			vm.Quiet = true
			vm.Push(c.a)
			vm.Push(c.b)
			c.handler(vm, 0)
			if got := vm.Pop(); got != c.want {
				t.Errorf("%s(%d, %d) = %d, want %d", c.name, c.a, c.b, got, c.want)
			}
		})
	}
}

func TestHandleDivByZeroPanics(t *testing.T) {
	vm := NewVM(nil)
	vm.Quiet = true
	vm.Push(1)
	vm.Push(0)

	defer func() {
		if recover() == nil {
			t.Error("expected HandleDiv to panic on division by zero")
		}
	}()
	HandleDiv(vm, 0)
}

func TestHandleSquare(t *testing.T) {
	vm := NewVM(nil)
	vm.Quiet = true
	vm.Push(6)
	HandleSquare(vm, 0)
	if got := vm.Pop(); got != 36 {
		t.Errorf("HandleSquare(6) = %d, want 36", got)
	}
}

func TestHandleHaltSetsFlag(t *testing.T) {
	vm := NewVM(nil)
	vm.Quiet = true
	HandleHalt(vm, 0)
	if !vm.Halted {
		t.Error("HandleHalt should set vm.Halted")
	}
}

func TestDefaultHandlersRegistersExpectedOpcodes(t *testing.T) {
	handlers := DefaultHandlers()
	for _, op := range []Opcode{OpPush, OpAdd, OpSub, OpMul, OpDiv, OpPrint, OpHalt, OpSquare} {
		if _, ok := handlers[op]; !ok {
			t.Errorf("DefaultHandlers() missing opcode %d", op)
		}
	}
}
