package tiered

import "fmt"

// HandlerFunc implements one opcode's effect on the VM.
type HandlerFunc func(vm *VM, operand int)

// DefaultHandlers returns the stock arithmetic/stack handlers used by the
// example programs and the CLI demo (ports of the original source's
// op_push/op_add/... functions).
func DefaultHandlers() map[Opcode]HandlerFunc {
	return map[Opcode]HandlerFunc{
		OpPush:   HandlePush,
		OpAdd:    HandleAdd,
		OpSub:    HandleSub,
		OpMul:    HandleMul,
		OpDiv:    HandleDiv,
		OpPrint:  HandlePrint,
		OpHalt:   HandleHalt,
		OpSquare: HandleSquare,
	}
}

func HandlePush(vm *VM, operand int) {
	if !vm.Quiet {
		fmt.Printf("  [PUSH %d]\n", operand)
	}
	vm.Push(operand)
}

func HandleAdd(vm *VM, _ int) {
	b, a := vm.Pop(), vm.Pop()
	result := a + b
	if !vm.Quiet {
		fmt.Printf("  [ADD] %d + %d = %d\n", a, b, result)
	}
	vm.Push(result)
}

// HandleAddBuggy is the deliberately-wrong handler used by the
// tiered hot-swap demo: it adds 1000 to the correct result.
func HandleAddBuggy(vm *VM, _ int) {
	b, a := vm.Pop(), vm.Pop()
	result := a + b + 1000
	if !vm.Quiet {
		fmt.Printf("  [ADD_BUGGY] %d + %d = %d (bug)\n", a, b, result)
	}
	vm.Push(result)
}

func HandleSub(vm *VM, _ int) {
	b, a := vm.Pop(), vm.Pop()
	result := a - b
	if !vm.Quiet {
		fmt.Printf("  [SUB] %d - %d = %d\n", a, b, result)
	}
	vm.Push(result)
}

func HandleMul(vm *VM, _ int) {
	b, a := vm.Pop(), vm.Pop()
	result := a * b
	if !vm.Quiet {
		fmt.Printf("  [MUL] %d * %d = %d\n", a, b, result)
	}
	vm.Push(result)
}

func HandleDiv(vm *VM, _ int) {
	b, a := vm.Pop(), vm.Pop()
	if b == 0 {
		panic(&VMError{Reason: "division by zero"})
	}
	result := a / b
	if !vm.Quiet {
		fmt.Printf("  [DIV] %d / %d = %d\n", a, b, result)
	}
	vm.Push(result)
}

func HandlePrint(vm *VM, _ int) {
	vm.print(vm.Peek())
}

func HandleHalt(vm *VM, _ int) {
	if !vm.Quiet {
		fmt.Println("  [HALT] stopping")
	}
	vm.Halted = true
}

func HandleSquare(vm *VM, _ int) {
	v := vm.Pop()
	result := v * v
	if !vm.Quiet {
		fmt.Printf("  [SQUARE] %d^2 = %d\n", v, result)
	}
	vm.Push(result)
}
