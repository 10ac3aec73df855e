// Command sfpm runs the tiered fuzzy-pattern-matcher interpreter: assemble
// a small integer-stack program, dispatch it through the cached/uncached
// tiered dispatcher, and optionally save or restore its memory image.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sfpm/internal/hotreload"
	"sfpm/internal/sfpmconfig"
	"sfpm/internal/snapshot"
	"sfpm/internal/tiered"
	"sfpm/internal/trace"
)

func main() {
	configPath := flag.String("config", "", "Path to the sfpm config file (overrides workspace config)")
	noWorkspace := flag.Bool("no-workspace", false, "Disable .sfpm/ workspace discovery")
	workspaceDir := flag.String("workspace-dir", "", "Explicit workspace root (skip walk-up discovery)")
	initWorkspace := flag.Bool("init-workspace", false, "Create .sfpm/ template in current directory and exit")
	program := flag.String("program", "demo", "Program to run: demo | buggy-add | square-demo")
	mode := flag.String("mode", "", "Override runtime.start_mode: cached | uncached")
	saveSnapshot := flag.String("save-snapshot", "", "Save a post-run VM snapshot to this path")
	restoreSnapshot := flag.String("restore-snapshot", "", "Restore a VM snapshot from this path before running")
	watch := flag.Bool("watch", false, "Enable the hot-swap directory watcher")
	quiet := flag.Bool("quiet", false, "Suppress opcode trace output")
	traceDir := flag.String("trace-dir", "", "Record a JSON-lines dispatch trace to this directory")
	flag.Parse()

	if *initWorkspace {
		root := "."
		if *workspaceDir != "" {
			root = *workspaceDir
		}
		if err := sfpmconfig.InitWorkspace(root); err != nil {
			log.Fatalf("failed to initialize workspace: %v", err)
		}
		log.Printf("created .sfpm/ workspace in %s", root)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := sfpmconfig.WorkspaceOptions{
		Disable:     *noWorkspace,
		ExplicitDir: *workspaceDir,
	}

	cfg, wsDir, err := sfpmconfig.LoadWithWorkspace(*configPath, opts)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if wsDir != "" {
		log.Printf("using workspace config from %s", wsDir)
	}

	if cfg.Logging.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Logging.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	}

	if *mode != "" {
		cfg.Runtime.StartMode = *mode
	}
	if *quiet {
		cfg.Runtime.Quiet = true
	}

	vm := tiered.NewVM(selectProgram(*program))
	vm.Quiet = cfg.Runtime.Quiet
	if cfg.Runtime.StackSize > 0 {
		vm.Stack = make([]int, cfg.Runtime.StackSize)
	}

	dispatcher := tiered.NewDispatcher()

	if *traceDir != "" {
		recorder, err := trace.NewRecorder(*traceDir)
		if err != nil {
			log.Fatalf("failed to create trace recorder: %v", err)
		}
		if err := recorder.Start(*program); err != nil {
			log.Fatalf("failed to start trace recording: %v", err)
		}
		defer recorder.Close()
		dispatcher.SetRecorder(recorder)
	}

	for op, handler := range tiered.DefaultHandlers() {
		if err := dispatcher.RegisterOpcode(op, handler); err != nil {
			log.Fatalf("failed to register opcode %d: %v", op, err)
		}
	}
	if cfg.Runtime.StartMode == "cached" {
		dispatcher.EnterCachedMode()
	} else {
		dispatcher.EnterUncachedMode()
	}

	if *restoreSnapshot != "" {
		if err := restoreVM(vm, *restoreSnapshot); err != nil {
			log.Fatalf("failed to restore snapshot: %v", err)
		}
		log.Printf("restored VM state from %s", *restoreSnapshot)
	}

	if cfg.HotSwap.Enabled || *watch {
		debounce := time.Duration(cfg.HotSwap.DebounceMs) * time.Millisecond
		watcher, err := hotreload.New(cfg.HotSwap.WatchDir, dispatcher, textPatchLoader, debounce)
		if err != nil {
			log.Fatalf("failed to create hot-swap watcher: %v", err)
		}
		if err := watcher.Start(ctx); err != nil {
			log.Fatalf("failed to start hot-swap watcher: %v", err)
		}
		defer watcher.Stop()
	}

	if err := dispatcher.Run(vm); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("interpreter halted with error: %v", err)
	}

	stats := dispatcher.Stats()
	log.Printf("dispatch complete: mode=%s cached=%d uncached=%d invalidations=%d",
		stats.Mode, stats.CachedDispatches, stats.UncachedDispatches, stats.CacheInvalidations)

	if !vm.Quiet {
		fmt.Printf("output trace: %v\n", vm.Out)
	}

	if *saveSnapshot != "" {
		if err := saveVM(vm, cfg.Snapshot, *saveSnapshot); err != nil {
			log.Fatalf("failed to save snapshot: %v", err)
		}
		log.Printf("saved VM snapshot to %s", *saveSnapshot)
	}
}

// selectProgram returns one of a handful of illustrative bytecode
// programs by name, grounding the CLI's --program flag in the interpreter
// examples the tiered dispatcher was built to run.
func selectProgram(name string) []tiered.Instruction {
	switch name {
	case "buggy-add":
		return []tiered.Instruction{
			{Op: tiered.OpPush, Operand: 10},
			{Op: tiered.OpPush, Operand: 20},
			{Op: tiered.OpAdd},
			{Op: tiered.OpPrint},
			{Op: tiered.OpHalt},
		}
	case "square-demo":
		return []tiered.Instruction{
			{Op: tiered.OpPush, Operand: 7},
			{Op: tiered.OpSquare},
			{Op: tiered.OpPrint},
			{Op: tiered.OpHalt},
		}
	default:
		return []tiered.Instruction{
			{Op: tiered.OpPush, Operand: 3},
			{Op: tiered.OpPush, Operand: 4},
			{Op: tiered.OpAdd},
			{Op: tiered.OpPush, Operand: 2},
			{Op: tiered.OpMul},
			{Op: tiered.OpPrint},
			{Op: tiered.OpHalt},
		}
	}
}

// outputCapacity is the fixed size of the heap region a snapshot carries
// for vm.Out, in ints. Save and restore must agree on this size regardless
// of how many values the VM has actually printed so far: a saved snapshot
// with fewer entries than the VM later accumulates (or a restore attempted
// before any PRINT has run) must still describe the same two regions, or
// Restore rejects the file on a region-count mismatch.
const outputCapacity = tiered.DefaultStackSize

func saveVM(vm *tiered.VM, cfg sfpmconfig.SnapshotConfig, path string) error {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	stackBytes := intsToBytes(vm.Stack)
	outBuf := make([]int, outputCapacity)
	copy(outBuf, vm.Out)
	outBytes := intsToBytes(outBuf)

	d := snapshot.NewDescriptorForInterpreter(stackBytes, outBytes)
	if cfg.Description != "" {
		d.SetDescription(cfg.Description)
	}
	return d.Save(path)
}

func restoreVM(vm *tiered.VM, path string) error {
	stackBytes := intsToBytes(vm.Stack)
	outBytes := make([]byte, outputCapacity*8)

	d := snapshot.NewDescriptorForInterpreter(stackBytes, outBytes)
	if err := d.Restore(path); err != nil {
		return err
	}
	vm.Stack = bytesToInts(stackBytes)
	vm.Out = bytesToInts(outBytes)
	return nil
}

func intsToBytes(xs []int) []byte {
	b := make([]byte, len(xs)*8)
	for i, x := range xs {
		u := uint64(int64(x))
		for j := 0; j < 8; j++ {
			b[i*8+j] = byte(u >> (8 * j))
		}
	}
	return b
}

func bytesToInts(b []byte) []int {
	xs := make([]int, len(b)/8)
	for i := range xs {
		var u uint64
		for j := 0; j < 8; j++ {
			u |= uint64(b[i*8+j]) << (8 * j)
		}
		xs[i] = int(int64(u))
	}
	return xs
}

// textPatchLoader is the default PatchLoader for the CLI's hot-swap demo:
// a patch file's only content is a handler name, one of the names in the
// table below (the DefaultHandlers handlers plus "add_buggy").
func textPatchLoader(op tiered.Opcode, data []byte) (tiered.HandlerFunc, error) {
	name := trimNewline(string(data))
	handlers := map[string]tiered.HandlerFunc{
		"push":      tiered.HandlePush,
		"add":       tiered.HandleAdd,
		"add_buggy": tiered.HandleAddBuggy,
		"sub":       tiered.HandleSub,
		"mul":       tiered.HandleMul,
		"div":       tiered.HandleDiv,
		"print":     tiered.HandlePrint,
		"halt":      tiered.HandleHalt,
		"square":    tiered.HandleSquare,
	}
	h, ok := handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown handler name %q", name)
	}
	return h, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}
