// Package main is a small CLI harness around internal/vm: it assembles and
// runs the bundled example procedures (the S1-S6 scenarios of spec.md §8)
// since the reader/compiler that would normally feed the VM are out of
// scope (§1 Non-goals).
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jcorbin/corelisp/internal/logio"
	"github.com/jcorbin/corelisp/internal/stdprims"
	"github.com/jcorbin/corelisp/internal/vm"
)

func main() {
	var (
		memLimit uint
		timeout  time.Duration
		trace    bool
		dump     bool
	)
	flag.UintVar(&memLimit, "mem-limit", 0, "enable a heap cell-count limit")
	flag.DurationVar(&timeout, "timeout", 0, "specify a time limit")
	flag.BoolVar(&trace, "trace", false, "enable opcode trace logging")
	flag.BoolVar(&dump, "dump", false, "print a heap summary after each scenario")
	flag.Parse()

	log := logio.Logger{}
	log.SetOutput(os.Stderr)
	defer func() { os.Exit(log.ExitCode()) }()

	var opts []vm.Option
	if trace {
		opts = append(opts, vm.WithLogf(log.Leveledf("TRACE")))
	}

	rt := vm.NewRuntime(opts...)
	stdprims.Install(rt.Heap, rt.Globals)
	if memLimit > 0 {
		rt.Heap.SetMaxCells(int(memLimit))
	}

	ctx := context.Background()
	if timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for _, sc := range scenarios() {
		runScenario(&log, rt, ctx, sc, dump)
	}
}

func runScenario(log *logio.Logger, rt *vm.Runtime, ctx context.Context, sc scenario, dump bool) {
	result, err := sc.run(ctx, rt)
	if err != nil {
		log.Errorf("%s: %v", sc.name, err)
		return
	}
	log.Printf("RESULT", "%s -> %s", sc.name, describeValue(rt, result))
	if dump {
		log.Printf("DUMP", "%s: %d cells live", sc.name, rt.Heap.NumCells()-rt.Heap.FreeCount())
	}
}
