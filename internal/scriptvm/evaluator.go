// Package scriptvm implements the sandboxed JS evaluator used to run the
// platform's obfuscated n-parameter descrambling function.
package scriptvm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Evaluator runs a single extracted JS function body against string
// arguments inside a fresh goja sandbox, bounded by a wall-clock proxy for
// an instruction budget.
type Evaluator struct {
	budget time.Duration
}

// New builds an Evaluator whose scripts are interrupted after budgetMS
// milliseconds. goja's public API has no per-opcode instruction counter,
// only Runtime.Interrupt(), so the budget is enforced as wall-clock time
// rather than a true op count.
func New(budgetMS int) *Evaluator {
	if budgetMS <= 0 {
		budgetMS = 750
	}
	return &Evaluator{budget: time.Duration(budgetMS) * time.Millisecond}
}

// TimeoutError reports the script evaluation exceeded its budget.
type TimeoutError struct {
	BudgetMS int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scriptvm: evaluation exceeded %dms budget", e.BudgetMS)
}

// RunNFunction evaluates fnSource (a JS function literal/expression)
// against arg and returns its string result.
func (ev *Evaluator) RunNFunction(fnSource, arg string) (string, error) {
	const fnName = "ytresolveNsigFn"
	vm := goja.New()

	var wg sync.WaitGroup
	timer := time.AfterFunc(ev.budget, func() {
		vm.Interrupt("script evaluation budget exceeded")
	})
	defer func() {
		timer.Stop()
		wg.Wait()
	}()

	if _, err := vm.RunString(fnName + "=" + fnSource); err != nil {
		if isInterrupt(err) {
			return "", &TimeoutError{BudgetMS: int(ev.budget / time.Millisecond)}
		}
		return "", err
	}

	var fn func(string) string
	if err := vm.ExportTo(vm.Get(fnName), &fn); err != nil {
		return "", err
	}

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				// An interrupted vm panics with *goja.InterruptedError; keep
				// the value intact so the caller can classify it as a timeout.
				if err, ok := r.(error); ok {
					errCh <- err
					return
				}
				errCh <- fmt.Errorf("scriptvm: panic during evaluation: %v", r)
			}
		}()
		resultCh <- fn(arg)
	}()

	select {
	case out := <-resultCh:
		return out, nil
	case err := <-errCh:
		if isInterrupt(err) {
			return "", &TimeoutError{BudgetMS: int(ev.budget / time.Millisecond)}
		}
		return "", err
	}
}

func isInterrupt(err error) bool {
	var interrupted *goja.InterruptedError
	return errors.As(err, &interrupted)
}
