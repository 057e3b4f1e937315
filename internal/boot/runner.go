package boot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/javanstorm/qemu-compose/internal/console"
	"github.com/javanstorm/qemu-compose/internal/lisp"
)

// defaultReadTimeout bounds read_until steps that carry no explicit
// budget of their own.
const defaultReadTimeout = time.Hour

// defaultWaitSeconds is used when a wait step names no duration.
const defaultWaitSeconds = 1

// Console is the slice of the console driver the runner needs. It is
// satisfied by *console.Driver.
type Console interface {
	ReadUntil(ctx context.Context, p console.Pattern, budget time.Duration) ([]byte, error)
	Write(p []byte) (int, error)
	Wait(ctx context.Context, dur time.Duration) error
	Tail() []byte
}

// Failure reports which boot step went wrong, wrapping the underlying
// cause and the most recent console output for diagnosis.
type Failure struct {
	Step  int
	Kind  Kind
	Cause error
	Tail  []byte
}

func (f *Failure) Error() string {
	return fmt.Sprintf("boot step %d (%s): %v", f.Step, f.Kind, f.Cause)
}

func (f *Failure) Unwrap() error { return f.Cause }

// Runner drives a boot script against a guest console, one step at a
// time in order.
type Runner struct {
	Console Console
	Env     *lisp.Env
	Timeout time.Duration
	Log     *slog.Logger
}

// Run executes the steps sequentially. It returns true when the script
// ended at an interact step, meaning the caller should hand the console
// to the user. Any step failure stops the script.
func (r *Runner) Run(ctx context.Context, steps []Step) (bool, error) {
	log := r.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	env := r.Env
	if env == nil {
		env = lisp.NewEnv()
	}

	for i, step := range steps {
		if step.Kind == KindInteract {
			if rest := len(steps) - i - 1; rest > 0 {
				log.Warn("boot script ends at interact, skipping remaining steps", "skipped", rest)
			}
			return true, nil
		}

		args, err := step.evalArgs(env)
		if err != nil {
			return false, &Failure{Step: i, Kind: step.Kind, Cause: err, Tail: r.Console.Tail()}
		}
		log.Debug("boot step", "index", i, "op", step.Kind.String())

		if err := r.runStep(ctx, step.Kind, args); err != nil {
			return false, &Failure{Step: i, Kind: step.Kind, Cause: err, Tail: r.Console.Tail()}
		}
	}
	return false, nil
}

func (r *Runner) runStep(ctx context.Context, kind Kind, args []lisp.Value) error {
	switch kind {
	case KindWait:
		seconds := float64(defaultWaitSeconds)
		if len(args) > 0 && args[0].Kind() != lisp.KindNull {
			if args[0].Kind() != lisp.KindNumber {
				return fmt.Errorf("wait wants a number of seconds, got %s", args[0].Kind())
			}
			seconds = args[0].Num()
		}
		return r.Console.Wait(ctx, time.Duration(seconds*float64(time.Second)))

	case KindReadUntil:
		if len(args) == 0 {
			return fmt.Errorf("read_until wants a pattern")
		}
		pat, err := console.CompilePattern(args[0])
		if err != nil {
			return err
		}
		budget := r.Timeout
		if budget <= 0 {
			budget = defaultReadTimeout
		}
		if len(args) > 1 {
			if args[1].Kind() != lisp.KindNumber {
				return fmt.Errorf("read_until timeout wants a number of seconds, got %s", args[1].Kind())
			}
			budget = time.Duration(args[1].Num() * float64(time.Second))
		}
		_, err = r.Console.ReadUntil(ctx, pat, budget)
		return err

	case KindWrite, KindWriteLine:
		var data []byte
		for _, a := range args {
			b, err := console.Payload(a)
			if err != nil {
				return err
			}
			data = append(data, b...)
		}
		if kind == KindWriteLine {
			data = append(data, '\n')
		}
		_, err := r.Console.Write(data)
		return err

	default:
		return fmt.Errorf("unhandled step kind %d", kind)
	}
}
