package boot

import (
	"fmt"

	"github.com/javanstorm/qemu-compose/internal/lisp"
)

// Kind identifies what a boot step does to the guest console.
type Kind int

const (
	KindWait Kind = iota
	KindReadUntil
	KindWrite
	KindWriteLine
	KindInteract
)

func (k Kind) String() string {
	switch k {
	case KindWait:
		return "wait"
	case KindReadUntil:
		return "read_until"
	case KindWrite:
		return "write"
	case KindWriteLine:
		return "writeline"
	case KindInteract:
		return "interact"
	default:
		return "unknown"
	}
}

var stepKinds = map[string]Kind{
	"wait":       KindWait,
	"read_until": KindReadUntil,
	"write":      KindWrite,
	"writeline":  KindWriteLine,
	"interact":   KindInteract,
}

// Step is one parsed boot command. Args hold the unevaluated argument
// forms; they are evaluated against the runner's environment when the
// step executes.
type Step struct {
	Kind Kind
	Args []lisp.Value

	// spread marks the single-key map form, where one argument form
	// evaluates to the whole argument list.
	spread bool
}

// ParseSteps converts raw boot commands, as decoded from a compose
// file, into executable steps. Two shapes are accepted: a single-key
// map such as {"read_until": "login: "}, and a list whose head names
// the operation, such as ["write", "root\r"].
func ParseSteps(raw []any) ([]Step, error) {
	steps := make([]Step, 0, len(raw))
	for i, entry := range raw {
		step, err := parseStep(entry)
		if err != nil {
			return nil, fmt.Errorf("boot command %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseStep(entry any) (Step, error) {
	switch e := entry.(type) {
	case map[string]any:
		if len(e) != 1 {
			return Step{}, fmt.Errorf("step map must have exactly one key, got %d", len(e))
		}
		for name, rawArg := range e {
			kind, ok := stepKinds[name]
			if !ok {
				return Step{}, fmt.Errorf("unknown step %q", name)
			}
			if kind == KindInteract {
				return Step{Kind: KindInteract}, nil
			}
			arg, err := lisp.FromAny(rawArg)
			if err != nil {
				return Step{}, fmt.Errorf("step %q: %w", name, err)
			}
			return Step{Kind: kind, Args: []lisp.Value{arg}, spread: true}, nil
		}
		panic("unreachable")
	case []any:
		if len(e) == 0 {
			return Step{}, fmt.Errorf("step list must not be empty")
		}
		name, ok := e[0].(string)
		if !ok {
			return Step{}, fmt.Errorf("step list must start with an operation name")
		}
		kind, ok := stepKinds[name]
		if !ok {
			return Step{}, fmt.Errorf("unknown step %q", name)
		}
		args := make([]lisp.Value, 0, len(e)-1)
		for _, rawArg := range e[1:] {
			arg, err := lisp.FromAny(rawArg)
			if err != nil {
				return Step{}, fmt.Errorf("step %q: %w", name, err)
			}
			args = append(args, arg)
		}
		return Step{Kind: kind, Args: args}, nil
	default:
		return Step{}, fmt.Errorf("step must be a map or a list, got %T", entry)
	}
}

// evalArgs evaluates the step's argument forms. For the map form a
// single evaluated list spreads into separate arguments, so that
// {"read_until": ["list", "login: ", 30]} carries both a pattern and
// a timeout. A repeat form stays intact since it is itself a pattern.
func (s Step) evalArgs(env *lisp.Env) ([]lisp.Value, error) {
	out := make([]lisp.Value, 0, len(s.Args))
	for _, form := range s.Args {
		v, err := lisp.Eval(form, env)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if s.spread && len(out) == 1 && out[0].Kind() == lisp.KindList && !isRepeatForm(out[0]) {
		out = out[0].Items()
	}
	return out, nil
}

func isRepeatForm(v lisp.Value) bool {
	items := v.Items()
	return len(items) == 3 &&
		items[0].Kind() == lisp.KindString &&
		items[0].Str() == lisp.RepeatMarker
}
