package lisp

import "fmt"

// EvalError describes a failure to evaluate an expression: an unknown
// operator, an arity mismatch, or a type mismatch.
type EvalError struct {
	Form string // the operator or context that failed
	Msg  string
}

func (e *EvalError) Error() string {
	if e.Form == "" {
		return "eval: " + e.Msg
	}
	return fmt.Sprintf("eval %s: %s", e.Form, e.Msg)
}

func evalErrorf(form, format string, args ...any) error {
	return &EvalError{Form: form, Msg: fmt.Sprintf(format, args...)}
}

// Eval evaluates an expression tree against an environment. It is pure:
// identical inputs yield identical outputs and nothing is mutated.
//
// Atoms: numbers, booleans and null self-evaluate. A plain string resolves
// to its binding when one exists and otherwise reads as literal text. The
// fall-back-to-literal rule keeps plain prompts and commands terse, at the
// documented cost of accidental shadowing when literal text happens to
// match a bound name.
//
// Lists dispatch on their first element: quote, str and format are handled
// here, everything else is a builtin applied to the evaluated remaining
// elements. Unknown heads fail with EvalError.
func Eval(expr Value, env *Env) (Value, error) {
	switch expr.Kind() {
	case KindNull, KindBool, KindNumber:
		return expr, nil

	case KindString:
		if expr.Explicit() {
			return expr, nil
		}
		if v, ok := env.Lookup(expr.Str()); ok {
			return v, nil
		}
		return expr, nil

	case KindList:
		items := expr.Items()
		if len(items) == 0 {
			return expr, nil
		}
		head := items[0]
		if head.Kind() != KindString {
			return Value{}, evalErrorf("", "list head must be an operator name, got %s", head.Kind())
		}
		return evalForm(head.Str(), items[1:], env)
	}
	return Value{}, evalErrorf("", "unhandled expression kind %s", expr.Kind())
}

func evalForm(name string, args []Value, env *Env) (Value, error) {
	switch name {
	case "quote":
		// quote shields its argument from both environment lookup and
		// call dispatch; the tree comes back entirely unevaluated.
		if len(args) != 1 {
			return Value{}, evalErrorf("quote", "want 1 argument, got %d", len(args))
		}
		return args[0], nil

	case "str":
		if len(args) != 1 {
			return Value{}, evalErrorf("str", "want 1 argument, got %d", len(args))
		}
		v, err := Eval(args[0], env)
		if err != nil {
			return Value{}, err
		}
		return ExplicitString(v.Text()), nil

	case "format":
		return evalFormat(args, env)
	}

	fn, ok := builtins[name]
	if !ok {
		return Value{}, evalErrorf(name, "unknown operator")
	}
	evaled := make([]Value, 0, len(args))
	for _, a := range args {
		v, err := Eval(a, env)
		if err != nil {
			return Value{}, err
		}
		evaled = append(evaled, v)
	}
	return fn(name, evaled)
}

// evalFormat substitutes the evaluated arguments into printf-style
// placeholders, in order. The placeholder count must match the argument
// count exactly.
func evalFormat(args []Value, env *Env) (Value, error) {
	if len(args) == 0 {
		return Value{}, evalErrorf("format", "want a format string")
	}
	first, err := Eval(args[0], env)
	if err != nil {
		return Value{}, err
	}
	if first.Kind() != KindString {
		return Value{}, evalErrorf("format", "format string must be a string, got %s", first.Kind())
	}

	rest := make([]Value, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := Eval(a, env)
		if err != nil {
			return Value{}, err
		}
		rest = append(rest, v)
	}

	verbs, err := formatVerbs(first.Str())
	if err != nil {
		return Value{}, err
	}
	if len(verbs) != len(rest) {
		return Value{}, evalErrorf("format", "%d placeholder(s) but %d argument(s)", len(verbs), len(rest))
	}

	operands := make([]any, len(rest))
	for i, v := range rest {
		operands[i] = formatOperand(verbs[i], v)
	}
	return String(fmt.Sprintf(first.Str(), operands...)), nil
}

// formatVerbs returns the conversion letters of each placeholder in s,
// skipping the %% escape.
func formatVerbs(s string) ([]byte, error) {
	var verbs []byte
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			continue
		}
		i++
		if i >= len(s) {
			return nil, evalErrorf("format", "trailing %% in format string")
		}
		if s[i] == '%' {
			continue
		}
		// skip flags, width and precision
		for i < len(s) && (s[i] == '+' || s[i] == '-' || s[i] == ' ' ||
			s[i] == '#' || s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
			i++
		}
		if i >= len(s) {
			return nil, evalErrorf("format", "incomplete placeholder")
		}
		verbs = append(verbs, s[i])
	}
	return verbs, nil
}

// formatOperand converts a value to the native type the verb expects.
func formatOperand(verb byte, v Value) any {
	switch verb {
	case 'd', 'x', 'X', 'o', 'b', 'c':
		return int64(v.Num())
	case 'f', 'F', 'g', 'G', 'e', 'E':
		return v.Num()
	case 't':
		return v.Truthy()
	default: // s, v, q and friends format the rendered text
		return v.Text()
	}
}
