package lisp

// builtinFunc applies an operator to already-evaluated arguments.
type builtinFunc func(name string, args []Value) (Value, error)

// builtins is the closed set of operators beyond quote/str/format. The set
// is deliberately small; composition of these forms covers the observed
// boot-script needs.
var builtins = map[string]builtinFunc{
	"+": numFold(func(a, b float64) float64 { return a + b }),
	"*": numFold(func(a, b float64) float64 { return a * b }),
	"-": numBinary(func(a, b float64) float64 { return a - b }),
	"/": builtinDiv,

	"<":  numCompare(func(a, b float64) bool { return a < b }),
	"<=": numCompare(func(a, b float64) bool { return a <= b }),
	">":  numCompare(func(a, b float64) bool { return a > b }),
	">=": numCompare(func(a, b float64) bool { return a >= b }),
	"=":  builtinEq,

	"and": builtinAnd,
	"or":  builtinOr,
	"not": builtinNot,
	"if":  builtinIf,

	"begin":  builtinBegin,
	"list":   builtinList,
	"len":    builtinLen,
	"head":   builtinHead,
	"tail":   builtinTail,
	"cons":   builtinCons,
	"repeat": builtinRepeat,
}

// RepeatMarker is the head of the list value produced by the repeat
// builtin. The console pattern compiler recognizes it as "unit repeated
// count times".
const RepeatMarker = "repeat"

func wantNumbers(name string, args []Value) error {
	for _, a := range args {
		if a.Kind() != KindNumber {
			return evalErrorf(name, "want numbers, got %s", a.Kind())
		}
	}
	return nil
}

func numFold(op func(a, b float64) float64) builtinFunc {
	return func(name string, args []Value) (Value, error) {
		if len(args) < 2 {
			return Value{}, evalErrorf(name, "want at least 2 arguments, got %d", len(args))
		}
		if err := wantNumbers(name, args); err != nil {
			return Value{}, err
		}
		acc := args[0].Num()
		for _, a := range args[1:] {
			acc = op(acc, a.Num())
		}
		return Number(acc), nil
	}
}

func numBinary(op func(a, b float64) float64) builtinFunc {
	return func(name string, args []Value) (Value, error) {
		if len(args) != 2 {
			return Value{}, evalErrorf(name, "want 2 arguments, got %d", len(args))
		}
		if err := wantNumbers(name, args); err != nil {
			return Value{}, err
		}
		return Number(op(args[0].Num(), args[1].Num())), nil
	}
}

func builtinDiv(name string, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, evalErrorf(name, "want 2 arguments, got %d", len(args))
	}
	if err := wantNumbers(name, args); err != nil {
		return Value{}, err
	}
	if args[1].Num() == 0 {
		return Value{}, evalErrorf(name, "division by zero")
	}
	return Number(args[0].Num() / args[1].Num()), nil
}

func numCompare(op func(a, b float64) bool) builtinFunc {
	return func(name string, args []Value) (Value, error) {
		if len(args) != 2 {
			return Value{}, evalErrorf(name, "want 2 arguments, got %d", len(args))
		}
		if err := wantNumbers(name, args); err != nil {
			return Value{}, err
		}
		return Bool(op(args[0].Num(), args[1].Num())), nil
	}
}

func builtinEq(name string, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, evalErrorf(name, "want 2 arguments, got %d", len(args))
	}
	return Bool(args[0].Equal(args[1])), nil
}

func builtinAnd(name string, args []Value) (Value, error) {
	for _, a := range args {
		if !a.Truthy() {
			return Bool(false), nil
		}
	}
	return Bool(true), nil
}

func builtinOr(name string, args []Value) (Value, error) {
	for _, a := range args {
		if a.Truthy() {
			return Bool(true), nil
		}
	}
	return Bool(false), nil
}

func builtinNot(name string, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, evalErrorf(name, "want 1 argument, got %d", len(args))
	}
	return Bool(!args[0].Truthy()), nil
}

// builtinIf selects between two already-evaluated branches. Eager branch
// evaluation is sound here because evaluation has no side effects.
func builtinIf(name string, args []Value) (Value, error) {
	if len(args) != 2 && len(args) != 3 {
		return Value{}, evalErrorf(name, "want 2 or 3 arguments, got %d", len(args))
	}
	if args[0].Truthy() {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return Null(), nil
}

func builtinBegin(name string, args []Value) (Value, error) {
	if len(args) == 0 {
		return Null(), nil
	}
	return args[len(args)-1], nil
}

func builtinList(name string, args []Value) (Value, error) {
	return List(args...), nil
}

func builtinLen(name string, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, evalErrorf(name, "want 1 argument, got %d", len(args))
	}
	switch args[0].Kind() {
	case KindString:
		return Number(float64(len(args[0].Str()))), nil
	case KindList:
		return Number(float64(len(args[0].Items()))), nil
	default:
		return Value{}, evalErrorf(name, "want a string or list, got %s", args[0].Kind())
	}
}

func builtinHead(name string, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind() != KindList {
		return Value{}, evalErrorf(name, "want 1 list argument")
	}
	items := args[0].Items()
	if len(items) == 0 {
		return Value{}, evalErrorf(name, "empty list")
	}
	return items[0], nil
}

func builtinTail(name string, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind() != KindList {
		return Value{}, evalErrorf(name, "want 1 list argument")
	}
	items := args[0].Items()
	if len(items) == 0 {
		return List(), nil
	}
	return List(items[1:]...), nil
}

func builtinCons(name string, args []Value) (Value, error) {
	if len(args) != 2 || args[1].Kind() != KindList {
		return Value{}, evalErrorf(name, "want a value and a list")
	}
	items := make([]Value, 0, len(args[1].Items())+1)
	items = append(items, args[0])
	items = append(items, args[1].Items()...)
	return List(items...), nil
}

// builtinRepeat emits the ["repeat" unit count] marker list. It stays a
// plain list value so the result remains within the closed value set; the
// console layer expands it into repeated bytes.
func builtinRepeat(name string, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, evalErrorf(name, "want 2 arguments, got %d", len(args))
	}
	if args[1].Kind() != KindNumber {
		return Value{}, evalErrorf(name, "count must be a number, got %s", args[1].Kind())
	}
	if args[1].Num() < 0 {
		return Value{}, evalErrorf(name, "count must not be negative")
	}
	return List(String(RepeatMarker), args[0], args[1]), nil
}
