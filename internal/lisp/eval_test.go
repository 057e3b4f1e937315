package lisp

import "testing"

func mustEval(t *testing.T, expr Value, env *Env) Value {
	t.Helper()
	v, err := Eval(expr, env)
	if err != nil {
		t.Fatalf("Eval(%s) failed: %v", expr.Text(), err)
	}
	return v
}

func TestAtomsSelfEvaluate(t *testing.T) {
	env := NewEnv()
	tests := []struct {
		name string
		expr Value
	}{
		{"number", Number(42)},
		{"bool", Bool(true)},
		{"null", Null()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustEval(t, tt.expr, env)
			if !got.Equal(tt.expr) {
				t.Errorf("got %s, want %s", got.Text(), tt.expr.Text())
			}
		})
	}
}

func TestStringResolution(t *testing.T) {
	env := NewEnv()
	env.BindString("HTTP_HOST", "10.0.2.2")

	got := mustEval(t, String("HTTP_HOST"), env)
	if got.Str() != "10.0.2.2" {
		t.Errorf("bound name: got %q, want %q", got.Str(), "10.0.2.2")
	}

	// An unbound name reads as its own literal text.
	got = mustEval(t, String("login: "), env)
	if got.Str() != "login: " {
		t.Errorf("unbound name: got %q, want %q", got.Str(), "login: ")
	}
}

// The fall-back-to-literal rule means a bound name shadows identical
// literal text. quote is the documented way out.
func TestQuoteShieldsBoundNames(t *testing.T) {
	env := NewEnv()
	env.BindString("root", "/dev/vda2")

	quoted := mustEval(t, List(String("quote"), String("root")), env)
	if quoted.Str() != "root" {
		t.Errorf("quote: got %q, want %q", quoted.Str(), "root")
	}

	// quote also shields a nested tree from call dispatch.
	tree := List(String("no-such-op"), Number(1))
	got := mustEval(t, List(String("quote"), tree), env)
	if !got.Equal(tree) {
		t.Errorf("quote returned altered tree: %s", got.Text())
	}
}

func TestEvalDeterministic(t *testing.T) {
	env := NewEnv()
	env.BindNumber("TERM_COLS", 80)
	expr := List(String("format"), String("stty cols %d rows %d\r"),
		String("TERM_COLS"), List(String("+"), Number(20), Number(4)))

	first := mustEval(t, expr, env)
	for i := 0; i < 5; i++ {
		again := mustEval(t, expr, env)
		if !again.Equal(first) {
			t.Fatalf("run %d: got %q, want %q", i, again.Text(), first.Text())
		}
	}
	if first.Str() != "stty cols 80 rows 24\r" {
		t.Errorf("got %q", first.Str())
	}
}

func TestFormatArity(t *testing.T) {
	env := NewEnv()
	tests := []struct {
		name    string
		expr    Value
		want    string
		wantErr bool
	}{
		{
			name: "exact",
			expr: List(String("format"), String("curl http://%s:%d/"), String("host"), Number(8888)),
			want: "curl http://host:8888/",
		},
		{
			name: "escaped percent",
			expr: List(String("format"), String("100%% of %s"), String("it")),
			want: "100% of it",
		},
		{
			name:    "too few arguments",
			expr:    List(String("format"), String("%s and %s"), String("one")),
			wantErr: true,
		},
		{
			name:    "too many arguments",
			expr:    List(String("format"), String("%s"), String("one"), String("two")),
			wantErr: true,
		},
		{
			name:    "no format string",
			expr:    List(String("format")),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, env)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want EvalError, got %q", got.Text())
				}
				if _, ok := err.(*EvalError); !ok {
					t.Fatalf("want *EvalError, got %T: %v", err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Str() != tt.want {
				t.Errorf("got %q, want %q", got.Str(), tt.want)
			}
		})
	}
}

func TestStrTagsExplicit(t *testing.T) {
	env := NewEnv()
	env.BindString("key_up", "\x1b[A")

	// str of a quoted name renders the name itself as literal text.
	got := mustEval(t, List(String("str"), List(String("quote"), String("key_up"))), env)
	if !got.Explicit() {
		t.Error("str result not tagged explicit")
	}
	if got.Str() != "key_up" {
		t.Errorf("got %q, want %q", got.Str(), "key_up")
	}

	// str of a number renders digits.
	got = mustEval(t, List(String("str"), Number(60)), env)
	if got.Str() != "60" || !got.Explicit() {
		t.Errorf("got %q (explicit=%v), want explicit %q", got.Str(), got.Explicit(), "60")
	}
}

func TestBuiltins(t *testing.T) {
	env := NewEnv()
	tests := []struct {
		name string
		expr Value
		want Value
	}{
		{"add", List(String("+"), Number(1), Number(2), Number(3)), Number(6)},
		{"sub", List(String("-"), Number(10), Number(4)), Number(6)},
		{"mul", List(String("*"), Number(3), Number(4)), Number(12)},
		{"div", List(String("/"), Number(9), Number(3)), Number(3)},
		{"lt", List(String("<"), Number(1), Number(2)), Bool(true)},
		{"ge", List(String(">="), Number(2), Number(2)), Bool(true)},
		{"eq", List(String("="), String("a"), String("a")), Bool(true)},
		{"and", List(String("and"), Bool(true), Number(1)), Bool(true)},
		{"or", List(String("or"), Bool(false), Null()), Bool(false)},
		{"not", List(String("not"), Null()), Bool(true)},
		{"if true", List(String("if"), Bool(true), Number(1), Number(2)), Number(1)},
		{"if false", List(String("if"), Bool(false), Number(1), Number(2)), Number(2)},
		{"if no alt", List(String("if"), Bool(false), Number(1)), Null()},
		{"begin", List(String("begin"), Number(1), Number(2)), Number(2)},
		{"list", List(String("list"), Number(1), Number(2)), List(Number(1), Number(2))},
		{"len string", List(String("len"), List(String("quote"), String("abc"))), Number(3)},
		{"head", List(String("head"), List(String("list"), Number(7), Number(8))), Number(7)},
		{"tail", List(String("tail"), List(String("list"), Number(7), Number(8))), List(Number(8))},
		{"cons", List(String("cons"), Number(1), List(String("list"), Number(2))), List(Number(1), Number(2))},
		{"nested", List(String("+"), List(String("*"), Number(2), Number(3)), Number(1)), Number(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustEval(t, tt.expr, env)
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got.Text(), tt.want.Text())
			}
		})
	}
}

func TestBuiltinErrors(t *testing.T) {
	env := NewEnv()
	tests := []struct {
		name string
		expr Value
	}{
		{"unknown operator", List(String("frobnicate"), Number(1))},
		{"add non-number", List(String("+"), Number(1), List(String("quote"), String("x")))},
		{"division by zero", List(String("/"), Number(1), Number(0))},
		{"head of empty", List(String("head"), List(String("list")))},
		{"repeat negative", List(String("repeat"), List(String("quote"), String("a")), Number(-1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Eval(tt.expr, env)
			if err == nil {
				t.Fatal("want error, got none")
			}
			if _, ok := err.(*EvalError); !ok {
				t.Fatalf("want *EvalError, got %T: %v", err, err)
			}
		})
	}
}

func TestRepeatMarker(t *testing.T) {
	env := NewEnv()
	env.BindString("key_down", "\x1b[B")

	got := mustEval(t, List(String("repeat"), String("key_down"), Number(60)), env)
	if got.Kind() != KindList {
		t.Fatalf("want list marker, got %s", got.Kind())
	}
	items := got.Items()
	if len(items) != 3 || items[0].Str() != RepeatMarker {
		t.Fatalf("malformed marker: %s", got.Text())
	}
	if items[1].Str() != "\x1b[B" {
		t.Errorf("unit not resolved through env: %q", items[1].Str())
	}
	if items[2].Int() != 60 {
		t.Errorf("count = %d, want 60", items[2].Int())
	}
}

func TestFromAny(t *testing.T) {
	raw := []any{"format", "mount %s /mnt\r", []any{"quote", "root"}}
	v, err := FromAny(raw)
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	want := List(String("format"), String("mount %s /mnt\r"),
		List(String("quote"), String("root")))
	if !v.Equal(want) {
		t.Errorf("got %s, want %s", v.Text(), want.Text())
	}

	if _, err := FromAny(map[string]any{"read_until": "x"}); err == nil {
		t.Error("maps are not expression nodes; want error")
	}

	// YAML integers decode as int; they must become numbers.
	n, err := FromAny(7)
	if err != nil || n.Kind() != KindNumber || n.Num() != 7 {
		t.Errorf("FromAny(7) = %s, %v", n.Text(), err)
	}
}
