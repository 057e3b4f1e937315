package lisp

// Env is a flat mapping of variable names to values, built fresh for each
// boot-script run. It is populated once, from static compose declarations
// plus runtime bindings injected by the orchestrator, and treated as
// read-only afterwards.
type Env struct {
	vars map[string]Value
}

// NewEnv returns an empty environment.
func NewEnv() *Env {
	return &Env{vars: make(map[string]Value)}
}

// Bind adds or replaces a binding. Intended for the one-time population
// phase at the start of a run.
func (e *Env) Bind(name string, v Value) {
	e.vars[name] = v
}

// BindString binds name to a string value.
func (e *Env) BindString(name, s string) {
	e.Bind(name, String(s))
}

// BindNumber binds name to a numeric value.
func (e *Env) BindNumber(name string, f float64) {
	e.Bind(name, Number(f))
}

// Lookup resolves a name.
func (e *Env) Lookup(name string) (Value, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Len returns the number of bindings.
func (e *Env) Len() int { return len(e.vars) }
