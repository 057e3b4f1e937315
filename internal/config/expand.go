package config

import (
	"fmt"
	"strings"
)

// Expand substitutes {NAME} placeholders in a compose value with
// bindings from env. Doubled braces escape a literal brace. Referencing
// a name with no binding is an error rather than an empty expansion, so
// typos surface before anything launches.
func Expand(template string, env map[string]string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		switch c := template[i]; c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder in %q", template)
			}
			name := template[i+1 : i+1+end]
			if name == "" {
				return "", fmt.Errorf("empty placeholder in %q", template)
			}
			val, ok := env[name]
			if !ok {
				return "", fmt.Errorf("unknown name %q in %q", name, template)
			}
			b.WriteString(val)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("stray '}' in %q", template)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// ExpandAll expands every value of a compose env block in one pass.
// Values see only the runtime bindings, not each other.
func ExpandAll(values map[string]string, env map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for k, v := range values {
		expanded, err := Expand(v, env)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
		out[k] = expanded
	}
	return out, nil
}
