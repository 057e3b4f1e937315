package console

// keyBytes maps named console keys to the byte sequences a VT100-style
// guest expects. The same names are bound into the boot-script environment
// so scripts can write key_down or match against key_enter directly.
var keyBytes = map[string]string{
	"key_up":         "\x1b[A",
	"key_down":       "\x1b[B",
	"key_right":      "\x1b[C",
	"key_left":       "\x1b[D",
	"key_home":       "\x1b[H",
	"key_end":        "\x1b[F",
	"key_ctrl_space": "\x00",
	"key_escape":     "\x1b",
	"key_tab":        "\t",
	"key_enter":      "\n",
	"key_backspace":  "\x7f",
}

// KeyBytes returns the byte sequence for a named key.
func KeyBytes(name string) ([]byte, bool) {
	s, ok := keyBytes[name]
	if !ok {
		return nil, false
	}
	return []byte(s), true
}

// Keys returns a copy of the key name table.
func Keys() map[string]string {
	out := make(map[string]string, len(keyBytes))
	for k, v := range keyBytes {
		out[k] = v
	}
	return out
}
