package console

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/javanstorm/qemu-compose/internal/lisp"
)

type patternKind int

const (
	patternLiteral patternKind = iota
	patternKey
	patternRepeat
)

// Pattern describes what ReadUntil must observe, or what a repeated
// keystroke write must send: a literal byte sequence, a named key token,
// or a unit repeated a fixed number of times.
type Pattern struct {
	kind  patternKind
	name  string // key token name
	unit  []byte // repeat unit
	count int    // repeat count
	bytes []byte // resolved expansion used for matching and writing
}

// Bytes returns the fully resolved byte sequence of the pattern.
func (p Pattern) Bytes() []byte { return p.bytes }

// Len returns the resolved length in bytes.
func (p Pattern) Len() int { return len(p.bytes) }

func (p Pattern) String() string {
	switch p.kind {
	case patternKey:
		return p.name
	case patternRepeat:
		return fmt.Sprintf("%s x%d", strconv.Quote(string(p.unit)), p.count)
	default:
		return strconv.Quote(string(p.bytes))
	}
}

// CompilePattern maps an evaluated boot-script value to a pattern.
//
//   - An explicit (str-tagged) string is always literal text.
//   - A plain string naming a known key compiles to that key's sequence;
//     this covers quoted key names the environment never resolved.
//   - Any other string or scalar is literal text.
//   - A ["repeat" unit count] marker list compiles to a repetition.
func CompilePattern(v lisp.Value) (Pattern, error) {
	switch v.Kind() {
	case lisp.KindString:
		if !v.Explicit() {
			if b, ok := KeyBytes(v.Str()); ok {
				return Pattern{kind: patternKey, name: v.Str(), bytes: b}, nil
			}
		}
		if v.Str() == "" {
			return Pattern{}, fmt.Errorf("console: empty pattern")
		}
		return Pattern{kind: patternLiteral, bytes: []byte(v.Str())}, nil

	case lisp.KindNumber, lisp.KindBool:
		return Pattern{kind: patternLiteral, bytes: []byte(v.Text())}, nil

	case lisp.KindList:
		items := v.Items()
		if len(items) == 3 && items[0].Kind() == lisp.KindString && items[0].Str() == lisp.RepeatMarker {
			unit, err := CompilePattern(items[1])
			if err != nil {
				return Pattern{}, err
			}
			if items[2].Kind() != lisp.KindNumber {
				return Pattern{}, fmt.Errorf("console: repeat count must be a number")
			}
			count := items[2].Int()
			if count < 0 {
				return Pattern{}, fmt.Errorf("console: repeat count must not be negative")
			}
			return Pattern{
				kind:  patternRepeat,
				unit:  unit.Bytes(),
				count: count,
				bytes: bytes.Repeat(unit.Bytes(), count),
			}, nil
		}
		return Pattern{}, fmt.Errorf("console: list pattern must be a repeat marker, got %s", v.Text())

	default:
		return Pattern{}, fmt.Errorf("console: cannot use %s as a pattern", v.Kind())
	}
}

// Payload resolves an evaluated boot-script value to the bytes a write
// step transmits. Strings send their text, key tokens send their escape
// sequence, repeat markers expand, and a plain list concatenates its
// elements in order.
func Payload(v lisp.Value) ([]byte, error) {
	switch v.Kind() {
	case lisp.KindString:
		if !v.Explicit() {
			if b, ok := KeyBytes(v.Str()); ok {
				return b, nil
			}
		}
		return []byte(v.Str()), nil
	case lisp.KindNumber, lisp.KindBool:
		return []byte(v.Text()), nil
	case lisp.KindNull:
		return nil, nil
	case lisp.KindList:
		items := v.Items()
		if len(items) == 3 && items[0].Kind() == lisp.KindString && items[0].Str() == lisp.RepeatMarker {
			p, err := CompilePattern(v)
			if err != nil {
				return nil, err
			}
			return p.Bytes(), nil
		}
		var out []byte
		for _, item := range items {
			b, err := Payload(item)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("console: cannot use %s as a payload", v.Kind())
	}
}
