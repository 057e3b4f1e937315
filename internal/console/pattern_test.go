package console

import (
	"strings"
	"testing"

	"github.com/javanstorm/qemu-compose/internal/lisp"
)

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		name    string
		value   lisp.Value
		want    string
		wantErr bool
	}{
		{"plain text", lisp.String("login: "), "login: ", false},
		{"explicit text", lisp.ExplicitString("anything"), "anything", false},
		{"key token", lisp.String("key_down"), "\x1b[B", false},
		// str-tagged text never resolves as a key, even when it
		// collides with a key name.
		{"explicit key name stays literal", lisp.ExplicitString("key_down"), "key_down", false},
		{"number", lisp.Number(2026), "2026", false},
		{
			"repeat marker",
			lisp.List(lisp.String(lisp.RepeatMarker), lisp.String("ab"), lisp.Number(3)),
			"ababab",
			false,
		},
		{
			"repeat of key token",
			lisp.List(lisp.String(lisp.RepeatMarker), lisp.String("key_down"), lisp.Number(2)),
			"\x1b[B\x1b[B",
			false,
		},
		{"empty string", lisp.String(""), "", true},
		{"null", lisp.Null(), "", true},
		{"arbitrary list", lisp.List(lisp.String("a"), lisp.String("b")), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CompilePattern(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got pattern %s", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("CompilePattern: %v", err)
			}
			if string(p.Bytes()) != tt.want {
				t.Errorf("bytes = %q, want %q", p.Bytes(), tt.want)
			}
		})
	}
}

func TestPayload(t *testing.T) {
	tests := []struct {
		name    string
		value   lisp.Value
		want    string
		wantErr bool
	}{
		{"string", lisp.String("root\r"), "root\r", false},
		{"key token", lisp.String("key_down"), "\x1b[B", false},
		{"explicit key name stays text", lisp.ExplicitString("key_down"), "key_down", false},
		{"number", lisp.Number(1), "1", false},
		{"null is empty", lisp.Null(), "", false},
		{
			"repeat expands",
			lisp.List(lisp.String(lisp.RepeatMarker), lisp.String("\x1b[B"), lisp.Number(60)),
			strings.Repeat("\x1b[B", 60),
			false,
		},
		{
			"list concatenates",
			lisp.List(lisp.String("mkfs"), lisp.String(" -F "), lisp.String("/dev/vda1")),
			"mkfs -F /dev/vda1",
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Payload(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Payload: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("payload = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyTable(t *testing.T) {
	b, ok := KeyBytes("key_enter")
	if !ok || string(b) != "\n" {
		t.Errorf("key_enter = %q, %v", b, ok)
	}
	if _, ok := KeyBytes("key_bogus"); ok {
		t.Error("unknown key resolved")
	}

	// Keys returns a copy; mutating it must not poison the table.
	m := Keys()
	m["key_enter"] = "corrupted"
	if b, _ := KeyBytes("key_enter"); string(b) != "\n" {
		t.Error("key table mutated through copy")
	}
}
