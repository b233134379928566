package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/ferry/ffi"
	"github.com/chazu/ferry/vm"
)

func runSource(t *testing.T, opts vm.Options, src string) (string, error) {
	t.Helper()
	mrb, err := ffi.OpenWithOptions(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { mrb.Close() })
	var out bytes.Buffer
	err = newRunner(mrb, &out).Run(strings.NewReader(src))
	return out.String(), err
}

func TestScriptOperations(t *testing.T) {
	src := `
# byte-level semantics
$a = new "héllo"
strlen $a
index $a "l"
index $a "l" 4
substr $a 1 2
substr $a 10 5
aref $a 0
aref $a 1 1
$b = dup $a
equal $a $b
cmp "abc" "abd"
cat $b "!"
print $a $b
plus "foo" "bar"
resize "abc" 5
to_i "ff" 16
to_i "12abc"
to_s 255 16
to_f "1.5"
cstr "xyz"
`
	out, err := runSource(t, vm.Options{}, src)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"6",
		"3",
		"4",
		`"é"`,
		"nil",
		`"h"`,
		`"\xC3"`,
		"true",
		"-1",
		`"héllo!"`,
		`"héllo" "héllo!"`,
		`"foobar"`,
		`"abc\x00\x00"`,
		"255",
		"12",
		`"ff"`,
		"1.5",
		`"xyz"`,
	}
	got := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(got), len(want), out)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %s, want %s", i+1, got[i], want[i])
		}
	}
}

// TestScriptReportsRaisesAndContinues verifies that a raised exception is printed
// and the next line still runs.
func TestScriptReportsRaisesAndContinues(t *testing.T) {
	src := `
to_i "12abc" 10 strict
to_i "1" 1
strlen 42
print "after"
`
	out, err := runSource(t, vm.Options{}, src)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("output:\n%s", out)
	}
	for i, prefix := range []string{"! ArgumentError:", "! ArgumentError: illegal radix 1", "! TypeError:"} {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d = %q, want prefix %q", i+1, lines[i], prefix)
		}
	}
	if lines[3] != `"after"` {
		t.Errorf("last line = %q", lines[3])
	}
}

func TestScriptNoMemory(t *testing.T) {
	out, err := runSource(t, vm.Options{MaxStringCapacity: 8}, `capa 64`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "! NoMemoryError: out of memory") {
		t.Errorf("output = %q", out)
	}
}

// TestScriptGlobalsSurviveGC verifies that assigned results are rooted and
// unassigned ones are not.
func TestScriptGlobalsSurviveGC(t *testing.T) {
	src := `
$keep = new "kept"
new "dropped"
gc
print $keep
`
	out, err := runSource(t, vm.Options{}, src)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out, "\"kept\"\n") {
		t.Errorf("output:\n%s", out)
	}
	if !strings.Contains(out, "gc: marked") {
		t.Errorf("no gc report:\n%s", out)
	}
}

func TestScriptSyntaxErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`frobnicate "x"`, `line 1: unknown operation "frobnicate"`},
		{`new "unterminated`, "line 1: unterminated literal"},
		{"\nsubstr \"x\" 1", "line 2: usage: substr <s> <beg> <len>"},
		{`x = new "a"`, "line 1: cannot assign to x"},
		{`print $missing`, "line 1: undefined variable $missing"},
		{`$a =`, "line 1: missing operation"},
	}
	for _, tt := range tests {
		_, err := runSource(t, vm.Options{}, tt.src)
		if err == nil || err.Error() != tt.want {
			t.Errorf("%q: err = %v, want %q", tt.src, err, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	toks, err := tokenize(`$a = cat $a "a \"b\" # c" ` + "`raw\\n`" + ` # trailing`)
	if err != nil {
		t.Fatal(err)
	}
	var texts []string
	for _, tok := range toks {
		if tok.quoted {
			texts = append(texts, "<"+string(tok.lit)+">")
		} else {
			texts = append(texts, tok.text)
		}
	}
	want := `$a = cat $a <a "b" # c> <raw\n>`
	if got := strings.Join(texts, " "); got != want {
		t.Errorf("tokens = %s, want %s", got, want)
	}
}

func TestExecFileNotFound(t *testing.T) {
	mrb, err := ffi.OpenWithOptions(vm.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer mrb.Close()
	if err := execFile(mrb, filepath.Join(t.TempDir(), "missing.fy"), &bytes.Buffer{}); !os.IsNotExist(err) {
		t.Errorf("err = %v, want not-exist", err)
	}
}
