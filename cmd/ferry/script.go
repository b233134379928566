package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unsafe"

	"github.com/tliron/commonlog"

	"github.com/chazu/ferry/convert"
	"github.com/chazu/ferry/ffi"
	"github.com/chazu/ferry/vm"
)

// A script is a sequence of lines of the form
//
//	[$name =] op arg...
//
// Arguments are Go-quoted literals, integers, floats, nil/true/false or
// $globals. Assigned results are bound as globals, which keeps them
// rooted; anything else is printed and left to the collector.

type arg struct {
	text   string
	lit    []byte
	quoted bool
}

type command struct {
	min, max int
	usage    string
	run      func(r *runner, args []arg) (vm.Value, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"new":     {1, 1, "new <str>", cmdNew},
		"capa":    {1, 1, "capa <n>", cmdCapa},
		"cat":     {2, 2, "cat <s> <str|$t>", cmdCat},
		"concat":  {2, 2, "concat <s> <t>", cmdConcat},
		"plus":    {2, 2, "plus <a> <b>", cmdPlus},
		"index":   {2, 3, "index <s> <needle> [offset]", cmdIndex},
		"aref":    {2, 3, "aref <s> <idx> [len]", cmdAref},
		"substr":  {3, 3, "substr <s> <beg> <len>", cmdSubstr},
		"resize":  {2, 2, "resize <s> <n>", cmdResize},
		"strlen":  {1, 1, "strlen <s>", cmdStrlen},
		"cmp":     {2, 2, "cmp <a> <b>", cmdCmp},
		"equal":   {2, 2, "equal <a> <b>", cmdEqual},
		"dup":     {1, 1, "dup <s>", cmdDup},
		"hash":    {1, 1, "hash <s>", cmdHash},
		"cstr":    {1, 1, "cstr <s>", cmdCstr},
		"inspect": {1, 1, "inspect <s>", cmdInspect},
		"to_i":    {1, 3, "to_i <s> [base] [strict]", cmdToI},
		"to_f":    {1, 2, "to_f <s> [strict]", cmdToF},
		"to_s":    {1, 2, "to_s <int> [base]", cmdToS},
		"print":   {1, -1, "print <v>...", cmdPrint},
		"gc":      {0, 0, "gc", cmdGC},
	}
}

type runner struct {
	mrb  *vm.Interpreter
	out  io.Writer
	log  commonlog.Logger
	line int
}

func newRunner(mrb *vm.Interpreter, out io.Writer) *runner {
	return &runner{mrb: mrb, out: out, log: commonlog.GetLogger("ferry.script")}
}

// Run executes every line of src. Syntax errors stop the run; raised
// exceptions are reported and the run continues.
func (r *runner) Run(src io.Reader) error {
	sc := bufio.NewScanner(src)
	for sc.Scan() {
		r.line++
		if err := r.exec(sc.Text()); err != nil {
			return fmt.Errorf("line %d: %w", r.line, err)
		}
	}
	return sc.Err()
}

func (r *runner) exec(line string) error {
	toks, err := tokenize(line)
	if err != nil || len(toks) == 0 {
		return err
	}

	var target string
	if len(toks) >= 2 && toks[1].text == "=" && !toks[0].quoted {
		if !strings.HasPrefix(toks[0].text, "$") {
			return fmt.Errorf("cannot assign to %s", toks[0].text)
		}
		target, toks = toks[0].text, toks[2:]
		if len(toks) == 0 {
			return errors.New("missing operation")
		}
	}

	name := toks[0].text
	cmd, ok := commands[name]
	if !ok || toks[0].quoted {
		return fmt.Errorf("unknown operation %q", name)
	}
	args := toks[1:]
	if len(args) < cmd.min || (cmd.max >= 0 && len(args) > cmd.max) {
		return fmt.Errorf("usage: %s", cmd.usage)
	}

	idx := r.mrb.ArenaSave()
	defer r.mrb.ArenaRestore(idx)

	var opErr error
	result, raised := r.mrb.Protect(func() vm.Value {
		v, err := cmd.run(r, args)
		opErr = err
		return v
	})
	if raised != nil {
		r.log.Debugf("line %d raised %s", r.line, raised)
		fmt.Fprintf(r.out, "! %s: %s\n", raised.Class.Name, raised.Message)
		r.mrb.ClearExc()
		return nil
	}
	if opErr != nil {
		return opErr
	}
	if target != "" {
		r.mrb.SetGlobal(target, result)
		return nil
	}
	if result != vm.Undef {
		fmt.Fprintln(r.out, r.display(result))
	}
	return nil
}

// tokenize splits a line on whitespace, keeping quoted literals whole.
// A # outside a literal starts a comment.
func tokenize(line string) ([]arg, error) {
	var toks []arg
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '#':
			return toks, nil
		case c == '"' || c == '`':
			end := closingQuote(line, i)
			if end < 0 {
				return nil, errors.New("unterminated literal")
			}
			text := line[i : end+1]
			s, err := strconv.Unquote(text)
			if err != nil {
				return nil, fmt.Errorf("bad literal %s: %w", text, err)
			}
			toks = append(toks, arg{text: text, lit: []byte(s), quoted: true})
			i = end + 1
		default:
			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' {
				j++
			}
			toks = append(toks, arg{text: line[i:j]})
			i = j
		}
	}
	return toks, nil
}

func closingQuote(line string, start int) int {
	q := line[start]
	for i := start + 1; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if q == '"' {
				i++
			}
		case q:
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Argument resolution
// ---------------------------------------------------------------------------

func (r *runner) value(a arg) (vm.Value, error) {
	if a.quoted {
		return ffi.StrNew(r.mrb, bytesPtr(a.lit), int64(len(a.lit))), nil
	}
	switch a.text {
	case "nil":
		return vm.Nil, nil
	case "true":
		return vm.True, nil
	case "false":
		return vm.False, nil
	}
	if strings.HasPrefix(a.text, "$") {
		v, ok := r.mrb.Globals[a.text]
		if !ok {
			return vm.Nil, fmt.Errorf("undefined variable %s", a.text)
		}
		return v, nil
	}
	if n, err := strconv.ParseInt(a.text, 0, 64); err == nil {
		return vm.FromInt(n), nil
	}
	if f, err := strconv.ParseFloat(a.text, 64); err == nil {
		return vm.FromFloat64(f), nil
	}
	return vm.Nil, fmt.Errorf("bad argument %q", a.text)
}

func (r *runner) integer(a arg) (vm.Int, error) {
	v, err := r.value(a)
	if err != nil {
		return 0, err
	}
	if !v.IsSmallInt() {
		return 0, fmt.Errorf("%s is not an integer", a.text)
	}
	return v.SmallInt(), nil
}

// bytes returns a literal's bytes, or a copy of a string variable's.
func (r *runner) bytes(a arg) ([]byte, error) {
	if a.quoted {
		return a.lit, nil
	}
	v, err := r.value(a)
	if err != nil {
		return nil, err
	}
	g := r.mrb.LockSentinel()
	defer g.Release()
	s, err := convert.BorrowString(v, g)
	if err != nil {
		return nil, fmt.Errorf("%s is not a string", a.text)
	}
	return append([]byte(nil), s.Bytes()...), nil
}

func flag(args []arg, i int) bool {
	return i < len(args) && (args[i].text == "strict" || args[i].text == "true")
}

// display renders v for output: strings through inspect, immediates
// directly.
func (r *runner) display(v vm.Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		return strconv.FormatBool(v.Bool())
	case v.IsSmallInt():
		return strconv.FormatInt(v.SmallInt(), 10)
	case v.IsFloat():
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	}
	g := r.mrb.LockSentinel()
	defer g.Release()
	if s, err := convert.BorrowString(v, g); err == nil {
		return s.Inspect()
	}
	if c := r.mrb.ClassOf(v); c != nil {
		return "#<" + c.Name + ">"
	}
	return v.String()
}

func bytesPtr(b []byte) *byte {
	if len(b) == 0 {
		return nil
	}
	return unsafe.SliceData(b)
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

func cmdNew(r *runner, args []arg) (vm.Value, error) {
	b, err := r.bytes(args[0])
	if err != nil {
		return vm.Nil, err
	}
	return ffi.StrNew(r.mrb, bytesPtr(b), int64(len(b))), nil
}

func cmdCapa(r *runner, args []arg) (vm.Value, error) {
	n, err := r.integer(args[0])
	if err != nil {
		return vm.Nil, err
	}
	return ffi.StrNewCapa(r.mrb, n), nil
}

func cmdCat(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	if args[1].quoted {
		return ffi.StrCat(r.mrb, s, bytesPtr(args[1].lit), int64(len(args[1].lit))), nil
	}
	other, err := r.value(args[1])
	if err != nil {
		return vm.Nil, err
	}
	return ffi.StrCatStr(r.mrb, s, other), nil
}

func cmdConcat(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	other, err := r.value(args[1])
	if err != nil {
		return vm.Nil, err
	}
	ffi.StrConcat(r.mrb, s, other)
	return s, nil
}

func cmdPlus(r *runner, args []arg) (vm.Value, error) {
	a, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	b, err := r.value(args[1])
	if err != nil {
		return vm.Nil, err
	}
	return ffi.StrPlus(r.mrb, a, b), nil
}

func cmdIndex(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	needle, err := r.bytes(args[1])
	if err != nil {
		return vm.Nil, err
	}
	var offset vm.Int
	if len(args) > 2 {
		if offset, err = r.integer(args[2]); err != nil {
			return vm.Nil, err
		}
	}
	return vm.FromInt(ffi.StrIndex(r.mrb, s, bytesPtr(needle), int64(len(needle)), offset)), nil
}

func cmdAref(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	indx, err := r.value(args[1])
	if err != nil {
		return vm.Nil, err
	}
	alen := vm.Undef
	if len(args) > 2 {
		if alen, err = r.value(args[2]); err != nil {
			return vm.Nil, err
		}
	}
	return ffi.StrAref(r.mrb, s, indx, alen), nil
}

func cmdSubstr(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	beg, err := r.integer(args[1])
	if err != nil {
		return vm.Nil, err
	}
	n, err := r.integer(args[2])
	if err != nil {
		return vm.Nil, err
	}
	return ffi.StrSubstr(r.mrb, s, beg, n), nil
}

func cmdResize(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	n, err := r.integer(args[1])
	if err != nil {
		return vm.Nil, err
	}
	return ffi.StrResize(r.mrb, s, n), nil
}

func cmdStrlen(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	return vm.FromInt(ffi.StrStrlen(r.mrb, s)), nil
}

func cmdCmp(r *runner, args []arg) (vm.Value, error) {
	a, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	b, err := r.value(args[1])
	if err != nil {
		return vm.Nil, err
	}
	return vm.FromSmallInt(int64(ffi.StrCmp(r.mrb, a, b))), nil
}

func cmdEqual(r *runner, args []arg) (vm.Value, error) {
	a, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	b, err := r.value(args[1])
	if err != nil {
		return vm.Nil, err
	}
	return vm.FromBool(ffi.StrEqual(r.mrb, a, b)), nil
}

func cmdDup(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	return ffi.StrDup(r.mrb, s), nil
}

func cmdHash(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	return vm.FromSmallInt(int64(ffi.StrHash(r.mrb, s))), nil
}

// cmdCstr round-trips s through its NUL-terminated form.
func cmdCstr(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	p := ffi.StringCstr(r.mrb, s)
	if p == nil {
		return vm.Nil, nil
	}
	return ffi.StrNewCstr(r.mrb, p), nil
}

func cmdInspect(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	return ffi.StrInspect(r.mrb, s), nil
}

func cmdToI(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	base := vm.Int(10)
	if len(args) > 1 {
		if base, err = r.integer(args[1]); err != nil {
			return vm.Nil, err
		}
	}
	return ffi.StrToInteger(r.mrb, s, base, flag(args, 2)), nil
}

func cmdToF(r *runner, args []arg) (vm.Value, error) {
	s, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	return vm.FromFloat64(ffi.StrToDbl(r.mrb, s, flag(args, 1))), nil
}

func cmdToS(r *runner, args []arg) (vm.Value, error) {
	x, err := r.value(args[0])
	if err != nil {
		return vm.Nil, err
	}
	base := vm.Int(10)
	if len(args) > 1 {
		if base, err = r.integer(args[1]); err != nil {
			return vm.Nil, err
		}
	}
	return ffi.IntegerToStr(r.mrb, x, base), nil
}

func cmdPrint(r *runner, args []arg) (vm.Value, error) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		v, err := r.value(a)
		if err != nil {
			return vm.Nil, err
		}
		parts = append(parts, r.display(v))
	}
	fmt.Fprintln(r.out, strings.Join(parts, " "))
	return vm.Undef, nil
}

func cmdGC(r *runner, args []arg) (vm.Value, error) {
	st := r.mrb.GC()
	fmt.Fprintf(r.out, "gc: marked %d, freed %d, live %d\n", st.Marked, st.Freed, st.Live)
	return vm.Undef, nil
}
