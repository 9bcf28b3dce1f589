package kfmt

import (
	"io"
	"unsafe"
)

// maxBufSize is the size of the scratch buffer used for rendering numbers.
// Widths larger than maxBufSize-1 are clamped.
const maxBufSize = 32

var (
	markMissingArg = []byte("(MISSING)")
	markWrongType  = []byte("%!(WRONGTYPE)")
	markNoVerb     = []byte("%!(NOVERB)")
	markExtraArg   = []byte("%!(EXTRA)")
	trueValue      = []byte("true")
	falseValue     = []byte("false")

	digits = "0123456789abcdef"

	// numBuf holds the rendered digits of a number right-aligned.
	numBuf [maxBufSize + 1]byte

	// oneByte is a shared buffer for passing single characters to emit.
	oneByte = []byte{0}

	// earlyBuf captures output written before an output sink is attached.
	earlyBuf earlyBuffer

	// outputSink receives the output of Printf. While it is nil, output is
	// captured by earlyBuf.
	outputSink io.Writer
)

// SetOutputSink makes w the target for Printf and flushes any output that
// was captured before a sink was available.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyBuf)
	}
}

// Output returns an io.Writer that forwards to the current output sink or,
// if no sink has been registered yet, to the early output buffer.
func Output() io.Writer {
	return &sinkProxy
}

type outputProxy struct{}

var sinkProxy outputProxy

func (outputProxy) Write(p []byte) (int, error) {
	if outputSink == nil {
		return earlyBuf.Write(p)
	}
	return outputSink.Write(p)
}

// Printf is an allocation-free subset of fmt.Printf that can be called before
// the Go allocator is available and from interrupt handlers.
//
// Supported verbs:
//
//	%s  string or []byte
//	%d  signed or unsigned integer, base 10
//	%o  signed or unsigned integer, base 8
//	%x  signed or unsigned integer, base 16 (lower-case)
//	%t  bool
//	%%  a literal percent sign
//
// A decimal width may precede the verb. Strings and base-10 numbers are
// padded on the left with spaces; base-8 and base-16 numbers are padded with
// zeroes. Arguments are never checked for io.Stringer or error since that
// requires itables which may not be initialized when Printf runs.
//
// Output goes to the sink registered via SetOutputSink or, if none has been
// registered yet, to a small ring buffer that is flushed when a sink appears.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes its output to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		litStart int
		pos      int
	)

	for pos < len(format) {
		if format[pos] != '%' {
			pos++
			continue
		}

		emitLiteral(w, format, litStart, pos)

		verb, width, next := parseVerb(format, pos+1)
		pos, litStart = next, next

		switch verb {
		case 0:
			emit(w, markNoVerb)
			continue
		case '%':
			emitByte(w, '%')
			continue
		}

		if argIndex >= len(args) {
			emit(w, markMissingArg)
			continue
		}

		arg := args[argIndex]
		argIndex++

		switch verb {
		case 'd':
			fmtInt(w, arg, 10, width)
		case 'o':
			fmtInt(w, arg, 8, width)
		case 'x':
			fmtInt(w, arg, 16, width)
		case 's':
			fmtString(w, arg, width)
		case 't':
			fmtBool(w, arg)
		}
	}

	emitLiteral(w, format, litStart, pos)

	for ; argIndex < len(args); argIndex++ {
		emit(w, markExtraArg)
	}
}

// parseVerb scans format starting at pos (just past a '%') and returns the
// verb character, the requested width and the index following the verb. A
// zero verb indicates that the format string ended or contained an unknown
// verb; in that case next points past the offending character.
func parseVerb(format string, pos int) (verb byte, width, next int) {
	for ; pos < len(format); pos++ {
		ch := format[pos]
		switch {
		case ch >= '0' && ch <= '9':
			width = width*10 + int(ch-'0')
		case ch == '%', ch == 'd', ch == 'o', ch == 'x', ch == 's', ch == 't':
			return ch, width, pos + 1
		default:
			return 0, width, pos + 1
		}
	}

	return 0, width, pos
}

// emitLiteral writes format[start:end]. Slicing the string and converting it
// to a []byte would allocate so the bytes are copied out one at a time.
func emitLiteral(w io.Writer, format string, start, end int) {
	for i := start; i < end; i++ {
		emitByte(w, format[i])
	}
}

func emitByte(w io.Writer, b byte) {
	oneByte[0] = b
	emit(w, oneByte)
}

func emitRepeat(w io.Writer, b byte, count int) {
	for ; count > 0; count-- {
		emitByte(w, b)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		emit(w, markWrongType)
	case b:
		emit(w, trueValue)
	default:
		emit(w, falseValue)
	}
}

func fmtString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		emitRepeat(w, ' ', width-len(s))
		emitLiteral(w, s, 0, len(s))
	case []byte:
		emitRepeat(w, ' ', width-len(s))
		emit(w, s)
	default:
		emit(w, markWrongType)
	}
}

// magnitude splits an integer argument into its absolute value and sign.
func magnitude(v interface{}) (mag uint64, neg, ok bool) {
	var s int64
	switch t := v.(type) {
	case uint8:
		return uint64(t), false, true
	case uint16:
		return uint64(t), false, true
	case uint32:
		return uint64(t), false, true
	case uint64:
		return t, false, true
	case uint:
		return uint64(t), false, true
	case uintptr:
		return uint64(t), false, true
	case int8:
		s = int64(t)
	case int16:
		s = int64(t)
	case int32:
		s = int64(t)
	case int64:
		s = t
	case int:
		s = int64(t)
	default:
		return 0, false, false
	}

	if s < 0 {
		// Negating in the unsigned domain also handles math.MinInt64.
		return -uint64(s), true, true
	}
	return uint64(s), false, true
}

// fmtInt renders v in the requested base. Base 10 values are right-aligned
// with spaces and the sign sits next to the first digit; base 8 and 16 values
// are zero-padded and the sign is placed in front of the padding.
func fmtInt(w io.Writer, v interface{}, base uint64, width int) {
	mag, neg, ok := magnitude(v)
	if !ok {
		emit(w, markWrongType)
		return
	}

	if width > maxBufSize-1 {
		width = maxBufSize - 1
	}

	start := len(numBuf)
	for {
		start--
		numBuf[start] = digits[mag%base]
		mag /= base
		if mag == 0 {
			break
		}
	}

	if base == 10 {
		if neg {
			start--
			numBuf[start] = '-'
		}
		for len(numBuf)-start < width {
			start--
			numBuf[start] = ' '
		}
	} else {
		for len(numBuf)-start < width {
			start--
			numBuf[start] = '0'
		}
		if neg {
			start--
			numBuf[start] = '-'
		}
	}

	emit(w, numBuf[start:])
}

// emit hides p from escape analysis before handing it to the writer. Without
// this, the compiler cannot prove that p does not escape through the unknown
// io.Writer and every Printf call would allocate, which crashes the kernel if
// it happens before the Go allocator is set up.
func emit(w io.Writer, p []byte) {
	emitNoEscape(w, noEscape(unsafe.Pointer(&p)))
}

func emitNoEscape(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w == nil {
		earlyBuf.Write(p)
		return
	}
	w.Write(p)
}

// noEscape hides a pointer from escape analysis (see runtime/stubs.go).
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
