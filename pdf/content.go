package pdf

import (
	"bytes"
	"strconv"
	"strings"
)

// tokKind classifies content stream tokens.
type tokKind int

const (
	tokNumber tokKind = iota
	tokString
	tokName
	tokArrayStart
	tokArrayEnd
	tokOperator
	tokOther
)

type token struct {
	kind tokKind
	num  float64
	str  []byte // decoded string bytes, name or operator text
}

// lexer tokenizes a PDF content stream. It understands the subset of the
// syntax needed for text extraction and skips everything else.
type lexer struct {
	buf []byte
	pos int
}

func isWhite(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) next() (token, bool) {
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		switch {
		case isWhite(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.buf) && l.buf[l.pos] != '\n' && l.buf[l.pos] != '\r' {
				l.pos++
			}
		case c == '(':
			l.pos++
			return token{kind: tokString, str: l.literal()}, true
		case c == '<':
			if l.pos+1 < len(l.buf) && l.buf[l.pos+1] == '<' {
				l.pos += 2
				return token{kind: tokOther}, true
			}
			l.pos++
			return token{kind: tokString, str: l.hex()}, true
		case c == '>':
			l.pos++
			if l.pos < len(l.buf) && l.buf[l.pos] == '>' {
				l.pos++
			}
			return token{kind: tokOther}, true
		case c == '[':
			l.pos++
			return token{kind: tokArrayStart}, true
		case c == ']':
			l.pos++
			return token{kind: tokArrayEnd}, true
		case c == '/':
			l.pos++
			return token{kind: tokName, str: l.regular()}, true
		case c == '{' || c == '}' || c == ')':
			l.pos++
			return token{kind: tokOther}, true
		default:
			word := l.regular()
			if len(word) == 0 {
				l.pos++
				continue
			}
			if f, err := strconv.ParseFloat(string(word), 64); err == nil {
				return token{kind: tokNumber, num: f}, true
			}
			if string(word) == "BI" {
				l.skipInlineImage()
				return token{kind: tokOther}, true
			}
			return token{kind: tokOperator, str: word}, true
		}
	}
	return token{}, false
}

func (l *lexer) regular() []byte {
	start := l.pos
	for l.pos < len(l.buf) && !isWhite(l.buf[l.pos]) && !isDelim(l.buf[l.pos]) {
		l.pos++
	}
	return l.buf[start:l.pos]
}

func (l *lexer) literal() []byte {
	var out []byte
	depth := 1
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		case '\\':
			if l.pos >= len(l.buf) {
				return out
			}
			e := l.buf[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.buf) && l.buf[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.buf) && l.buf[l.pos] >= '0' && l.buf[l.pos] <= '7'; i++ {
						v = v*8 + int(l.buf[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

func (l *lexer) hex() []byte {
	var out []byte
	var hi byte
	half := false
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		l.pos++
		if c == '>' {
			break
		}
		v, ok := hexVal(c)
		if !ok {
			continue
		}
		if !half {
			hi = v
			half = true
			continue
		}
		out = append(out, hi<<4|v)
		half = false
	}
	if half {
		out = append(out, hi<<4)
	}
	return out
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (l *lexer) skipInlineImage() {
	if i := bytes.Index(l.buf[l.pos:], []byte("EI")); i >= 0 {
		l.pos += i + 2
		return
	}
	l.pos = len(l.buf)
}

// textRun is one shown string with its baseline position in user space.
type textRun struct {
	text string
	font string
	y    float64
}

// interpret walks a content stream and returns the text runs in stream order.
// fonts maps resource names (F1) to base font names (Helvetica-Bold).
func interpret(content []byte, fonts map[string]string) []textRun {
	var (
		lx       = lexer{buf: content}
		operands []token
		inArray  bool
		array    []token
		runs     []textRun

		font    string
		leading float64
		lineY   float64 // baseline of the current text line
	)

	show := func(s []byte) {
		if len(s) == 0 {
			return
		}
		runs = append(runs, textRun{text: decodeText(s), font: font, y: lineY})
	}

	for {
		t, ok := lx.next()
		if !ok {
			break
		}
		switch t.kind {
		case tokArrayStart:
			inArray = true
			array = array[:0]
			continue
		case tokArrayEnd:
			inArray = false
			operands = append(operands, token{kind: tokOther, str: nil})
			continue
		}
		if inArray {
			array = append(array, t)
			continue
		}
		if t.kind != tokOperator {
			operands = append(operands, t)
			continue
		}

		op := string(t.str)
		switch op {
		case "BT":
			lineY = 0
		case "Tf":
			if n := len(operands); n >= 2 && operands[n-2].kind == tokName {
				res := string(operands[n-2].str)
				if base, ok := fonts[res]; ok {
					font = base
				} else {
					font = res
				}
			}
		case "TL":
			if n := len(operands); n >= 1 {
				leading = operands[n-1].num
			}
		case "Td", "TD":
			if n := len(operands); n >= 2 {
				lineY += operands[n-1].num
				if op == "TD" {
					leading = -operands[n-1].num
				}
			}
			if len(runs) > 0 {
				runs = append(runs, textRun{text: "\n", font: "", y: lineY})
			}
		case "Tm":
			if n := len(operands); n >= 6 {
				lineY = operands[n-1].num
			}
			if len(runs) > 0 {
				runs = append(runs, textRun{text: "\n", font: "", y: lineY})
			}
		case "T*":
			lineY -= leading
			runs = append(runs, textRun{text: "\n", y: lineY})
		case "Tj":
			if n := len(operands); n >= 1 && operands[n-1].kind == tokString {
				show(operands[n-1].str)
			}
		case "'", "\"":
			lineY -= leading
			runs = append(runs, textRun{text: "\n", y: lineY})
			if n := len(operands); n >= 1 && operands[n-1].kind == tokString {
				show(operands[n-1].str)
			}
		case "TJ":
			var b []byte
			for _, el := range array {
				switch el.kind {
				case tokString:
					b = append(b, el.str...)
				case tokNumber:
					// large negative kerning is a word gap
					if el.num < -200 {
						b = append(b, ' ')
					}
				}
			}
			show(b)
			array = array[:0]
		case "ET":
			runs = append(runs, textRun{text: "\n", y: lineY})
		}
		operands = operands[:0]
	}
	return runs
}

// decodeText maps string bytes to text. Two-byte encodings with a zero
// high byte collapse to their low byte; other bytes are read as Latin-1.
func decodeText(b []byte) string {
	if len(b) >= 2 && len(b)%2 == 0 && twoByte(b) {
		var sb strings.Builder
		for i := 0; i < len(b); i += 2 {
			writeByteRune(&sb, b[i+1])
		}
		return sb.String()
	}
	var sb strings.Builder
	for _, c := range b {
		writeByteRune(&sb, c)
	}
	return sb.String()
}

func twoByte(b []byte) bool {
	for i := 0; i < len(b); i += 2 {
		if b[i] != 0 {
			return false
		}
	}
	return true
}

func writeByteRune(sb *strings.Builder, c byte) {
	switch {
	case c == '\t' || c == '\n' || c == '\r':
		sb.WriteByte(' ')
	case c < 0x20:
	default:
		sb.WriteRune(rune(c))
	}
}

// glyphs counts the shown glyphs of a run, ignoring whitespace.
func glyphs(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\n' {
			n++
		}
	}
	return n
}
