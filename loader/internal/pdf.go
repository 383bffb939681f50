package internal

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"knowledge/types"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// extractPDF returns one PageText per page that has visible text.
func extractPDF(data []byte, margins Margins) ([]types.PageText, error) {
	conf := api.LoadConfiguration()
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}

	heights, err := pageHeights(ctx)
	if err != nil {
		return nil, err
	}

	var pages []types.PageText
	for nr := 1; nr <= ctx.PageCount; nr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, nr)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", nr, err)
		}
		if r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", nr, err)
		}

		var height float64
		if nr-1 < len(heights) {
			height = heights[nr-1]
		}
		text := pageText(content, margins.band(height))
		if strings.TrimSpace(text) != "" {
			pages = append(pages, types.PageText{PageNumber: nr, Text: text})
		}
	}
	return pages, nil
}

type pdfOperand struct {
	num   float64
	str   []byte
	items []pdfOperand
	isNum bool
	isStr bool
	isArr bool
}

// textState follows the text matrix just far enough to know where lines
// break and whether a run sits inside the kept band.
type textState struct {
	band    band
	y       float64
	leading float64

	out       strings.Builder
	line      strings.Builder
	lineY     float64
	needSpace bool
}

func (s *textState) flushLine() {
	if text := strings.TrimSpace(s.line.String()); text != "" {
		s.out.WriteString(text)
		s.out.WriteByte('\n')
	}
	s.line.Reset()
	s.needSpace = false
}

func (s *textState) show(raw []byte) {
	if !s.band.contains(s.y) {
		return
	}
	text := decodePDFString(raw)
	if text == "" {
		return
	}
	if s.line.Len() > 0 && math.Abs(s.y-s.lineY) > 0.5 {
		s.flushLine()
	} else if s.needSpace && s.line.Len() > 0 {
		s.line.WriteByte(' ')
	}
	s.needSpace = false
	s.lineY = s.y
	s.line.WriteString(text)
}

func (s *textState) apply(op string, args []pdfOperand) {
	num := func(i int) float64 {
		if i < len(args) && args[i].isNum {
			return args[i].num
		}
		return 0
	}
	last := func() []byte {
		if n := len(args); n > 0 && args[n-1].isStr {
			return args[n-1].str
		}
		return nil
	}

	switch op {
	case "BT":
		s.y = 0
		s.needSpace = true
	case "TL":
		s.leading = num(0)
	case "Td", "TD":
		if op == "TD" {
			s.leading = -num(1)
		}
		s.y += num(1)
		s.needSpace = true
	case "Tm":
		if len(args) >= 6 {
			s.y = num(5)
			s.needSpace = true
		}
	case "T*":
		s.y -= s.leading
	case "Tj":
		s.show(last())
	case "'", "\"":
		s.y -= s.leading
		s.show(last())
	case "TJ":
		if len(args) == 0 || !args[len(args)-1].isArr {
			return
		}
		for _, item := range args[len(args)-1].items {
			switch {
			case item.isStr:
				s.show(item.str)
			case item.isNum && item.num < -200:
				s.needSpace = true
			}
		}
	}
}

func pageText(content []byte, b band) string {
	st := &textState{band: b}
	lx := &pdfLexer{data: content}
	var stack []pdfOperand

	for {
		op, operand, ok := lx.next()
		if !ok {
			break
		}
		if op == "" {
			stack = append(stack, operand)
			continue
		}
		if op == "BI" {
			lx.skipInlineImage()
		} else {
			st.apply(op, stack)
		}
		stack = stack[:0]
	}
	st.flushLine()
	return strings.TrimRight(st.out.String(), "\n")
}

type pdfLexer struct {
	data []byte
	pos  int
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// next returns either an operator name or an operand. ok is false at the
// end of the stream.
func (l *pdfLexer) next() (op string, operand pdfOperand, ok bool) {
	for {
		l.skipSpace()
		if l.pos >= len(l.data) {
			return "", pdfOperand{}, false
		}
		c := l.data[l.pos]
		switch {
		case c == '(':
			l.pos++
			return "", pdfOperand{str: l.literal(), isStr: true}, true
		case c == '<' && l.peek(1) == '<':
			l.skipDict()
			return "", pdfOperand{}, true
		case c == '<':
			l.pos++
			return "", pdfOperand{str: l.hex(), isStr: true}, true
		case c == '[':
			l.pos++
			return "", l.array(), true
		case c == ']' || c == '>' || c == ')' || c == '{' || c == '}':
			l.pos++
		case c == '/':
			l.pos++
			l.word()
			return "", pdfOperand{}, true
		default:
			w := l.word()
			if w == "" {
				l.pos++
				continue
			}
			if f, err := strconv.ParseFloat(w, 64); err == nil {
				return "", pdfOperand{num: f, isNum: true}, true
			}
			return w, pdfOperand{}, true
		}
	}
}

func (l *pdfLexer) peek(off int) byte {
	if l.pos+off < len(l.data) {
		return l.data[l.pos+off]
	}
	return 0
}

func (l *pdfLexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		if !isPDFSpace(c) {
			return
		}
		l.pos++
	}
}

func (l *pdfLexer) word() string {
	start := l.pos
	for l.pos < len(l.data) && !isPDFSpace(l.data[l.pos]) && !isPDFDelim(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

func (l *pdfLexer) array() pdfOperand {
	arr := pdfOperand{isArr: true}
	for {
		l.skipSpace()
		if l.pos >= len(l.data) {
			return arr
		}
		if l.data[l.pos] == ']' {
			l.pos++
			return arr
		}
		op, operand, ok := l.next()
		if !ok {
			return arr
		}
		if op == "" {
			arr.items = append(arr.items, operand)
		}
	}
}

func (l *pdfLexer) skipDict() {
	depth := 0
	for l.pos < len(l.data) {
		switch {
		case l.data[l.pos] == '<' && l.peek(1) == '<':
			depth++
			l.pos += 2
		case l.data[l.pos] == '>' && l.peek(1) == '>':
			depth--
			l.pos += 2
			if depth == 0 {
				return
			}
		case l.data[l.pos] == '(':
			l.pos++
			l.literal()
		default:
			l.pos++
		}
	}
}

func (l *pdfLexer) literal() []byte {
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
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
			if l.pos >= len(l.data) {
				return out
			}
			e := l.data[l.pos]
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
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := int(e - '0')
				for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
					v = v*8 + int(l.data[l.pos]-'0')
					l.pos++
				}
				out = append(out, byte(v))
			default:
				out = append(out, e)
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

func (l *pdfLexer) hex() []byte {
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		if c := l.data[l.pos]; !isPDFSpace(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

func (l *pdfLexer) skipInlineImage() {
	idx := bytes.Index(l.data[l.pos:], []byte("EI"))
	for idx >= 0 {
		end := l.pos + idx
		before := end == 0 || isPDFSpace(l.data[end-1])
		after := end+2 >= len(l.data) || isPDFSpace(l.data[end+2])
		if before && after {
			l.pos = end + 2
			return
		}
		l.pos = end + 2
		idx = bytes.Index(l.data[l.pos:], []byte("EI"))
	}
	l.pos = len(l.data)
}

// decodePDFString maps a shown string to text. UTF-16BE is recognised by
// its byte order mark or by a zero high byte on every code unit; anything
// else is read as Latin-1. Control bytes are dropped.
func decodePDFString(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		return decodeUTF16(raw[2:])
	}
	if len(raw) >= 2 && len(raw)%2 == 0 {
		wide := true
		for i := 0; i < len(raw); i += 2 {
			if raw[i] != 0 {
				wide = false
				break
			}
		}
		if wide {
			return decodeUTF16(raw)
		}
	}

	var b strings.Builder
	for _, c := range raw {
		if c < 0x20 || (c >= 0x7F && c < 0xA0) {
			continue
		}
		b.WriteRune(rune(c))
	}
	return b.String()
}

func decodeUTF16(raw []byte) string {
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
	}
	var b strings.Builder
	for _, r := range utf16.Decode(units) {
		if r >= 0x20 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
