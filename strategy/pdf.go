package strategy

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// textRun is one positioned chunk of text from a page content stream.
type textRun struct {
	x, y float64
	text string
}

// pageContent is the parsed content of one PDF page.
type pageContent struct {
	number  int
	runs    []textRun
	ruleOps int // count of path-drawing operators (re, l), ruled line evidence
}

// readPages opens a PDF with pdfcpu and parses every page content stream
// into positioned text runs. A PDF with zero readable pages is an error,
// not an empty result; the caller records it as a failed attempt.
func readPages(path string) ([]pageContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	if pctx.PageCount == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	var pages []pageContent
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
		if err != nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil || len(data) == 0 {
			continue
		}
		pc := parseContent(data)
		pc.number = pageNr
		if len(pc.runs) == 0 && pc.ruleOps == 0 {
			continue
		}
		pages = append(pages, pc)
	}
	return pages, nil
}

// parseContent walks a page content stream and collects text runs with
// their approximate positions, plus a count of line-drawing operators.
//
// The position tracking is deliberately coarse: Tm sets an absolute origin,
// Td/TD move relative, T* and ' advance one line. That is enough to cluster
// runs into rows and columns; it is not a full text-state machine.
func parseContent(data []byte) pageContent {
	var pc pageContent

	var (
		nums    []float64
		strs    []string
		x, y    float64
		leading float64 = 12
	)

	emit := func() {
		if len(strs) == 0 {
			return
		}
		text := cleanCell(strings.Join(strs, ""))
		strs = nil
		if text == "" {
			return
		}
		pc.runs = append(pc.runs, textRun{x: x, y: y, text: text})
	}

	tok := newTokenizer(data)
	for {
		t, ok := tok.next()
		if !ok {
			break
		}
		switch t.kind {
		case tokNumber:
			nums = append(nums, t.num)
			continue
		case tokString:
			strs = append(strs, t.str)
			continue
		case tokOperator:
			switch t.str {
			case "BT":
				x, y = 0, 0
				strs = nil
			case "Tm":
				if len(nums) >= 6 {
					x = nums[len(nums)-2]
					y = nums[len(nums)-1]
				}
			case "Td":
				if len(nums) >= 2 {
					x += nums[len(nums)-2]
					y += nums[len(nums)-1]
				}
			case "TD":
				if len(nums) >= 2 {
					x += nums[len(nums)-2]
					y += nums[len(nums)-1]
					if l := -nums[len(nums)-1]; l > 0 {
						leading = l
					}
				}
			case "TL":
				if len(nums) >= 1 && nums[len(nums)-1] > 0 {
					leading = nums[len(nums)-1]
				}
			case "T*":
				y -= leading
			case "Tj", "TJ":
				emit()
			case "'", "\"":
				y -= leading
				emit()
			case "re":
				// One rectangle draws up to four cell borders.
				pc.ruleOps++
			case "l":
				pc.ruleOps++
			}
		}
		// Operands are consumed by their operator.
		nums = nums[:0]
	}
	return pc
}

// --- content stream tokenizer ---

type tokKind int

const (
	tokNumber tokKind = iota
	tokString
	tokOperator
)

type token struct {
	kind tokKind
	num  float64
	str  string
}

type tokenizer struct {
	data []byte
	pos  int
}

func newTokenizer(data []byte) *tokenizer {
	return &tokenizer{data: data}
}

func (t *tokenizer) next() (token, bool) {
	for t.pos < len(t.data) {
		c := t.data[t.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			t.pos++
		case c == '[' || c == ']':
			t.pos++
		case c == '(':
			t.pos++
			return token{kind: tokString, str: t.readString()}, true
		case c == '<':
			// Hex string or dict: skip to closing bracket. Hex-encoded
			// text is usually font-subset glyph indices, not recoverable
			// without the font's CMap.
			t.skipAngle()
		case c == '/':
			t.pos++
			t.readBareword()
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			start := t.pos
			t.pos++
			for t.pos < len(t.data) && (t.data[t.pos] == '.' || (t.data[t.pos] >= '0' && t.data[t.pos] <= '9')) {
				t.pos++
			}
			n, err := strconv.ParseFloat(string(t.data[start:t.pos]), 64)
			if err != nil {
				continue
			}
			return token{kind: tokNumber, num: n}, true
		default:
			word := t.readBareword()
			if word == "" {
				t.pos++
				continue
			}
			return token{kind: tokOperator, str: word}, true
		}
	}
	return token{}, false
}

// readString consumes a PDF literal string (the opening paren is already
// consumed), handling escapes, octal codes, and balanced nested parens.
func (t *tokenizer) readString() string {
	var sb strings.Builder
	depth := 1
	for t.pos < len(t.data) {
		c := t.data[t.pos]
		if c == '\\' && t.pos+1 < len(t.data) {
			t.pos++
			e := t.data[t.pos]
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\', '(', ')':
				sb.WriteByte(e)
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && t.pos+1 < len(t.data) && t.data[t.pos+1] >= '0' && t.data[t.pos+1] <= '7'; k++ {
						t.pos++
						val = val*8 + int(t.data[t.pos]-'0')
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(e)
				}
			}
			t.pos++
			continue
		}
		if c == '(' {
			depth++
			sb.WriteByte(c)
		} else if c == ')' {
			depth--
			if depth == 0 {
				t.pos++
				return sb.String()
			}
			sb.WriteByte(c)
		} else {
			sb.WriteByte(c)
		}
		t.pos++
	}
	return sb.String()
}

func (t *tokenizer) skipAngle() {
	depth := 0
	for t.pos < len(t.data) {
		switch t.data[t.pos] {
		case '<':
			depth++
		case '>':
			depth--
			if depth <= 0 {
				t.pos++
				return
			}
		}
		t.pos++
	}
}

func (t *tokenizer) readBareword() string {
	start := t.pos
	for t.pos < len(t.data) {
		c := t.data[t.pos]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' ||
			c == '(' || c == ')' || c == '[' || c == ']' || c == '<' || c == '/' {
			break
		}
		t.pos++
	}
	return string(t.data[start:t.pos])
}

// cleanCell normalises whitespace and strips non-printable runes from a
// text run.
func cleanCell(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
