package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

type segmentKind int

const (
	segChild segmentKind = iota
	segIndex
	segWildcard
	segFilter
)

type segment struct {
	kind      segmentKind
	recursive bool // preceded by ".."
	name      string
	index     int
	filter    *filter
}

type filter struct {
	field  []segment // relative path after @
	op     string    // empty means existence test
	lit    any
	hasLit bool
}

// Path is a compiled JSONPath expression
type Path struct {
	expr     string
	segments []segment
}

// String returns the source expression
func (p *Path) String() string {
	return p.expr
}

// Compile parses a JSONPath expression. A leading "$" is optional.
func Compile(expr string) (*Path, error) {
	src := strings.TrimSpace(expr)
	if src == "" {
		return nil, fmt.Errorf("empty path expression")
	}

	p := &parser{src: src}
	if p.peek() == '$' {
		p.pos++
	} else if p.peek() != '.' && p.peek() != '[' {
		// bare "a.b" is treated as "$.a.b"
		p.src = "." + p.src
	}

	segs, err := p.parseSegments(false)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", expr, err)
	}
	return &Path{expr: expr, segments: segs}, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(expr string) *Path {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

type parser struct {
	src string
	pos int
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

// parseSegments reads segments until the end of input, or until a filter
// terminator when inFilter is set.
func (p *parser) parseSegments(inFilter bool) ([]segment, error) {
	var segs []segment
	for !p.eof() {
		c := p.peek()
		if inFilter && (c == ')' || c == ' ' || isOpChar(c)) {
			break
		}

		switch c {
		case '.':
			p.pos++
			recursive := false
			if p.peek() == '.' {
				recursive = true
				p.pos++
			}
			if p.peek() == '[' {
				seg, err := p.parseBracket()
				if err != nil {
					return nil, err
				}
				seg.recursive = recursive
				segs = append(segs, seg)
				continue
			}
			if p.peek() == '*' {
				p.pos++
				segs = append(segs, segment{kind: segWildcard, recursive: recursive})
				continue
			}
			name := p.readName()
			if name == "" {
				return nil, fmt.Errorf("expected name at offset %d", p.pos)
			}
			segs = append(segs, segment{kind: segChild, name: name, recursive: recursive})
		case '[':
			seg, err := p.parseBracket()
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", c, p.pos)
		}
	}
	return segs, nil
}

func (p *parser) readName() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == '.' || c == '[' || c == ')' || c == ' ' || isOpChar(c) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) parseBracket() (segment, error) {
	p.pos++ // '['
	end := strings.IndexByte(p.src[p.pos:], ']')
	if end < 0 {
		return segment{}, fmt.Errorf("unterminated '[' at offset %d", p.pos-1)
	}

	if p.peek() == '?' {
		return p.parseFilter()
	}

	body := strings.TrimSpace(p.src[p.pos : p.pos+end])
	p.pos += end + 1

	switch {
	case body == "*":
		return segment{kind: segWildcard}, nil
	case len(body) >= 2 && (body[0] == '\'' || body[0] == '"') && body[len(body)-1] == body[0]:
		return segment{kind: segChild, name: body[1 : len(body)-1]}, nil
	default:
		n, err := strconv.Atoi(body)
		if err != nil {
			return segment{}, fmt.Errorf("unsupported subscript [%s]", body)
		}
		return segment{kind: segIndex, index: n}, nil
	}
}

// parseFilter reads [?(@.field op literal)] with the cursor on '?'
func (p *parser) parseFilter() (segment, error) {
	p.pos++ // '?'
	if p.peek() != '(' {
		return segment{}, fmt.Errorf("expected '(' after '?' at offset %d", p.pos)
	}
	p.pos++
	p.skipSpaces()
	if p.peek() != '@' {
		return segment{}, fmt.Errorf("filter must start with @ at offset %d", p.pos)
	}
	p.pos++

	field, err := p.parseSegments(true)
	if err != nil {
		return segment{}, err
	}
	f := &filter{field: field}

	p.skipSpaces()
	if isOpChar(p.peek()) {
		start := p.pos
		for isOpChar(p.peek()) {
			p.pos++
		}
		f.op = p.src[start:p.pos]
		switch f.op {
		case "==", "!=", "<", "<=", ">", ">=":
		default:
			return segment{}, fmt.Errorf("unsupported filter operator %q", f.op)
		}
		p.skipSpaces()
		lit, err := p.readLiteral()
		if err != nil {
			return segment{}, err
		}
		f.lit = lit
		f.hasLit = true
	}

	p.skipSpaces()
	if p.peek() != ')' {
		return segment{}, fmt.Errorf("expected ')' at offset %d", p.pos)
	}
	p.pos++
	if p.peek() != ']' {
		return segment{}, fmt.Errorf("expected ']' at offset %d", p.pos)
	}
	p.pos++
	return segment{kind: segFilter, filter: f}, nil
}

func (p *parser) readLiteral() (any, error) {
	c := p.peek()
	if c == '\'' || c == '"' {
		end := strings.IndexByte(p.src[p.pos+1:], c)
		if end < 0 {
			return nil, fmt.Errorf("unterminated string literal at offset %d", p.pos)
		}
		s := p.src[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return s, nil
	}

	start := p.pos
	for !p.eof() && p.peek() != ')' && p.peek() != ' ' {
		p.pos++
	}
	word := p.src[start:p.pos]
	switch word {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}
	f, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid literal %q", word)
	}
	return f, nil
}

func (p *parser) skipSpaces() {
	for p.peek() == ' ' {
		p.pos++
	}
}

func isOpChar(c byte) bool {
	return c == '=' || c == '!' || c == '<' || c == '>'
}
