package generic

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// Common errors
var (
	ErrUnexpectedEOF = errors.New("unexpected end of data")
	ErrInvalidObject = errors.New("invalid PDF object")
	ErrInvalidStream = errors.New("invalid PDF stream")
	ErrInvalidNumber = errors.New("invalid PDF number")
)

// maxNesting bounds array/dictionary recursion.
const maxNesting = 256

// Parser reads PDF objects from a byte slice.
type Parser struct {
	data  []byte
	pos   int
	depth int
}

// NewParser creates a parser positioned at the start of data.
func NewParser(data []byte) *Parser {
	return &Parser{data: data}
}

// Pos returns the current offset.
func (p *Parser) Pos() int {
	return p.pos
}

// Seek moves to offset.
func (p *Parser) Seek(offset int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(p.data) {
		offset = len(p.data)
	}
	p.pos = offset
}

// AtEOF reports whether all input was consumed, ignoring whitespace.
func (p *Parser) AtEOF() bool {
	p.SkipWhitespace()
	return p.pos >= len(p.data)
}

// SkipWhitespace skips whitespace and comments.
func (p *Parser) SkipWhitespace() {
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if isWhitespace(c) {
			p.pos++
			continue
		}
		if c == '%' {
			for p.pos < len(p.data) && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
			continue
		}
		return
	}
}

// ReadKeyword reads a run of regular characters.
func (p *Parser) ReadKeyword() string {
	p.SkipWhitespace()
	start := p.pos
	for p.pos < len(p.data) && isRegular(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

// ReadInt reads an unsigned or signed integer token.
func (p *Parser) ReadInt() (int64, error) {
	tok := p.ReadKeyword()
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, tok)
	}
	return v, nil
}

// ParseObject parses one direct object or reference.
func (p *Parser) ParseObject() (PdfObject, error) {
	p.SkipWhitespace()
	if p.pos >= len(p.data) {
		return nil, ErrUnexpectedEOF
	}
	c := p.data[p.pos]
	switch {
	case c == '/':
		return p.parseName()
	case c == '(':
		return p.parseLiteralString()
	case c == '<':
		if p.pos+1 < len(p.data) && p.data[p.pos+1] == '<' {
			return p.parseDictionary()
		}
		return p.parseHexString()
	case c == '[':
		return p.parseArray()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumberOrReference()
	}
	start := p.pos
	kw := p.ReadKeyword()
	switch kw {
	case "true":
		return BooleanObject(true), nil
	case "false":
		return BooleanObject(false), nil
	case "null":
		return NullObject{}, nil
	}
	p.pos = start
	if kw == "" {
		return nil, fmt.Errorf("%w: unexpected byte %q at %d", ErrInvalidObject, c, start)
	}
	return nil, fmt.Errorf("%w: unexpected keyword %q at %d", ErrInvalidObject, kw, start)
}

func (p *Parser) parseName() (PdfObject, error) {
	p.pos++
	var buf bytes.Buffer
	for p.pos < len(p.data) && isRegular(p.data[p.pos]) {
		c := p.data[p.pos]
		if c == '#' && p.pos+2 < len(p.data) {
			if b, err := hex.DecodeString(string(p.data[p.pos+1 : p.pos+3])); err == nil {
				buf.WriteByte(b[0])
				p.pos += 3
				continue
			}
		}
		buf.WriteByte(c)
		p.pos++
	}
	return NameObject(buf.String()), nil
}

func (p *Parser) parseLiteralString() (PdfObject, error) {
	p.pos++
	var buf bytes.Buffer
	depth := 1
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		p.pos++
		switch c {
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return &StringObject{Value: buf.Bytes()}, nil
			}
			buf.WriteByte(c)
		case '\\':
			if p.pos >= len(p.data) {
				return nil, ErrUnexpectedEOF
			}
			e := p.data[p.pos]
			p.pos++
			switch e {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if p.pos < len(p.data) && p.data[p.pos] == '\n' {
					p.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '7'; i++ {
						v = v*8 + int(p.data[p.pos]-'0')
						p.pos++
					}
					buf.WriteByte(byte(v))
				} else {
					buf.WriteByte(e)
				}
			}
		default:
			buf.WriteByte(c)
		}
	}
	return nil, ErrUnexpectedEOF
}

func (p *Parser) parseHexString() (PdfObject, error) {
	p.pos++
	end := bytes.IndexByte(p.data[p.pos:], '>')
	if end < 0 {
		return nil, ErrUnexpectedEOF
	}
	digits := make([]byte, 0, end)
	for _, c := range p.data[p.pos : p.pos+end] {
		if !isWhitespace(c) {
			digits = append(digits, c)
		}
	}
	p.pos += end + 1
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	value := make([]byte, len(digits)/2)
	if _, err := hex.Decode(value, digits); err != nil {
		return nil, fmt.Errorf("%w: bad hex string: %v", ErrInvalidObject, err)
	}
	return &StringObject{Value: value, IsHex: true}, nil
}

func (p *Parser) parseArray() (PdfObject, error) {
	if p.depth >= maxNesting {
		return nil, fmt.Errorf("%w: nesting too deep", ErrInvalidObject)
	}
	p.depth++
	defer func() { p.depth-- }()

	p.pos++
	arr := ArrayObject{}
	for {
		p.SkipWhitespace()
		if p.pos >= len(p.data) {
			return nil, ErrUnexpectedEOF
		}
		if p.data[p.pos] == ']' {
			p.pos++
			return arr, nil
		}
		item, err := p.ParseObject()
		if err != nil {
			return nil, err
		}
		arr = append(arr, item)
	}
}

func (p *Parser) parseDictionary() (PdfObject, error) {
	if p.depth >= maxNesting {
		return nil, fmt.Errorf("%w: nesting too deep", ErrInvalidObject)
	}
	p.depth++
	defer func() { p.depth-- }()

	p.pos += 2
	dict := NewDictionary()
	for {
		p.SkipWhitespace()
		if p.pos+1 >= len(p.data) {
			return nil, ErrUnexpectedEOF
		}
		if p.data[p.pos] == '>' && p.data[p.pos+1] == '>' {
			p.pos += 2
			return dict, nil
		}
		if p.data[p.pos] != '/' {
			return nil, fmt.Errorf("%w: dictionary key expected at %d", ErrInvalidObject, p.pos)
		}
		key, err := p.parseName()
		if err != nil {
			return nil, err
		}
		value, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("value for /%s: %w", key, err)
		}
		if _, isNull := value.(NullObject); isNull {
			continue
		}
		dict.Set(string(key.(NameObject)), value)
	}
}

func (p *Parser) parseNumberOrReference() (PdfObject, error) {
	start := p.pos
	tok := p.ReadKeyword()
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		if ref, ok := p.tryReference(i); ok {
			return ref, nil
		}
		return IntegerObject(i), nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		p.pos = start
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, tok)
	}
	return RealObject(f), nil
}

// tryReference looks ahead for "gen R" after an integer.
func (p *Parser) tryReference(num int64) (Reference, bool) {
	save := p.pos
	p.SkipWhitespace()
	genStart := p.pos
	for p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == genStart || num < 0 {
		p.pos = save
		return Reference{}, false
	}
	gen, _ := strconv.Atoi(string(p.data[genStart:p.pos]))
	p.SkipWhitespace()
	if p.pos < len(p.data) && p.data[p.pos] == 'R' && (p.pos+1 == len(p.data) || !isRegular(p.data[p.pos+1])) {
		p.pos++
		return Reference{ObjectNumber: int(num), GenerationNumber: gen}, true
	}
	p.pos = save
	return Reference{}, false
}

// LengthResolver resolves an indirect /Length value.
type LengthResolver func(ref Reference) (int64, bool)

// ParseIndirectObject parses "n g obj ... endobj" at the current position.
// Streams take their length from /Length, falling back to a scan for
// "endstream" when the declared length is missing or wrong.
func (p *Parser) ParseIndirectObject(resolve LengthResolver) (*IndirectObject, error) {
	num, err := p.ReadInt()
	if err != nil {
		return nil, err
	}
	gen, err := p.ReadInt()
	if err != nil {
		return nil, err
	}
	if kw := p.ReadKeyword(); kw != "obj" {
		return nil, fmt.Errorf("%w: expected 'obj' for object %d, got %q", ErrInvalidObject, num, kw)
	}
	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	p.SkipWhitespace()
	if bytes.HasPrefix(p.data[p.pos:], []byte("stream")) {
		dict, ok := obj.(*DictionaryObject)
		if !ok {
			return nil, fmt.Errorf("%w: object %d has stream without dictionary", ErrInvalidStream, num)
		}
		data, err := p.readStreamData(dict, resolve)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", num, err)
		}
		obj = &StreamObject{Dictionary: dict, Data: data}
	}
	save := p.pos
	if p.ReadKeyword() != "endobj" {
		p.pos = save
	}
	return &IndirectObject{Number: int(num), Generation: int(gen), Object: obj}, nil
}

func (p *Parser) readStreamData(dict *DictionaryObject, resolve LengthResolver) ([]byte, error) {
	p.pos += len("stream")
	if p.pos < len(p.data) && p.data[p.pos] == '\r' {
		p.pos++
	}
	if p.pos < len(p.data) && p.data[p.pos] == '\n' {
		p.pos++
	}
	start := p.pos

	length := int64(-1)
	switch v := dict.Get("Length").(type) {
	case IntegerObject:
		length = int64(v)
	case Reference:
		if resolve != nil {
			if l, ok := resolve(v); ok {
				length = l
			}
		}
	}
	if length >= 0 && start+int(length) <= len(p.data) {
		end := start + int(length)
		q := end
		for q < len(p.data) && isWhitespace(p.data[q]) {
			q++
		}
		if bytes.HasPrefix(p.data[q:], []byte("endstream")) {
			p.pos = q + len("endstream")
			return p.data[start:end], nil
		}
	}

	idx := bytes.Index(p.data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("%w: missing endstream", ErrInvalidStream)
	}
	end := start + idx
	if end > start && p.data[end-1] == '\n' {
		end--
	}
	if end > start && p.data[end-1] == '\r' {
		end--
	}
	p.pos = start + idx + len("endstream")
	return p.data[start:end], nil
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == 0 || c == '\f'
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool {
	return !isWhitespace(c) && !isDelimiter(c)
}
