package jet

import (
	"fmt"
	"strings"
)

// TokenType identifies a lexical token.
type TokenType int

const (
	TokenInvalid TokenType = iota
	TokenEOF
	TokenIdentifier
	TokenString
	TokenNumber
	TokenDate
	TokenKeyword
	TokenLeftParen
	TokenRightParen
	TokenComma
	TokenDot
	TokenAsterisk
	TokenEq
	TokenNe
	TokenLt
	TokenLe
	TokenGt
	TokenGe
	TokenOperator
)

var keywords = map[string]bool{
	"SELECT":   true,
	"FROM":     true,
	"WHERE":    true,
	"AND":      true,
	"OR":       true,
	"NOT":      true,
	"LIKE":     true,
	"BETWEEN":  true,
	"IS":       true,
	"NULL":     true,
	"AS":       true,
	"ORDER":    true,
	"BY":       true,
	"ASC":      true,
	"DESC":     true,
	"TOP":      true,
	"PERCENT":  true,
	"DISTINCT": true,
	"GROUP":    true,
	"HAVING":   true,
	"UNION":    true,
	"JOIN":     true,
	"INNER":    true,
	"LEFT":     true,
	"RIGHT":    true,
	"OUTER":    true,
	"ON":       true,
	"IN":       true,
	"EXISTS":   true,
	"TRUE":     true,
	"FALSE":    true,
}

// Token is one lexical token. Pos and End are byte offsets into the input.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
	End     int
}

// Is reports whether the token is the given keyword.
func (t Token) Is(keyword string) bool {
	return t.Type == TokenKeyword && t.Literal == keyword
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "end of query"
	}
	return fmt.Sprintf("%q", t.Literal)
}

// Tokenizer splits Jet SQL text into tokens. Keywords are upper-cased;
// bracketed identifiers lose their brackets; string literals lose their
// quotes; #date# literals lose their hashes.
type Tokenizer struct {
	input string
	pos   int
}

// NewTokenizer creates a tokenizer over input.
func NewTokenizer(input string) *Tokenizer {
	return &Tokenizer{input: input}
}

// Tokenize returns every token, terminated by a TokenEOF.
func (t *Tokenizer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := t.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (t *Tokenizer) next() (Token, error) {
	t.skipSpace()
	start := t.pos
	if t.pos >= len(t.input) {
		return Token{Type: TokenEOF, Pos: start, End: start}, nil
	}

	c := t.input[t.pos]
	switch {
	case c == '\'' || c == '"':
		s, err := t.readQuoted(c)
		if err != nil {
			return Token{}, err
		}
		return Token{Type: TokenString, Literal: s, Pos: start, End: t.pos}, nil

	case c == '[':
		end := strings.IndexByte(t.input[t.pos:], ']')
		if end < 0 {
			return Token{}, fmt.Errorf("unterminated identifier at offset %d", start)
		}
		name := t.input[t.pos+1 : t.pos+end]
		t.pos += end + 1
		return Token{Type: TokenIdentifier, Literal: name, Pos: start, End: t.pos}, nil

	case c == '#':
		end := strings.IndexByte(t.input[t.pos+1:], '#')
		if end < 0 {
			return Token{}, fmt.Errorf("unterminated date literal at offset %d", start)
		}
		lit := t.input[t.pos+1 : t.pos+1+end]
		t.pos += end + 2
		return Token{Type: TokenDate, Literal: lit, Pos: start, End: t.pos}, nil

	case isDigit(c) || (c == '.' && t.pos+1 < len(t.input) && isDigit(t.input[t.pos+1])):
		for t.pos < len(t.input) && (isDigit(t.input[t.pos]) || t.input[t.pos] == '.') {
			t.pos++
		}
		return Token{Type: TokenNumber, Literal: t.input[start:t.pos], Pos: start, End: t.pos}, nil

	case isIdentStart(c):
		for t.pos < len(t.input) && isIdentPart(t.input[t.pos]) {
			t.pos++
		}
		word := t.input[start:t.pos]
		if upper := strings.ToUpper(word); keywords[upper] {
			return Token{Type: TokenKeyword, Literal: upper, Pos: start, End: t.pos}, nil
		}
		return Token{Type: TokenIdentifier, Literal: word, Pos: start, End: t.pos}, nil
	}

	t.pos++
	tok := Token{Literal: string(c), Pos: start}
	switch c {
	case '(':
		tok.Type = TokenLeftParen
	case ')':
		tok.Type = TokenRightParen
	case ',':
		tok.Type = TokenComma
	case '.':
		tok.Type = TokenDot
	case '*':
		tok.Type = TokenAsterisk
	case '=':
		tok.Type = TokenEq
	case '<':
		tok.Type = TokenLt
		if t.pos < len(t.input) {
			switch t.input[t.pos] {
			case '>':
				tok.Type, tok.Literal = TokenNe, "<>"
				t.pos++
			case '=':
				tok.Type, tok.Literal = TokenLe, "<="
				t.pos++
			}
		}
	case '>':
		tok.Type = TokenGt
		if t.pos < len(t.input) && t.input[t.pos] == '=' {
			tok.Type, tok.Literal = TokenGe, ">="
			t.pos++
		}
	case '!':
		if t.pos < len(t.input) && t.input[t.pos] == '=' {
			tok.Type, tok.Literal = TokenNe, "!="
			t.pos++
		} else {
			return Token{}, fmt.Errorf("unexpected character %q at offset %d", c, start)
		}
	case '+', '-', '/', '&', '\\', '^':
		tok.Type = TokenOperator
	default:
		return Token{}, fmt.Errorf("unexpected character %q at offset %d", c, start)
	}
	tok.End = t.pos
	return tok, nil
}

// readQuoted reads a quoted literal; a doubled quote is an escaped quote.
func (t *Tokenizer) readQuoted(quote byte) (string, error) {
	start := t.pos
	t.pos++
	var b strings.Builder
	for t.pos < len(t.input) {
		c := t.input[t.pos]
		if c == quote {
			if t.pos+1 < len(t.input) && t.input[t.pos+1] == quote {
				b.WriteByte(quote)
				t.pos += 2
				continue
			}
			t.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		t.pos++
	}
	return "", fmt.Errorf("unterminated string at offset %d", start)
}

// skipSpace skips whitespace and comments.
func (t *Tokenizer) skipSpace() {
	for t.pos < len(t.input) {
		rest := t.input[t.pos:]
		switch {
		case rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n' || rest[0] == '\r':
			t.pos++
		case strings.HasPrefix(rest, "--"):
			if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
				t.pos += nl + 1
			} else {
				t.pos = len(t.input)
			}
		case strings.HasPrefix(rest, "/*"):
			if end := strings.Index(rest[2:], "*/"); end >= 0 {
				t.pos += end + 4
			} else {
				t.pos = len(t.input)
			}
		default:
			return
		}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) || c == '$' }
