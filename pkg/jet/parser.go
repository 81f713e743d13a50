package jet

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/dialect"
	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
)

// Op is a WHERE comparison operator.
type Op int

const (
	OpEQ Op = iota
	OpNE
	OpGT
	OpLT
	OpGE
	OpLE
	OpLike
	OpIsNull
	OpNotNull
)

func (o Op) String() string {
	switch o {
	case OpEQ:
		return "="
	case OpNE:
		return "<>"
	case OpGT:
		return ">"
	case OpLT:
		return "<"
	case OpGE:
		return ">="
	case OpLE:
		return "<="
	case OpLike:
		return "LIKE"
	case OpIsNull:
		return "IS NULL"
	case OpNotNull:
		return "IS NOT NULL"
	}
	return "?"
}

// flip mirrors an operator for "literal op column".
func (o Op) flip() Op {
	switch o {
	case OpGT:
		return OpLT
	case OpLT:
		return OpGT
	case OpGE:
		return OpLE
	case OpLE:
		return OpGE
	}
	return o
}

// LiteralKind tells how a literal was written.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralDate
	LiteralBool
)

// Literal is the right-hand side of a condition.
type Literal struct {
	Kind   LiteralKind
	Text   string
	Number decimal.Decimal // LiteralNumber; -1 or 0 for LiteralBool
	Time   time.Time       // LiteralDate
	Bool   bool            // LiteralBool
}

// Value returns the literal as a plain Go value.
func (l Literal) Value() interface{} {
	switch l.Kind {
	case LiteralNumber, LiteralBool:
		return l.Number
	case LiteralDate:
		return l.Time
	}
	return l.Text
}

// Condition is one conjunct of a WHERE clause: column op literal.
type Condition struct {
	Column  string
	Op      Op
	Literal Literal
	Text    string
}

// Aggregate names an aggregate function, or is empty for a plain column.
type Aggregate string

const (
	AggCount Aggregate = "COUNT"
	AggSum   Aggregate = "SUM"
	AggAvg   Aggregate = "AVG"
	AggMin   Aggregate = "MIN"
	AggMax   Aggregate = "MAX"
)

// SelectItem is one entry of the SELECT list.
type SelectItem struct {
	Star      bool // * or COUNT(*)
	Column    string
	Aggregate Aggregate
	Alias     string
	Default   *Literal // Nz(aggregate, default)
}

// Name returns the output column name of the item at position i.
func (it SelectItem) Name(i int) string {
	switch {
	case it.Alias != "":
		return it.Alias
	case it.Aggregate != "":
		return "Expr" + strconv.Itoa(1000+i)
	}
	return it.Column
}

// OrderItem is one ORDER BY key.
type OrderItem struct {
	Column string
	Desc   bool
}

// Statement is a decomposed Jet SELECT.
type Statement struct {
	Items   []SelectItem
	Table   string
	Where   []Condition
	Skipped []string // condition texts left unevaluated
	OrderBy []OrderItem
	Top     int
	HasTop  bool // TOP 0 is a valid limit
}

// IsAggregate reports whether the SELECT list is made of aggregates.
func (s *Statement) IsAggregate() bool {
	return len(s.Items) > 0 && s.Items[0].Aggregate != ""
}

// CountOnly reports whether the statement is a lone COUNT(*).
func (s *Statement) CountOnly() bool {
	return len(s.Items) == 1 && s.Items[0].Aggregate == AggCount && s.Items[0].Star && s.Items[0].Default == nil
}

// dateFunctions are left unevaluated in WHERE conditions.
var dateFunctions = map[string]bool{
	"MONTH":      true,
	"YEAR":       true,
	"DAY":        true,
	"DATE":       true,
	"NOW":        true,
	"TIME":       true,
	"DATEADD":    true,
	"DATEDIFF":   true,
	"DATEPART":   true,
	"DATESERIAL": true,
	"DATEVALUE":  true,
	"WEEKDAY":    true,
	"FORMAT":     true,
}

var aggregates = map[string]Aggregate{
	"COUNT": AggCount,
	"SUM":   AggSum,
	"AVG":   AggAvg,
	"MIN":   AggMin,
	"MAX":   AggMax,
}

type parser struct {
	input  string
	tokens []Token
	pos    int
}

// Parse decomposes a restricted Jet SELECT:
//
//	SELECT [TOP n] items FROM table [[AS] alias]
//	  [WHERE cond [AND cond]...] [ORDER BY col [ASC|DESC], ...]
//
// Anything outside that shape is an UnsupportedQuery error.
func Parse(sql string) (*Statement, error) {
	tokens, err := NewTokenizer(sql).Tokenize()
	if err != nil {
		return nil, kpiqerrors.Wrap(err, kpiqerrors.ErrCodeParseError, "cannot tokenize query").
			WithOp("jet.Parse").
			Err()
	}

	p := &parser{input: sql, tokens: tokens}
	if err := p.rejectUnsupported(); err != nil {
		return nil, err
	}
	return p.parseSelect()
}

// rejectUnsupported fails fast on constructs outside the supported subset,
// wherever they appear.
func (p *parser) rejectUnsupported() error {
	selects := 0
	for i, tok := range p.tokens {
		if tok.Type != TokenKeyword {
			continue
		}
		switch tok.Literal {
		case "SELECT":
			selects++
			if selects > 1 {
				return unsupported("subquery")
			}
		case "UNION":
			return unsupported("UNION")
		case "GROUP":
			return unsupported("GROUP BY")
		case "HAVING":
			return unsupported("HAVING")
		case "JOIN", "INNER", "OUTER":
			return unsupported("JOIN")
		case "LEFT", "RIGHT":
			if i+1 < len(p.tokens) && p.tokens[i+1].Type != TokenLeftParen {
				return unsupported("JOIN")
			}
		case "DISTINCT":
			return unsupported("DISTINCT")
		case "EXISTS", "IN":
			return unsupported(tok.Literal)
		}
	}
	return nil
}

func (p *parser) peek() Token { return p.tokens[p.pos] }

func (p *parser) peekAt(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expectKeyword(kw string) error {
	if tok := p.advance(); !tok.Is(kw) {
		return unsupported("expected " + kw + ", found " + tok.String())
	}
	return nil
}

func (p *parser) parseSelect() (*Statement, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	stmt := &Statement{}

	if p.peek().Is("TOP") {
		p.advance()
		tok := p.advance()
		n, err := strconv.Atoi(tok.Literal)
		if tok.Type != TokenNumber || err != nil || n < 0 {
			return nil, unsupported("TOP " + tok.Literal)
		}
		if p.peek().Is("PERCENT") {
			return nil, unsupported("TOP PERCENT")
		}
		stmt.Top, stmt.HasTop = n, true
	}

	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		stmt.Items = append(stmt.Items, item)
		if p.peek().Type != TokenComma {
			break
		}
		p.advance()
	}

	aggs := 0
	for _, it := range stmt.Items {
		if it.Aggregate != "" {
			aggs++
		}
	}
	if aggs > 0 && aggs != len(stmt.Items) {
		return nil, unsupported("aggregates mixed with columns without GROUP BY")
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.parseTable()
	if err != nil {
		return nil, err
	}
	stmt.Table = table

	if p.peek().Is("WHERE") {
		p.advance()
		if err := p.parseWhere(stmt); err != nil {
			return nil, err
		}
	}

	if p.peek().Is("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			col, err := p.parseColumnRef()
			if err != nil {
				return nil, err
			}
			item := OrderItem{Column: col}
			switch {
			case p.peek().Is("DESC"):
				p.advance()
				item.Desc = true
			case p.peek().Is("ASC"):
				p.advance()
			}
			stmt.OrderBy = append(stmt.OrderBy, item)
			if p.peek().Type != TokenComma {
				break
			}
			p.advance()
		}
	}

	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, unsupported("unexpected " + tok.String())
	}
	return stmt, nil
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	var item SelectItem
	tok := p.peek()

	switch {
	case tok.Type == TokenAsterisk:
		p.advance()
		item.Star = true
		return item, nil

	case tok.Type == TokenLeftParen:
		return item, unsupported("expression in SELECT list")

	case tok.Type == TokenIdentifier && p.peekAt(1).Type == TokenLeftParen:
		name := strings.ToUpper(tok.Literal)
		if name == "NZ" {
			var err error
			if item, err = p.parseNz(); err != nil {
				return item, err
			}
			break
		}
		agg, ok := aggregates[name]
		if !ok {
			return item, unsupported("function " + tok.Literal + " in SELECT list")
		}
		var err error
		if item, err = p.parseAggregate(agg); err != nil {
			return item, err
		}

	case tok.Type == TokenIdentifier:
		col, err := p.parseColumnRef()
		if err != nil {
			return item, err
		}
		item.Column = col

	default:
		return item, unsupported("SELECT item " + tok.String())
	}

	alias, err := p.parseAlias()
	if err != nil {
		return item, err
	}
	item.Alias = alias
	return item, nil
}

// parseAggregate parses NAME( * | column ).
func (p *parser) parseAggregate(agg Aggregate) (SelectItem, error) {
	item := SelectItem{Aggregate: agg}
	p.advance() // name
	p.advance() // (

	switch tok := p.peek(); {
	case tok.Type == TokenAsterisk && agg == AggCount:
		p.advance()
		item.Star = true
	case tok.Type == TokenIdentifier:
		col, err := p.parseColumnRef()
		if err != nil {
			return item, err
		}
		item.Column = col
	default:
		return item, unsupported(string(agg) + " argument " + tok.String())
	}

	if tok := p.advance(); tok.Type != TokenRightParen {
		return item, unsupported("expression inside " + string(agg))
	}
	return item, nil
}

// parseNz parses Nz(aggregate[, default]).
func (p *parser) parseNz() (SelectItem, error) {
	p.advance() // Nz
	p.advance() // (

	tok := p.peek()
	agg, ok := aggregates[strings.ToUpper(tok.Literal)]
	if tok.Type != TokenIdentifier || !ok || p.peekAt(1).Type != TokenLeftParen {
		return SelectItem{}, unsupported("Nz over a non-aggregate")
	}
	item, err := p.parseAggregate(agg)
	if err != nil {
		return item, err
	}

	def := Literal{Kind: LiteralNumber, Text: "0", Number: decimal.Zero}
	if p.peek().Type == TokenComma {
		p.advance()
		if def, err = p.parseLiteral(); err != nil {
			return item, err
		}
	}
	item.Default = &def

	if tok := p.advance(); tok.Type != TokenRightParen {
		return item, unsupported("Nz argument " + tok.String())
	}
	return item, nil
}

func (p *parser) parseAlias() (string, error) {
	if p.peek().Is("AS") {
		p.advance()
		tok := p.advance()
		if tok.Type != TokenIdentifier && tok.Type != TokenString && tok.Type != TokenKeyword {
			return "", unsupported("alias " + tok.String())
		}
		return tok.Literal, nil
	}
	if tok := p.peek(); tok.Type == TokenIdentifier {
		p.advance()
		return tok.Literal, nil
	}
	return "", nil
}

// parseColumnRef parses [qualifier.]column and returns the column.
func (p *parser) parseColumnRef() (string, error) {
	tok := p.advance()
	if tok.Type != TokenIdentifier {
		return "", unsupported("expected a column, found " + tok.String())
	}
	name := tok.Literal
	for p.peek().Type == TokenDot {
		p.advance()
		next := p.advance()
		if next.Type != TokenIdentifier && next.Type != TokenAsterisk {
			return "", unsupported("qualified name " + name + "." + next.Literal)
		}
		name = next.Literal
	}
	return name, nil
}

func (p *parser) parseTable() (string, error) {
	if tok := p.peek(); tok.Type == TokenLeftParen {
		return "", unsupported("subquery")
	}
	table, err := p.parseColumnRef()
	if err != nil {
		return "", err
	}
	if _, err := p.parseAlias(); err != nil {
		return "", err
	}
	if p.peek().Type == TokenComma {
		return "", unsupported("multiple tables")
	}
	return table, nil
}

func (p *parser) parseWhere(stmt *Statement) error {
	for {
		start := p.pos
		end := p.conditionEnd()
		if end == start {
			return unsupported("empty condition")
		}

		cond, skip, err := p.parseCondition(p.tokens[start:end])
		if err != nil {
			return err
		}
		text := strings.TrimSpace(p.input[p.tokens[start].Pos:p.tokens[end-1].End])
		if skip {
			stmt.Skipped = append(stmt.Skipped, text)
		} else {
			for i := range cond {
				cond[i].Text = text
			}
			stmt.Where = append(stmt.Where, cond...)
		}

		p.pos = end
		if !p.peek().Is("AND") {
			return nil
		}
		p.advance()
	}
}

// conditionEnd returns the index of the token ending the condition that
// starts at p.pos: a top-level AND (other than BETWEEN's), ORDER or EOF.
func (p *parser) conditionEnd() int {
	depth := 0
	between := false
	for i := p.pos; i < len(p.tokens); i++ {
		tok := p.tokens[i]
		switch {
		case tok.Type == TokenEOF:
			return i
		case tok.Type == TokenLeftParen:
			depth++
		case tok.Type == TokenRightParen:
			depth--
		case depth > 0:
		case tok.Is("BETWEEN"):
			between = true
		case tok.Is("AND"):
			if between {
				between = false
				continue
			}
			return i
		case tok.Is("ORDER"):
			return i
		}
	}
	return len(p.tokens) - 1
}

// parseCondition decomposes one conjunct. It reports skip for conditions
// built on date functions. BETWEEN yields two conditions.
func (p *parser) parseCondition(toks []Token) (conds, bool, error) {
	for _, tok := range toks {
		if tok.Is("OR") {
			return nil, false, unsupported("OR in WHERE")
		}
	}
	for i, tok := range toks {
		if tok.Type == TokenIdentifier && i+1 < len(toks) && toks[i+1].Type == TokenLeftParen &&
			dateFunctions[strings.ToUpper(tok.Literal)] {
			return nil, true, nil
		}
	}
	if toks[0].Type == TokenLeftParen {
		return nil, false, unsupported("parentheses in WHERE")
	}
	if toks[0].Is("NOT") {
		return nil, false, unsupported("NOT")
	}

	sub := &parser{input: p.input, tokens: append(append([]Token(nil), toks...), Token{Type: TokenEOF})}

	// literal op column
	if isLiteralStart(sub.peek()) {
		lit, err := sub.parseLiteral()
		if err != nil {
			return nil, false, err
		}
		op, ok := comparison(sub.advance())
		if !ok {
			return nil, false, unsupported("condition " + describe(toks))
		}
		col, err := sub.parseColumnRef()
		if err != nil {
			return nil, false, err
		}
		if sub.peek().Type != TokenEOF {
			return nil, false, unsupported("condition " + describe(toks))
		}
		return conds{{Column: col, Op: op.flip(), Literal: lit}}, false, nil
	}

	col, err := sub.parseColumnRef()
	if err != nil {
		return nil, false, unsupported("condition " + describe(toks))
	}

	var out conds
	tok := sub.advance()
	switch {
	case tok.Is("IS"):
		op := OpIsNull
		if sub.peek().Is("NOT") {
			sub.advance()
			op = OpNotNull
		}
		if !sub.advance().Is("NULL") {
			return nil, false, unsupported("condition " + describe(toks))
		}
		out = conds{{Column: col, Op: op}}

	case tok.Is("NOT"):
		if !sub.advance().Is("LIKE") {
			return nil, false, unsupported("NOT")
		}
		return nil, false, unsupported("NOT LIKE")

	case tok.Is("LIKE"):
		lit, err := sub.parseLiteral()
		if err != nil {
			return nil, false, err
		}
		out = conds{{Column: col, Op: OpLike, Literal: lit}}

	case tok.Is("BETWEEN"):
		lo, err := sub.parseLiteral()
		if err != nil {
			return nil, false, err
		}
		if !sub.advance().Is("AND") {
			return nil, false, unsupported("BETWEEN without AND")
		}
		hi, err := sub.parseLiteral()
		if err != nil {
			return nil, false, err
		}
		out = conds{{Column: col, Op: OpGE, Literal: lo}, {Column: col, Op: OpLE, Literal: hi}}

	default:
		op, ok := comparison(tok)
		if !ok {
			return nil, false, unsupported("condition " + describe(toks))
		}
		if sub.peek().Is("NULL") {
			return nil, false, unsupported("comparison with NULL; use IS NULL")
		}
		lit, err := sub.parseLiteral()
		if err != nil {
			return nil, false, err
		}
		out = conds{{Column: col, Op: op, Literal: lit}}
	}

	if sub.peek().Type != TokenEOF {
		return nil, false, unsupported("condition " + describe(toks))
	}
	return out, false, nil
}

type conds []Condition

func comparison(tok Token) (Op, bool) {
	switch tok.Type {
	case TokenEq:
		return OpEQ, true
	case TokenNe:
		return OpNE, true
	case TokenGt:
		return OpGT, true
	case TokenLt:
		return OpLT, true
	case TokenGe:
		return OpGE, true
	case TokenLe:
		return OpLE, true
	}
	return 0, false
}

func isLiteralStart(tok Token) bool {
	switch tok.Type {
	case TokenString, TokenNumber, TokenDate:
		return true
	case TokenOperator:
		return tok.Literal == "-"
	}
	return tok.Is("TRUE") || tok.Is("FALSE")
}

func (p *parser) parseLiteral() (Literal, error) {
	tok := p.advance()
	switch {
	case tok.Type == TokenString:
		return Literal{Kind: LiteralString, Text: tok.Literal}, nil

	case tok.Type == TokenNumber:
		return numberLiteral(tok.Literal)

	case tok.Type == TokenOperator && tok.Literal == "-":
		next := p.advance()
		if next.Type != TokenNumber {
			return Literal{}, unsupported("expression " + tok.Literal + next.Literal)
		}
		return numberLiteral("-" + next.Literal)

	case tok.Type == TokenDate:
		t, ok := dialect.ParseJetDate(tok.Literal)
		if !ok {
			return Literal{}, unsupported("date literal #" + tok.Literal + "#")
		}
		return Literal{Kind: LiteralDate, Text: tok.Literal, Time: t}, nil

	case tok.Is("TRUE"):
		return Literal{Kind: LiteralBool, Text: "True", Bool: true, Number: decimal.NewFromInt(-1)}, nil

	case tok.Is("FALSE"):
		return Literal{Kind: LiteralBool, Text: "False", Number: decimal.Zero}, nil
	}
	return Literal{}, unsupported("expected a literal, found " + tok.String())
}

func numberLiteral(s string) (Literal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Literal{}, unsupported("number " + s)
	}
	return Literal{Kind: LiteralNumber, Text: s, Number: d}, nil
}

func describe(toks []Token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.Literal
	}
	return strings.Join(parts, " ")
}

func unsupported(construct string) error {
	return kpiqerrors.Unsupported(construct).WithOp("jet.Parse").Err()
}
