// Package parser implements the syntax analysis stage: a recursive-descent
// statement grammar over a stratified precedence-climbing expression
// grammar, producing a span-annotated AST and applying the dialect-gated
// semantic checks (assignment targets, call argument ordering, parameter
// legality, type admissibility, f-string assembly) inline as each
// production completes.
package parser

import (
	"os"

	"buildlang/internal/ast"
	"buildlang/internal/dialect"
	"buildlang/internal/diag"
	"buildlang/internal/lexer"
	"buildlang/internal/span"
	"buildlang/internal/token"
)

// Parser performs syntax analysis over a token stream already produced by
// the lexer. It carries no ambient state beyond what is threaded through
// its fields: the token slice, its active dialect policy, the error sink,
// and a trace id correlating its diagnostics with the parse session.
type Parser struct {
	tokens  []token.Token
	pos     int
	dialect dialect.Policy
	traceID string
	diags   []diag.Diagnostic
}

// New creates a Parser over tokens using the given dialect policy.
func New(tokens []token.Token, policy dialect.Policy, traceID string) *Parser {
	return &Parser{tokens: tokens, dialect: policy, traceID: traceID}
}

// ParseModule parses the entire token stream as a top-level suite and
// returns the root Statements node plus any diagnostic raised. Parsing
// stops at the first statement whose parse raises a diagnostic: per the
// single fail-fast diagnostic channel, the parse as a whole yields that
// one diagnostic rather than continuing to scan for more.
func (p *Parser) ParseModule() (*ast.StatementsStmt, []diag.Diagnostic) {
	start := p.peek().Span.Start
	p.skipNewlines()

	var stmts []ast.Stmt
	for !p.atEnd() {
		stmts = append(stmts, p.parseStatement())
		if len(p.diags) > 0 {
			break
		}
		p.skipNewlines()
	}

	return &ast.StatementsStmt{StmtBase: ast.SB(start, p.prevEnd()), Stmts: stmts}, p.diags
}

// ParseString is the library entry point: it lexes source under the
// caller-supplied trace id and parses the resulting tokens under policy. A lexer failure
// is itself fail-fast: parsing is never attempted over a token stream the
// lexer has already flagged.
func ParseString(source, filename string, policy dialect.Policy, traceID string) (*ast.StatementsStmt, []diag.Diagnostic) {
	l := lexer.New(source, filename, traceID)
	tokens, lexDiags := l.Tokenize()
	if len(lexDiags) > 0 {
		return nil, lexDiags[:1]
	}
	p := New(tokens, policy, traceID)
	return p.ParseModule()
}

// ParseFile reads source from path and parses it under policy, the way
// ParseString does for in-memory source. A read failure is reported
// through the same diagnostic channel as every other parse failure.
func ParseFile(path string, policy dialect.Policy, traceID string) (*ast.StatementsStmt, []diag.Diagnostic) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []diag.Diagnostic{diag.Errorf(diag.Syntax, "E1000", span.Span{}, traceID, "reading %s: %v", path, err)}
	}
	return ParseString(string(data), path, policy, traceID)
}

// ---- navigation helpers ----

func (p *Parser) peek() token.Token {
	if p.pos >= len(p.tokens) {
		return token.Token{Kind: token.EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) token.Token {
	idx := p.pos + offset
	if idx >= len(p.tokens) || idx < 0 {
		return token.Token{Kind: token.EOF}
	}
	return p.tokens[idx]
}

func (p *Parser) peekKind() token.Kind { return p.peek().Kind }

func (p *Parser) advance() token.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) check(kind token.Kind) bool { return p.peekKind() == kind }

func (p *Parser) matchAny(kinds ...token.Kind) bool {
	cur := p.peekKind()
	for _, k := range kinds {
		if cur == k {
			return true
		}
	}
	return false
}

func (p *Parser) expect(kind token.Kind) (token.Token, bool) {
	if p.check(kind) {
		return p.advance(), true
	}
	tok := p.peek()
	p.errorf(diag.Syntax, "E2001", tok.Span, "expected '%s', got '%s'", kind, tok.Kind)
	return tok, false
}

func (p *Parser) atEnd() bool { return p.peekKind() == token.EOF }

func (p *Parser) skipNewlines() {
	for p.check(token.NEWLINE) {
		p.advance()
	}
}

func (p *Parser) prevEnd() span.Position {
	if p.pos > 0 && p.pos-1 < len(p.tokens) {
		return p.tokens[p.pos-1].Span.End
	}
	return p.peek().Span.Start
}

// record keeps only the first diagnostic raised during a parse: the
// diagnostic channel is fail-fast and single-valued (spec §6/§7), so every
// diagnostic after the first is dropped rather than accumulated.
func (p *Parser) record(d diag.Diagnostic) {
	if len(p.diags) == 0 {
		p.diags = append(p.diags, d)
	}
}

func (p *Parser) errorf(kind diag.Kind, code string, s span.Span, format string, args ...interface{}) {
	p.record(diag.Errorf(kind, code, s, p.traceID, format, args...))
}

// ============================================================
// Statement parsing
// ============================================================

func (p *Parser) parseStatement() ast.Stmt {
	switch p.peekKind() {
	case token.DEF:
		return p.parseDef()
	case token.IF:
		return p.parseIf()
	case token.FOR:
		return p.parseFor()
	default:
		return p.parseSimpleStmtLine()
	}
}

// parseSuite parses the body of a compound statement: either an inline
// simple-statement sequence after the colon, or an indented block.
func (p *Parser) parseSuite() ast.Stmt {
	start := p.peek().Span.Start
	if !p.check(token.NEWLINE) {
		return p.parseSimpleStmtSequence()
	}
	p.advance() // NEWLINE
	if _, ok := p.expect(token.INDENT); !ok {
		return &ast.StatementsStmt{StmtBase: ast.SB(start, p.prevEnd())}
	}
	p.skipNewlines()
	var stmts []ast.Stmt
	for !p.check(token.DEDENT) && !p.atEnd() {
		stmts = append(stmts, p.parseStatement())
		if len(p.diags) > 0 {
			break
		}
		p.skipNewlines()
	}
	p.expect(token.DEDENT)
	return &ast.StatementsStmt{StmtBase: ast.SB(start, p.prevEnd()), Stmts: stmts}
}

// parseSimpleStmtLine parses one or more ';'-separated small statements
// terminated by NEWLINE (or EOF at end of file), wrapping more than one
// in a Statements node.
func (p *Parser) parseSimpleStmtLine() ast.Stmt {
	start := p.peek().Span.Start
	stmts := []ast.Stmt{p.parseSmallStmt()}
	for p.check(token.SEMICOLON) {
		p.advance()
		if p.check(token.NEWLINE) || p.atEnd() {
			break // trailing ';'
		}
		stmts = append(stmts, p.parseSmallStmt())
	}
	if p.check(token.NEWLINE) {
		p.advance()
	} else if !p.atEnd() && !p.check(token.DEDENT) {
		tok := p.peek()
		p.errorf(diag.Syntax, "E2002", tok.Span, "expected end of statement, got '%s'", tok.Kind)
	}
	if len(stmts) == 1 {
		return stmts[0]
	}
	return &ast.StatementsStmt{StmtBase: ast.SB(start, p.prevEnd()), Stmts: stmts}
}

// parseSimpleStmtSequence is like parseSimpleStmtLine but used as an
// inline suite body (no leading keyword already consumed by the caller).
func (p *Parser) parseSimpleStmtSequence() ast.Stmt {
	return p.parseSimpleStmtLine()
}

func (p *Parser) parseSmallStmt() ast.Stmt {
	switch p.peekKind() {
	case token.RETURN:
		return p.parseReturn()
	case token.BREAK:
		tok := p.advance()
		return &ast.BreakStmt{StmtBase: ast.SB(tok.Span.Start, tok.Span.End)}
	case token.CONTINUE:
		tok := p.advance()
		return &ast.ContinueStmt{StmtBase: ast.SB(tok.Span.Start, tok.Span.End)}
	case token.PASS:
		tok := p.advance()
		return &ast.PassStmt{StmtBase: ast.SB(tok.Span.Start, tok.Span.End)}
	case token.LOAD:
		return p.parseLoad()
	default:
		return p.parseExprOrAssignStmt()
	}
}

func (p *Parser) atSimpleStmtEnd() bool {
	return p.check(token.NEWLINE) || p.check(token.SEMICOLON) || p.atEnd() || p.check(token.DEDENT)
}

func (p *Parser) parseReturn() *ast.ReturnStmt {
	start := p.advance() // 'return'
	var value ast.Expr
	if !p.atSimpleStmtEnd() {
		value = p.parseTestListStar()
	}
	return &ast.ReturnStmt{StmtBase: ast.SB(start.Span.Start, p.prevEnd()), Value: value}
}

// parseLoad parses `load("module", "sym", alias = "other", ...)`.
func (p *Parser) parseLoad() *ast.LoadStmt {
	start := p.advance() // 'load'
	p.expect(token.LPAREN)

	var module string
	moduleTok := p.peek()
	if p.check(token.STRING) {
		p.advance()
		module = moduleTok.Str
	} else {
		p.errorf(diag.MalformedLoad, "E3010", moduleTok.Span, "load() module argument must be a string literal")
	}

	var pairs []ast.LoadPair
	for p.check(token.COMMA) {
		p.advance()
		if p.check(token.RPAREN) {
			break // trailing comma
		}
		pairs = append(pairs, p.parseLoadPair())
	}
	end, _ := p.expect(token.RPAREN)

	if len(pairs) == 0 {
		p.errorf(diag.MalformedLoad, "E3011", ast.SB(start.Span.Start, end.Span.End).Span, "load() requires at least one imported symbol")
	}

	return &ast.LoadStmt{StmtBase: ast.SB(start.Span.Start, end.Span.End), Module: module, Pairs: pairs}
}

func (p *Parser) parseLoadPair() ast.LoadPair {
	if p.check(token.IDENTIFIER) && p.peekAt(1).Kind == token.ASSIGN {
		local := p.advance()
		p.advance() // '='
		exported := p.peek()
		if p.check(token.STRING) {
			p.advance()
		} else {
			p.errorf(diag.MalformedLoad, "E3012", exported.Span, "load() symbol alias must bind to a string literal")
		}
		return ast.LoadPair{Local: local.Lexeme, Exported: exported.Str}
	}
	tok := p.peek()
	if p.check(token.STRING) {
		p.advance()
	} else {
		p.errorf(diag.MalformedLoad, "E3013", tok.Span, "load() symbol entry must be a string literal or alias = \"name\"")
	}
	return ast.LoadPair{Local: tok.Str, Exported: tok.Str}
}

// parseExprOrAssignStmt parses a bare expression statement, a plain
// assignment (optionally typed), or an augmented assignment.
func (p *Parser) parseExprOrAssignStmt() ast.Stmt {
	lhs := p.parseTestListStar()

	var typeAnn ast.Expr
	if p.check(token.COLON) {
		p.advance()
		if !p.dialect.AllowTypedAssignments {
			p.errorf(diag.DisallowedFeature, "E4001", p.peek().Span, "typed assignments are not permitted by the %q dialect", p.dialect.Name)
		}
		typeAnn = p.parseTest()
		if _, ok := lhs.(*ast.IdentExpr); !ok {
			p.errorf(diag.Syntax, "E2010", lhs.GetSpan(), "type annotation is only permitted on assignment to a single identifier")
		}
	}

	if p.check(token.ASSIGN) {
		p.advance()
		rhs := p.parseTestListStar()
		p.checkAssignTarget(lhs)
		return &ast.AssignStmt{
			StmtBase: ast.SB(lhs.GetSpan().Start, p.prevEnd()),
			LHS:      lhs, Type: typeAnn, Op: token.ASSIGN, RHS: rhs,
		}
	}

	if p.peekKind().IsAugmentedAssign() {
		op := p.advance().Kind
		rhs := p.parseTestListStar()
		p.checkSingleAssignTarget(lhs)
		if typeAnn != nil {
			p.errorf(diag.Syntax, "E2011", typeAnn.GetSpan(), "type annotation is not permitted on augmented assignment")
		}
		return &ast.AssignStmt{
			StmtBase: ast.SB(lhs.GetSpan().Start, p.prevEnd()),
			LHS:      lhs, Op: op, RHS: rhs,
		}
	}

	if typeAnn != nil {
		p.errorf(diag.Syntax, "E2012", lhs.GetSpan(), "type annotation without an assignment")
	}
	return &ast.ExprStmt{StmtBase: ast.SB(lhs.GetSpan().Start, lhs.GetSpan().End), Value: lhs}
}

func (p *Parser) parseIf() ast.Stmt {
	start := p.advance() // 'if'
	cond := p.parseTest()
	p.expect(token.COLON)
	then := p.parseSuite()

	if p.check(token.ELIF) {
		elseBranch := p.parseElifChain()
		return &ast.IfElseStmt{StmtBase: ast.SB(start.Span.Start, p.prevEnd()), Cond: cond, Then: then, Else: elseBranch}
	}
	if p.check(token.ELSE) {
		p.advance()
		p.expect(token.COLON)
		elseBody := p.parseSuite()
		return &ast.IfElseStmt{StmtBase: ast.SB(start.Span.Start, p.prevEnd()), Cond: cond, Then: then, Else: elseBody}
	}
	return &ast.IfStmt{StmtBase: ast.SB(start.Span.Start, p.prevEnd()), Cond: cond, Then: then}
}

// parseElifChain desugars a chain of elif/else clauses into nested
// IfElseStmt/IfStmt nodes hung off successive Else fields.
func (p *Parser) parseElifChain() ast.Stmt {
	start := p.advance() // 'elif'
	cond := p.parseTest()
	p.expect(token.COLON)
	then := p.parseSuite()

	if p.check(token.ELIF) {
		nested := p.parseElifChain()
		return &ast.IfElseStmt{StmtBase: ast.SB(start.Span.Start, p.prevEnd()), Cond: cond, Then: then, Else: nested}
	}
	if p.check(token.ELSE) {
		p.advance()
		p.expect(token.COLON)
		elseBody := p.parseSuite()
		return &ast.IfElseStmt{StmtBase: ast.SB(start.Span.Start, p.prevEnd()), Cond: cond, Then: then, Else: elseBody}
	}
	return &ast.IfStmt{StmtBase: ast.SB(start.Span.Start, p.prevEnd()), Cond: cond, Then: then}
}

func (p *Parser) parseFor() ast.Stmt {
	start := p.advance() // 'for'
	target := p.parseTargetList()
	p.expect(token.IN)
	iter := p.parseTestListStar()
	p.expect(token.COLON)
	body := p.parseSuite()
	p.checkAssignTarget(target)
	return &ast.ForStmt{StmtBase: ast.SB(start.Span.Start, p.prevEnd()), Target: target, Iter: iter, Body: body}
}

// parseTargetList parses a comma-separated list of assignable or_test
// expressions (identifiers, attributes, subscripts, parenthesized
// tuples), used for for-loop and comprehension targets.
func (p *Parser) parseTargetList() ast.Expr {
	first := p.parseOrTest()
	if !p.check(token.COMMA) {
		return first
	}
	elems := []ast.Expr{first}
	for p.check(token.COMMA) {
		p.advance()
		if p.check(token.IN) {
			break
		}
		elems = append(elems, p.parseOrTest())
	}
	return &ast.TupleExpr{ExprBase: ast.EB(first.GetSpan().Start, p.prevEnd()), Elems: elems}
}

func (p *Parser) parseDef() *ast.DefStmt {
	start := p.advance() // 'def'
	nameTok, _ := p.expect(token.IDENTIFIER)
	p.expect(token.LPAREN)
	params := p.parseParamList(token.RPAREN, p.dialect.AllowTypedParams)
	p.expect(token.RPAREN)

	var returnType ast.Expr
	if p.check(token.ARROW) {
		p.advance()
		if !p.dialect.AllowReturnTypes {
			p.errorf(diag.DisallowedFeature, "E4002", p.peek().Span, "return type annotations are not permitted by the %q dialect", p.dialect.Name)
		}
		returnType = p.parseTest()
	}

	p.expect(token.COLON)
	body := p.parseSuite()
	p.checkParams(params)

	return &ast.DefStmt{
		StmtBase: ast.SB(start.Span.Start, p.prevEnd()),
		Name:     nameTok.Lexeme, Params: params, ReturnType: returnType, Body: body,
	}
}

// ============================================================
// Parameter lists
// ============================================================

// parseParamList parses a comma-separated parameter list up to (but not
// consuming) terminator. allowTypes gates whether `: type` annotations
// are accepted on any parameter in this list.
func (p *Parser) parseParamList(terminator token.Kind, allowTypes bool) []ast.Param {
	var params []ast.Param
	for !p.check(terminator) && !p.atEnd() {
		switch {
		case p.check(token.STARSTAR):
			start := p.advance()
			nameTok, _ := p.expect(token.IDENTIFIER)
			typ := p.parseOptionalParamType(allowTypes)
			params = append(params, &ast.KwArgsParam{
				ParamBase: ast.PB(start.Span.Start, p.prevEnd()), Name: nameTok.Lexeme, Type: typ,
			})
		case p.check(token.STAR):
			start := p.advance()
			if p.check(token.COMMA) || p.check(terminator) {
				// Legality of a lone '*' with no keyword-only tail is a
				// semantic post-check (checkParams), not a parse-time
				// dialect gate: the marker always parses; only its
				// vacuous placement is conditionally illegal.
				params = append(params, &ast.BareStarParam{ParamBase: ast.PB(start.Span.Start, p.prevEnd())})
			} else {
				nameTok, _ := p.expect(token.IDENTIFIER)
				typ := p.parseOptionalParamType(allowTypes)
				params = append(params, &ast.ArgsParam{
					ParamBase: ast.PB(start.Span.Start, p.prevEnd()), Name: nameTok.Lexeme, Type: typ,
				})
			}
		case p.check(token.IDENTIFIER):
			start := p.peek()
			nameTok := p.advance()
			typ := p.parseOptionalParamType(allowTypes)
			if p.check(token.ASSIGN) {
				p.advance()
				def := p.parseTest()
				params = append(params, &ast.PosDefaultParam{
					ParamBase: ast.PB(start.Span.Start, p.prevEnd()), Name: nameTok.Lexeme, Type: typ, Default: def,
				})
			} else {
				params = append(params, &ast.PosParam{
					ParamBase: ast.PB(start.Span.Start, p.prevEnd()), Name: nameTok.Lexeme, Type: typ,
				})
			}
		default:
			tok := p.peek()
			p.errorf(diag.Syntax, "E2020", tok.Span, "unexpected token '%s' in parameter list", tok.Kind)
			p.advance()
			continue
		}
		if p.check(token.COMMA) {
			p.advance()
		} else {
			break
		}
	}
	return params
}

func (p *Parser) parseOptionalParamType(allowTypes bool) ast.Expr {
	if !p.check(token.COLON) {
		return nil
	}
	start := p.advance()
	if !allowTypes {
		p.errorf(diag.DisallowedFeature, "E4004", start.Span, "typed parameters are not permitted by the %q dialect", p.dialect.Name)
	}
	return p.parseTest()
}

// checkParams enforces the ordering, uniqueness, and lone-'*' invariants
// over an already-parsed parameter list.
func (p *Parser) checkParams(params []ast.Param) {
	seen := map[string]bool{}
	phase := 0 // 0 = positional, 1 = keyword-only tail
	sawKwargs := false
	defaultSeen := false
	var lastStar ast.Node
	keywordOnlyAfterStar := 0

	named := func(name string, s span.Span) {
		if seen[name] {
			p.errorf(diag.IllegalParameter, "E5001", s, "duplicate parameter name %q", name)
		}
		seen[name] = true
	}

	for _, param := range params {
		if sawKwargs {
			p.errorf(diag.IllegalParameter, "E5002", param.GetSpan(), "no parameter may follow **kwargs")
		}
		switch pm := param.(type) {
		case *ast.PosParam:
			named(pm.Name, pm.Span)
			if phase == 0 && defaultSeen {
				p.errorf(diag.IllegalParameter, "E5003", pm.Span, "non-default parameter %q follows a defaulted parameter", pm.Name)
			}
			if phase == 1 {
				keywordOnlyAfterStar++
			}
		case *ast.PosDefaultParam:
			named(pm.Name, pm.Span)
			if phase == 0 {
				defaultSeen = true
			}
			if phase == 1 {
				keywordOnlyAfterStar++
			}
		case *ast.ArgsParam:
			named(pm.Name, pm.Span)
			if phase == 1 {
				p.errorf(diag.IllegalParameter, "E5004", pm.Span, "only one '*args'/'*' marker is permitted")
			}
			phase = 1
			lastStar = pm
		case *ast.BareStarParam:
			if phase == 1 {
				p.errorf(diag.IllegalParameter, "E5004", pm.Span, "only one '*args'/'*' marker is permitted")
			}
			phase = 1
			lastStar = pm
		case *ast.KwArgsParam:
			named(pm.Name, pm.Span)
			sawKwargs = true
		}
	}

	if bare, ok := lastStar.(*ast.BareStarParam); ok && keywordOnlyAfterStar == 0 && !p.dialect.AllowLoneStar {
		p.errorf(diag.IllegalParameter, "E5005", bare.Span, "a bare '*' must be followed by at least one keyword-only parameter")
	}
}

// ============================================================
// Assignment target legality
// ============================================================

func (p *Parser) checkAssignTarget(target ast.Expr) {
	switch t := target.(type) {
	case *ast.IdentExpr, *ast.DotExpr, *ast.IndexExpr, *ast.Index2Expr:
		return
	case *ast.SliceExpr:
		if t.Step != nil {
			p.errorf(diag.IllegalAssignmentTarget, "E6001", t.Span, "a slice with a step is not a legal assignment target")
		}
	case *ast.TupleExpr:
		if len(t.Elems) == 0 {
			p.errorf(diag.IllegalAssignmentTarget, "E6002", t.Span, "empty target list")
		}
		for _, e := range t.Elems {
			p.checkAssignTarget(e)
		}
	case *ast.ListExpr:
		if len(t.Elems) == 0 {
			p.errorf(diag.IllegalAssignmentTarget, "E6002", t.Span, "empty target list")
		}
		for _, e := range t.Elems {
			p.checkAssignTarget(e)
		}
	default:
		p.errorf(diag.IllegalAssignmentTarget, "E6000", target.GetSpan(), "illegal assignment target")
	}
}

func (p *Parser) checkSingleAssignTarget(target ast.Expr) {
	switch t := target.(type) {
	case *ast.IdentExpr, *ast.DotExpr, *ast.IndexExpr, *ast.Index2Expr:
		return
	case *ast.SliceExpr:
		if t.Step != nil {
			p.errorf(diag.IllegalAssignmentTarget, "E6001", t.Span, "a slice with a step is not a legal assignment target")
		}
	default:
		p.errorf(diag.IllegalAssignmentTarget, "E6000", target.GetSpan(), "illegal assignment target")
	}
}

// ============================================================
// Expression lists
// ============================================================

// parseTestListStar parses a comma-separated list of test expressions,
// building a tuple when more than one test is parsed or a trailing comma
// follows the single test.
func (p *Parser) parseTestListStar() ast.Expr {
	first := p.parseTest()
	if !p.check(token.COMMA) {
		return first
	}
	elems := []ast.Expr{first}
	for p.check(token.COMMA) {
		p.advance()
		if !p.canStartTest() {
			break // trailing comma
		}
		elems = append(elems, p.parseTest())
	}
	return &ast.TupleExpr{ExprBase: ast.EB(first.GetSpan().Start, p.prevEnd()), Elems: elems}
}

// canStartTest reports whether the current token can begin a test
// expression; used to detect a trailing comma in a test list.
func (p *Parser) canStartTest() bool {
	switch p.peekKind() {
	case token.NEWLINE, token.SEMICOLON, token.EOF, token.ASSIGN, token.COLON,
		token.RPAREN, token.RBRACKET, token.RBRACE, token.DEDENT, token.IN:
		return false
	default:
		return !p.peekKind().IsAugmentedAssign()
	}
}

// ============================================================
// Expression parsing — precedence ladder
// ============================================================

func (p *Parser) parseTest() ast.Expr {
	if p.check(token.LAMBDA) {
		return p.parseLambda()
	}
	left := p.parseOrTest()
	if p.check(token.IF) {
		p.advance()
		test := p.parseOrTest()
		p.expect(token.ELSE)
		elseExpr := p.parseTest()
		return &ast.CondExpr{ExprBase: ast.EB(left.GetSpan().Start, elseExpr.GetSpan().End), Then: left, Test: test, Else: elseExpr}
	}
	return left
}

func (p *Parser) parseLambda() *ast.LambdaExpr {
	start := p.advance() // 'lambda'
	if !p.dialect.AllowLambda {
		p.errorf(diag.DisallowedFeature, "E4005", start.Span, "lambda expressions are not permitted by the %q dialect", p.dialect.Name)
	}
	params := p.parseParamList(token.COLON, false)
	p.expect(token.COLON)
	body := p.parseTest()
	return &ast.LambdaExpr{ExprBase: ast.EB(start.Span.Start, p.prevEnd()), Params: params, Body: body}
}

func (p *Parser) parseOrTest() ast.Expr {
	left := p.parseAndTest()
	for p.check(token.OR) {
		p.advance()
		right := p.parseAndTest()
		left = &ast.OpExpr{ExprBase: ast.EB(left.GetSpan().Start, right.GetSpan().End), Op: token.OR, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAndTest() ast.Expr {
	left := p.parseNotTest()
	for p.check(token.AND) {
		p.advance()
		right := p.parseNotTest()
		left = &ast.OpExpr{ExprBase: ast.EB(left.GetSpan().Start, right.GetSpan().End), Op: token.AND, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseNotTest() ast.Expr {
	if p.check(token.NOT) {
		start := p.advance()
		operand := p.parseNotTest()
		return &ast.NotExpr{ExprBase: ast.EB(start.Span.Start, operand.GetSpan().End), Operand: operand}
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() ast.Expr {
	left := p.parseBitOr()
	for {
		var op token.Kind
		switch {
		case p.matchAny(token.EQ, token.NEQ, token.LT, token.GT, token.LE, token.GE, token.IN):
			op = p.advance().Kind
		case p.check(token.NOT) && p.peekAt(1).Kind == token.IN:
			p.advance()
			p.advance()
			op = token.NOTIN
		default:
			return left
		}
		right := p.parseBitOr()
		left = &ast.OpExpr{ExprBase: ast.EB(left.GetSpan().Start, right.GetSpan().End), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseBitOr() ast.Expr  { return p.leftAssoc(p.parseBitXor, token.PIPE) }
func (p *Parser) parseBitXor() ast.Expr { return p.leftAssoc(p.parseBitAnd, token.CARET) }
func (p *Parser) parseBitAnd() ast.Expr { return p.leftAssoc(p.parseShift, token.AMP) }
func (p *Parser) parseShift() ast.Expr {
	return p.leftAssoc(p.parseArith, token.LSHIFT, token.RSHIFT)
}
func (p *Parser) parseArith() ast.Expr {
	return p.leftAssoc(p.parseTerm, token.PLUS, token.MINUS)
}
func (p *Parser) parseTerm() ast.Expr {
	return p.leftAssoc(p.parseUnary, token.STAR, token.SLASH, token.SLASHSLASH, token.PERCENT)
}

// leftAssoc folds a left-associative chain of next() operands joined by
// any of ops into a single OpExpr tree.
func (p *Parser) leftAssoc(next func() ast.Expr, ops ...token.Kind) ast.Expr {
	left := next()
	for p.matchAny(ops...) {
		op := p.advance().Kind
		right := next()
		left = &ast.OpExpr{ExprBase: ast.EB(left.GetSpan().Start, right.GetSpan().End), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	switch p.peekKind() {
	case token.PLUS:
		start := p.advance()
		operand := p.parseUnary()
		return &ast.PlusExpr{ExprBase: ast.EB(start.Span.Start, operand.GetSpan().End), Operand: operand}
	case token.MINUS:
		start := p.advance()
		operand := p.parseUnary()
		return &ast.MinusExpr{ExprBase: ast.EB(start.Span.Start, operand.GetSpan().End), Operand: operand}
	case token.TILDE:
		start := p.advance()
		operand := p.parseUnary()
		return &ast.BitNotExpr{ExprBase: ast.EB(start.Span.Start, operand.GetSpan().End), Operand: operand}
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	atom := p.parseAtom()
	for {
		switch {
		case p.check(token.DOT):
			p.advance()
			nameTok, _ := p.expect(token.IDENTIFIER)
			atom = &ast.DotExpr{ExprBase: ast.EB(atom.GetSpan().Start, p.prevEnd()), Object: atom, Name: nameTok.Lexeme}
		case p.check(token.LPAREN):
			atom = p.parseCall(atom)
		case p.check(token.LBRACKET):
			atom = p.parseSubscript(atom)
		default:
			return atom
		}
	}
}

// parseCall parses `callee(args)` applying the positional-then-named-
// then-splat call argument ordering check.
func (p *Parser) parseCall(callee ast.Expr) *ast.CallExpr {
	p.advance() // '('
	var args []ast.Argument
	sawNamed := false
	sawSplatPositional := false
	sawSplatKw := false

	for !p.check(token.RPAREN) && !p.atEnd() {
		switch {
		case p.check(token.STARSTAR):
			p.advance()
			val := p.parseTest()
			if sawSplatKw {
				p.errorf(diag.IllegalArgumentOrder, "E7001", val.GetSpan(), "at most one **kwargs splat is permitted")
			}
			sawSplatKw = true
			args = append(args, &ast.SplatKwArg{ArgBase: ast.AB(val.GetSpan().Start, val.GetSpan().End), Value: val})
		case p.check(token.STAR):
			p.advance()
			val := p.parseTest()
			if sawSplatKw {
				p.errorf(diag.IllegalArgumentOrder, "E7002", val.GetSpan(), "*args may not follow **kwargs")
			}
			if sawSplatPositional {
				p.errorf(diag.IllegalArgumentOrder, "E7003", val.GetSpan(), "at most one *args splat is permitted")
			}
			sawSplatPositional = true
			args = append(args, &ast.SplatArg{ArgBase: ast.AB(val.GetSpan().Start, val.GetSpan().End), Value: val})
		case p.check(token.IDENTIFIER) && p.peekAt(1).Kind == token.ASSIGN:
			nameTok := p.advance()
			p.advance() // '='
			val := p.parseTest()
			if sawSplatKw {
				p.errorf(diag.IllegalArgumentOrder, "E7004", val.GetSpan(), "named argument may not follow **kwargs")
			}
			sawNamed = true
			args = append(args, &ast.NamedArg{ArgBase: ast.AB(nameTok.Span.Start, val.GetSpan().End), Name: nameTok.Lexeme, Value: val})
		default:
			val := p.parseTest()
			if sawNamed || sawSplatKw {
				p.errorf(diag.IllegalArgumentOrder, "E7000", val.GetSpan(), "positional argument may not follow a named or **kwargs argument")
			}
			args = append(args, &ast.PositionalArg{ArgBase: ast.AB(val.GetSpan().Start, val.GetSpan().End), Value: val})
		}
		if p.check(token.COMMA) {
			p.advance()
		} else {
			break
		}
	}
	end, _ := p.expect(token.RPAREN)
	return &ast.CallExpr{ExprBase: ast.EB(callee.GetSpan().Start, end.Span.End), Callee: callee, Args: args}
}

// parseSubscript parses `object[...]`, dispatching to Index, Index2, or
// Slice depending on the shape of the bracketed contents.
func (p *Parser) parseSubscript(object ast.Expr) ast.Expr {
	p.advance() // '['
	start, stop, step, isSlice := p.parseSliceParts()

	if isSlice {
		end, _ := p.expect(token.RBRACKET)
		return &ast.SliceExpr{ExprBase: ast.EB(object.GetSpan().Start, end.Span.End), Object: object, Start: start, Stop: stop, Step: step}
	}
	if p.check(token.COMMA) {
		p.advance()
		second := p.parseTest()
		end, _ := p.expect(token.RBRACKET)
		return &ast.Index2Expr{ExprBase: ast.EB(object.GetSpan().Start, end.Span.End), Object: object, First: start, Second: second}
	}
	end, _ := p.expect(token.RBRACKET)
	return &ast.IndexExpr{ExprBase: ast.EB(object.GetSpan().Start, end.Span.End), Object: object, Index: start}
}

// parseSliceParts parses the inside of `[...]` up to (not including) the
// first ',' or the closing ']'; it recognizes the slice shape
// `[start]:[stop][:[step]]`.
func (p *Parser) parseSliceParts() (start, stop, step ast.Expr, isSlice bool) {
	if !p.check(token.COLON) && !p.check(token.RBRACKET) && !p.check(token.COMMA) {
		start = p.parseTest()
	}
	if p.check(token.COLON) {
		isSlice = true
		p.advance()
		if !p.check(token.COLON) && !p.check(token.RBRACKET) && !p.check(token.COMMA) {
			stop = p.parseTest()
		}
		if p.check(token.COLON) {
			p.advance()
			if !p.check(token.RBRACKET) && !p.check(token.COMMA) {
				step = p.parseTest()
			}
		}
	}
	return
}

// ============================================================
// Atoms
// ============================================================

func (p *Parser) parseAtom() ast.Expr {
	tok := p.peek()
	switch tok.Kind {
	case token.IDENTIFIER:
		p.advance()
		return &ast.IdentExpr{ExprBase: ast.EB(tok.Span.Start, tok.Span.End), Name: tok.Lexeme}
	case token.INTEGER:
		p.advance()
		return &ast.IntLiteral{ExprBase: ast.EB(tok.Span.Start, tok.Span.End), Value: tok.Int}
	case token.FLOAT:
		p.advance()
		return &ast.FloatLiteral{ExprBase: ast.EB(tok.Span.Start, tok.Span.End), Value: tok.Float}
	case token.STRING:
		p.advance()
		return &ast.StringLiteral{ExprBase: ast.EB(tok.Span.Start, tok.Span.End), Value: tok.Str}
	case token.FSTRING:
		p.advance()
		return p.assembleFString(tok)
	case token.LPAREN:
		return p.parseParenOrTuple()
	case token.LBRACKET:
		return p.parseListOrComp()
	case token.LBRACE:
		return p.parseDictOrComp()
	default:
		p.errorf(diag.Syntax, "E2030", tok.Span, "unexpected token '%s'", tok.Kind)
		p.advance()
		return &ast.IdentExpr{ExprBase: ast.EB(tok.Span.Start, tok.Span.End), Name: ""}
	}
}

func (p *Parser) parseParenOrTuple() ast.Expr {
	start := p.advance() // '('
	if p.check(token.RPAREN) {
		end := p.advance()
		return &ast.TupleExpr{ExprBase: ast.EB(start.Span.Start, end.Span.End)}
	}
	first := p.parseTest()
	if p.check(token.COMMA) {
		elems := []ast.Expr{first}
		for p.check(token.COMMA) {
			p.advance()
			if p.check(token.RPAREN) {
				break // trailing comma, possibly a singleton tuple
			}
			elems = append(elems, p.parseTest())
		}
		end, _ := p.expect(token.RPAREN)
		return &ast.TupleExpr{ExprBase: ast.EB(start.Span.Start, end.Span.End), Elems: elems}
	}
	p.expect(token.RPAREN)
	return first
}

func (p *Parser) parseListOrComp() ast.Expr {
	start := p.advance() // '['
	if p.check(token.RBRACKET) {
		end := p.advance()
		return &ast.ListExpr{ExprBase: ast.EB(start.Span.Start, end.Span.End)}
	}
	head := p.parseTest()
	if p.check(token.FOR) {
		first := p.parseForClause()
		rest := p.parseCompClauses()
		end, _ := p.expect(token.RBRACKET)
		return &ast.ListComprehensionExpr{ExprBase: ast.EB(start.Span.Start, end.Span.End), Head: head, First: first, Rest: rest}
	}
	elems := []ast.Expr{head}
	for p.check(token.COMMA) {
		p.advance()
		if p.check(token.RBRACKET) {
			break
		}
		elems = append(elems, p.parseTest())
	}
	end, _ := p.expect(token.RBRACKET)
	return &ast.ListExpr{ExprBase: ast.EB(start.Span.Start, end.Span.End), Elems: elems}
}

func (p *Parser) parseDictOrComp() ast.Expr {
	start := p.advance() // '{'
	if p.check(token.RBRACE) {
		end := p.advance()
		return &ast.DictExpr{ExprBase: ast.EB(start.Span.Start, end.Span.End)}
	}
	keyHead := p.parseTest()
	p.expect(token.COLON)
	valHead := p.parseTest()

	if p.check(token.FOR) {
		first := p.parseForClause()
		rest := p.parseCompClauses()
		end, _ := p.expect(token.RBRACE)
		return &ast.DictComprehensionExpr{
			ExprBase: ast.EB(start.Span.Start, end.Span.End),
			KeyHead:  keyHead, ValueHead: valHead, First: first, Rest: rest,
		}
	}

	entries := []ast.DictEntry{{Key: keyHead, Value: valHead}}
	for p.check(token.COMMA) {
		p.advance()
		if p.check(token.RBRACE) {
			break
		}
		k := p.parseTest()
		p.expect(token.COLON)
		v := p.parseTest()
		entries = append(entries, ast.DictEntry{Key: k, Value: v})
	}
	end, _ := p.expect(token.RBRACE)
	return &ast.DictExpr{ExprBase: ast.EB(start.Span.Start, end.Span.End), Entries: entries}
}

// parseForClause parses `for target in iter`, applying the assign-target
// check to target; it assumes the current token is FOR.
func (p *Parser) parseForClause() ast.ForClause {
	start := p.advance() // 'for'
	target := p.parseTargetList()
	p.expect(token.IN)
	iter := p.parseOrTest()
	p.checkAssignTarget(target)
	return ast.ForClause{ClauseBase: ast.CB(start.Span.Start, p.prevEnd()), Target: target, Iter: iter}
}

func (p *Parser) parseCompClauses() []ast.Clause {
	var clauses []ast.Clause
	for p.check(token.FOR) || p.check(token.IF) {
		if p.check(token.FOR) {
			fc := p.parseForClause()
			clauses = append(clauses, &fc)
		} else {
			start := p.advance() // 'if'
			test := p.parseOrTest()
			clauses = append(clauses, &ast.IfClause{ClauseBase: ast.CB(start.Span.Start, p.prevEnd()), Test: test})
		}
	}
	return clauses
}

// ============================================================
// f-string assembly
// ============================================================

// assembleFString turns the lexer's pre-lexed FSTRING payload into an
// FStringExpr, re-parsing each interpolation fragment's sub-token stream
// as a single test expression and enforcing the dialect's
// identifier-only interpolation restriction when it applies.
func (p *Parser) assembleFString(tok token.Token) *ast.FStringExpr {
	var frags []ast.FStringFragment
	for _, f := range tok.FString.Fragments {
		if !f.IsInterp {
			frags = append(frags, ast.FStringFragment{Literal: f.Literal})
			continue
		}

		subTokens := append(append([]token.Token{}, f.Expr...), token.Token{Kind: token.EOF, Span: f.Span})
		sub := New(subTokens, p.dialect, p.traceID)
		expr := sub.parseTest()
		if !sub.atEnd() {
			sub.errorf(diag.MalformedFString, "E1022", f.Span, "unexpected trailing tokens in f-string interpolation")
		}
		for _, d := range sub.diags {
			p.record(d)
		}

		if !p.dialect.AllowComplexFStringInterpolation {
			if _, ok := expr.(*ast.IdentExpr); !ok {
				p.errorf(diag.DisallowedFeature, "E4006", f.Span, "this dialect only permits identifier interpolation in f-strings")
			}
		}
		frags = append(frags, ast.FStringFragment{Value: expr})
	}
	return &ast.FStringExpr{ExprBase: ast.EB(tok.Span.Start, tok.Span.End), Fragments: frags}
}
