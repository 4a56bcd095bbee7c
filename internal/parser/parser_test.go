package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildlang/internal/ast"
	"buildlang/internal/dialect"
	"buildlang/internal/diag"
)

func parseOK(t *testing.T, source string) *ast.StatementsStmt {
	t.Helper()
	root, diags := ParseString(source, "test.star", dialect.Permissive, "trace")
	require.Empty(t, diags, "unexpected diagnostics: %v", diags)
	return root
}

func parseWithPolicy(t *testing.T, source string, policy dialect.Policy) (*ast.StatementsStmt, []diag.Diagnostic) {
	t.Helper()
	return ParseString(source, "test.star", policy, "trace")
}

func firstStmt(t *testing.T, root *ast.StatementsStmt) ast.Stmt {
	t.Helper()
	require.NotEmpty(t, root.Stmts)
	return root.Stmts[0]
}

func hasKind(diags []diag.Diagnostic, kind diag.Kind) bool {
	for _, d := range diags {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// ---- Scenario 1: precedence and associativity ----

func TestPrecedenceArithmeticOverComparison(t *testing.T) {
	root := parseOK(t, "x = 1 + 2 * 3 < 4\n")
	assign := firstStmt(t, root).(*ast.AssignStmt)
	cmp := assign.RHS.(*ast.OpExpr)
	assert.Equal(t, "<", cmp.Op.String())
	addExpr := cmp.Left.(*ast.OpExpr)
	assert.Equal(t, "+", addExpr.Op.String())
	mulExpr := addExpr.Right.(*ast.OpExpr)
	assert.Equal(t, "*", mulExpr.Op.String())
}

func TestNonChainedComparisonIsLeftAssociative(t *testing.T) {
	root := parseOK(t, "x = a < b < c\n")
	assign := firstStmt(t, root).(*ast.AssignStmt)
	outer := assign.RHS.(*ast.OpExpr)
	assert.Equal(t, "<", outer.Op.String())
	inner, ok := outer.Left.(*ast.OpExpr)
	require.True(t, ok, "expected (a < b) < c, got %T on the left", outer.Left)
	assert.Equal(t, "<", inner.Op.String())
	ident, ok := inner.Left.(*ast.IdentExpr)
	require.True(t, ok)
	assert.Equal(t, "a", ident.Name)
}

func TestNotInSynthesizesNotinOperator(t *testing.T) {
	root := parseOK(t, "x = a not in b\n")
	assign := firstStmt(t, root).(*ast.AssignStmt)
	op := assign.RHS.(*ast.OpExpr)
	assert.Equal(t, "not in", op.Op.String())
}

func TestTernaryAndOrPrecedence(t *testing.T) {
	root := parseOK(t, "x = a if b or c else d\n")
	assign := firstStmt(t, root).(*ast.AssignStmt)
	cond := assign.RHS.(*ast.CondExpr)
	_, ok := cond.Test.(*ast.OpExpr)
	assert.True(t, ok, "expected the ternary test to be the 'or' expression")
}

// ---- Scenario 2: indentation-based suites and elif desugaring ----

func TestIfElifElseDesugarsToNestedIfElse(t *testing.T) {
	root := parseOK(t, "if a:\n    pass\nelif b:\n    pass\nelse:\n    pass\n")
	outer := firstStmt(t, root).(*ast.IfElseStmt)
	nested, ok := outer.Else.(*ast.IfElseStmt)
	require.True(t, ok, "expected elif to desugar into a nested IfElseStmt, got %T", outer.Else)
	_, ok = nested.Else.(*ast.StatementsStmt)
	assert.True(t, ok)
}

func TestBareIfHasNoElseBranch(t *testing.T) {
	root := parseOK(t, "if a:\n    pass\n")
	_, ok := firstStmt(t, root).(*ast.IfStmt)
	assert.True(t, ok)
}

// ---- Scenario 3: def / lambda / params ----

func TestDefWithDefaultAndStarArgsAndKwargs(t *testing.T) {
	root := parseOK(t, "def f(a, b=1, *args, **kwargs):\n    return a\n")
	def := firstStmt(t, root).(*ast.DefStmt)
	require.Len(t, def.Params, 4)
	_, ok := def.Params[0].(*ast.PosParam)
	assert.True(t, ok)
	_, ok = def.Params[1].(*ast.PosDefaultParam)
	assert.True(t, ok)
	_, ok = def.Params[2].(*ast.ArgsParam)
	assert.True(t, ok)
	_, ok = def.Params[3].(*ast.KwArgsParam)
	assert.True(t, ok)
}

func TestLambdaRejectsTypedParamsRegardlessOfDialect(t *testing.T) {
	_, diags := parseWithPolicy(t, "x = lambda a: b: a\n", dialect.Permissive)
	// lambda params never accept types: `a: b` is parsed up to the
	// terminating ':', so `b` here is swallowed as an (always-rejected)
	// type annotation and flagged DisallowedFeature even though the
	// permissive dialect allows typed def parameters.
	assert.True(t, hasKind(diags, diag.DisallowedFeature))
}

func TestLambdaDisallowedByStrictDialectStillParses(t *testing.T) {
	root, diags := parseWithPolicy(t, "f = lambda x: x\n", dialect.Strict)
	assert.True(t, hasKind(diags, diag.DisallowedFeature))
	assign := firstStmt(t, root).(*ast.AssignStmt)
	_, ok := assign.RHS.(*ast.LambdaExpr)
	assert.True(t, ok, "lambda should still be parsed into the AST even when disallowed")
}

func TestBareStarWithoutKeywordOnlyTailIsIllegalUnderStrict(t *testing.T) {
	_, diags := parseWithPolicy(t, "def f(a, *):\n    pass\n", dialect.Strict)
	assert.True(t, hasKind(diags, diag.IllegalParameter))
}

func TestDuplicateParamNameIsIllegal(t *testing.T) {
	_, diags := parseWithPolicy(t, "def f(a, a):\n    pass\n", dialect.Permissive)
	assert.True(t, hasKind(diags, diag.IllegalParameter))
}

func TestNonDefaultParamAfterDefaultIsIllegal(t *testing.T) {
	_, diags := parseWithPolicy(t, "def f(a=1, b):\n    pass\n", dialect.Permissive)
	assert.True(t, hasKind(diags, diag.IllegalParameter))
}

func TestTypedParamsRequireDialectSupport(t *testing.T) {
	_, diags := parseWithPolicy(t, "def f(a: int):\n    pass\n", dialect.Strict)
	assert.True(t, hasKind(diags, diag.DisallowedFeature))

	root, diags := parseWithPolicy(t, "def f(a: int):\n    pass\n", dialect.Permissive)
	assert.Empty(t, diags)
	def := firstStmt(t, root).(*ast.DefStmt)
	pos := def.Params[0].(*ast.PosParam)
	assert.NotNil(t, pos.Type)
}

// ---- Scenario 4: load() pair parsing ----

func TestLoadParsesPlainAndAliasedPairs(t *testing.T) {
	root := parseOK(t, `load("//p:a.bzl", "sym", alias = "other")` + "\n")
	load := firstStmt(t, root).(*ast.LoadStmt)
	assert.Equal(t, "//p:a.bzl", load.Module)
	require.Len(t, load.Pairs, 2)
	assert.Equal(t, ast.LoadPair{Local: "sym", Exported: "sym"}, load.Pairs[0])
	assert.Equal(t, ast.LoadPair{Local: "alias", Exported: "other"}, load.Pairs[1])
}

func TestLoadWithNoSymbolsIsMalformed(t *testing.T) {
	_, diags := parseWithPolicy(t, `load("//p:a.bzl")`+"\n", dialect.Permissive)
	assert.True(t, hasKind(diags, diag.MalformedLoad))
}

// ---- Scenario 5: assignment target legality ----

func TestAssignToLiteralIsIllegal(t *testing.T) {
	_, diags := parseWithPolicy(t, "1 = x\n", dialect.Permissive)
	require.True(t, hasKind(diags, diag.IllegalAssignmentTarget))
	for _, d := range diags {
		if d.Kind == diag.IllegalAssignmentTarget {
			assert.Equal(t, 1, d.Span.Start.Column)
		}
	}
}

func TestAssignToTupleOfIdentifiersIsLegal(t *testing.T) {
	_, diags := parseWithPolicy(t, "a, b = 1, 2\n", dialect.Permissive)
	assert.False(t, hasKind(diags, diag.IllegalAssignmentTarget))
}

func TestAssignToSlicedWithStepIsIllegal(t *testing.T) {
	_, diags := parseWithPolicy(t, "a[1:2:3] = x\n", dialect.Permissive)
	assert.True(t, hasKind(diags, diag.IllegalAssignmentTarget))
}

// ---- Scenario 6: call argument ordering ----

func TestPositionalAfterNamedIsIllegal(t *testing.T) {
	_, diags := parseWithPolicy(t, "f(a=1, 2)\n", dialect.Permissive)
	require.True(t, hasKind(diags, diag.IllegalArgumentOrder))
}

func TestSplatKwargsMustBeLast(t *testing.T) {
	_, diags := parseWithPolicy(t, "f(**a, 1)\n", dialect.Permissive)
	assert.True(t, hasKind(diags, diag.IllegalArgumentOrder))
}

func TestWellOrderedCallHasNoDiagnostics(t *testing.T) {
	_, diags := parseWithPolicy(t, "f(1, 2, a=3, *rest, **kw)\n", dialect.Permissive)
	assert.Empty(t, diags)
}

// ---- Scenario 7: elif/else desugaring (end-to-end shape) ----

func TestElifChainOfThreeDesugarsFully(t *testing.T) {
	root := parseOK(t, "if a:\n    pass\nelif b:\n    pass\nelif c:\n    pass\nelse:\n    pass\n")
	first := firstStmt(t, root).(*ast.IfElseStmt)
	second, ok := first.Else.(*ast.IfElseStmt)
	require.True(t, ok)
	third, ok := second.Else.(*ast.IfElseStmt)
	require.True(t, ok)
	_, ok = third.Else.(*ast.StatementsStmt)
	assert.True(t, ok)
}

// ---- f-strings ----

func TestFStringIdentifierInterpolationAssembles(t *testing.T) {
	root := parseOK(t, `x = f"hi {name}!"` + "\n")
	assign := firstStmt(t, root).(*ast.AssignStmt)
	fstr := assign.RHS.(*ast.FStringExpr)
	require.Len(t, fstr.Fragments, 3)
	assert.Equal(t, "hi ", fstr.Fragments[0].Literal)
	ident, ok := fstr.Fragments[1].Value.(*ast.IdentExpr)
	require.True(t, ok)
	assert.Equal(t, "name", ident.Name)
	assert.Equal(t, "!", fstr.Fragments[2].Literal)
}

func TestFStringComplexInterpolationRejectedUnderStrict(t *testing.T) {
	_, diags := parseWithPolicy(t, `x = f"{a + b}"`+"\n", dialect.Strict)
	assert.True(t, hasKind(diags, diag.DisallowedFeature))
}

func TestFStringComplexInterpolationAllowedUnderPermissive(t *testing.T) {
	_, diags := parseWithPolicy(t, `x = f"{a + b}"`+"\n", dialect.Permissive)
	assert.Empty(t, diags)
}

func TestFStringEmptyInterpolationIsMalformed(t *testing.T) {
	_, diags := parseWithPolicy(t, `x = f"{}"`+"\n", dialect.Permissive)
	assert.True(t, hasKind(diags, diag.MalformedFString))
}

// ---- comprehensions ----

func TestListComprehensionWithMultipleClauses(t *testing.T) {
	root := parseOK(t, "x = [a for a in xs if a > 0 for b in ys]\n")
	assign := firstStmt(t, root).(*ast.AssignStmt)
	comp := assign.RHS.(*ast.ListComprehensionExpr)
	ident := comp.First.Target.(*ast.IdentExpr)
	assert.Equal(t, "a", ident.Name)
	require.Len(t, comp.Rest, 2)
	_, ok := comp.Rest[0].(*ast.IfClause)
	assert.True(t, ok)
	_, ok = comp.Rest[1].(*ast.ForClause)
	assert.True(t, ok)
}

func TestDictComprehension(t *testing.T) {
	root := parseOK(t, "x = {k: v for k, v in items}\n")
	assign := firstStmt(t, root).(*ast.AssignStmt)
	comp := assign.RHS.(*ast.DictComprehensionExpr)
	assert.NotNil(t, comp.KeyHead)
	assert.NotNil(t, comp.ValueHead)
}

// ---- subscripting ----

func TestSliceWithAllThreeParts(t *testing.T) {
	root := parseOK(t, "x = a[1:2:3]\n")
	assign := firstStmt(t, root).(*ast.AssignStmt)
	slice := assign.RHS.(*ast.SliceExpr)
	assert.NotNil(t, slice.Start)
	assert.NotNil(t, slice.Stop)
	assert.NotNil(t, slice.Step)
}

func TestTwoKeyIndexIsIndex2(t *testing.T) {
	root := parseOK(t, "x = a[1, 2]\n")
	assign := firstStmt(t, root).(*ast.AssignStmt)
	_, ok := assign.RHS.(*ast.Index2Expr)
	assert.True(t, ok)
}

// ---- typed assignments ----

func TestTypedAssignmentGatedByDialect(t *testing.T) {
	_, diags := parseWithPolicy(t, "x: int = 1\n", dialect.Strict)
	assert.True(t, hasKind(diags, diag.DisallowedFeature))

	root, diags := parseWithPolicy(t, "x: int = 1\n", dialect.Permissive)
	assert.Empty(t, diags)
	assign := firstStmt(t, root).(*ast.AssignStmt)
	assert.NotNil(t, assign.Type)
}

// ---- whole-module span containment ----

func TestRootSpanContainsAllStatements(t *testing.T) {
	root := parseOK(t, "x = 1\ny = 2\n")
	require.Len(t, root.Stmts, 2)
	for _, s := range root.Stmts {
		assert.True(t, root.GetSpan().Contains(s.GetSpan()))
	}
}

// ---- fail-fast diagnostic channel ----

func TestSecondStatementIsNeverParsedAfterAFailure(t *testing.T) {
	root, diags := parseWithPolicy(t, "1 = x\n2 = y\n", dialect.Permissive)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.IllegalAssignmentTarget, diags[0].Kind)
	require.Len(t, root.Stmts, 1, "parsing must stop at the first failing statement")
}

func TestFailFastAcrossNestedSuiteStatements(t *testing.T) {
	_, diags := parseWithPolicy(t, "def f():\n    1 = x\n    2 = y\nq = 3\n", dialect.Permissive)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.IllegalAssignmentTarget, diags[0].Kind)
}

func TestParseStringOnLexErrorReturnsSingleDiagnosticAndNoParse(t *testing.T) {
	root, diags := ParseString("x = \"unterminated\n", "test.star", dialect.Permissive, "trace")
	require.Len(t, diags, 1)
	assert.Nil(t, root)
}

// ---- ParseFile ----

func TestParseFileReadsAndParsesSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.star")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	root, diags := ParseFile(path, dialect.Permissive, "trace")
	require.Empty(t, diags)
	assign := firstStmt(t, root).(*ast.AssignStmt)
	lit := assign.RHS.(*ast.IntLiteral)
	assert.Equal(t, "1", lit.Value.String())
}

func TestParseFileMissingFileYieldsSingleDiagnostic(t *testing.T) {
	root, diags := ParseFile(filepath.Join(t.TempDir(), "missing.star"), dialect.Permissive, "trace")
	require.Len(t, diags, 1)
	assert.Nil(t, root)
}

func TestBigIntLiteralRoundTrips(t *testing.T) {
	root := parseOK(t, "x = 123456789012345678901234567890\n")
	assign := firstStmt(t, root).(*ast.AssignStmt)
	lit := assign.RHS.(*ast.IntLiteral)
	assert.Equal(t, "123456789012345678901234567890", lit.Value.String())
}
