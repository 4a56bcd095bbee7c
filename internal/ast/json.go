package ast

import (
	"math/big"

	"buildlang/internal/span"
)

// NodeToMap converts an AST node into a tagged-union map suitable for JSON
// serialization: every node carries a "kind" field and a "span" field.
func NodeToMap(node Node) map[string]interface{} {
	if node == nil {
		return nil
	}

	switch n := node.(type) {

	// ---- Statements ----
	case *StatementsStmt:
		return m("StatementsStmt", n.Span, "stmts", stmtSlice(n.Stmts))
	case *ExprStmt:
		return m("ExprStmt", n.Span, "value", NodeToMap(n.Value))
	case *ReturnStmt:
		result := m("ReturnStmt", n.Span)
		if n.Value != nil {
			result["value"] = NodeToMap(n.Value)
		}
		return result
	case *BreakStmt:
		return m("BreakStmt", n.Span)
	case *ContinueStmt:
		return m("ContinueStmt", n.Span)
	case *PassStmt:
		return m("PassStmt", n.Span)
	case *AssignStmt:
		result := m("AssignStmt", n.Span,
			"lhs", NodeToMap(n.LHS),
			"op", n.Op.String(),
			"rhs", NodeToMap(n.RHS))
		if n.Type != nil {
			result["type"] = NodeToMap(n.Type)
		}
		return result
	case *IfStmt:
		return m("IfStmt", n.Span,
			"cond", NodeToMap(n.Cond),
			"then", NodeToMap(n.Then))
	case *IfElseStmt:
		return m("IfElseStmt", n.Span,
			"cond", NodeToMap(n.Cond),
			"then", NodeToMap(n.Then),
			"else", NodeToMap(n.Else))
	case *ForStmt:
		return m("ForStmt", n.Span,
			"target", NodeToMap(n.Target),
			"iter", NodeToMap(n.Iter),
			"body", NodeToMap(n.Body))
	case *DefStmt:
		result := m("DefStmt", n.Span,
			"name", n.Name,
			"params", paramSlice(n.Params),
			"body", NodeToMap(n.Body))
		if n.ReturnType != nil {
			result["returnType"] = NodeToMap(n.ReturnType)
		}
		return result
	case *LoadStmt:
		pairs := make([]interface{}, len(n.Pairs))
		for i, p := range n.Pairs {
			pairs[i] = map[string]interface{}{"local": p.Local, "exported": p.Exported}
		}
		return m("LoadStmt", n.Span, "module", n.Module, "pairs", pairs)

	// ---- Expressions ----
	case *IdentExpr:
		return m("IdentExpr", n.Span, "name", n.Name)
	case *IntLiteral:
		return m("IntLiteral", n.Span, "value", intStr(n.Value))
	case *FloatLiteral:
		return m("FloatLiteral", n.Span, "value", n.Value)
	case *StringLiteral:
		return m("StringLiteral", n.Span, "value", n.Value)
	case *FStringExpr:
		frags := make([]interface{}, len(n.Fragments))
		for i, f := range n.Fragments {
			if f.Value != nil {
				frags[i] = map[string]interface{}{"kind": "interp", "value": NodeToMap(f.Value)}
			} else {
				frags[i] = map[string]interface{}{"kind": "literal", "literal": f.Literal}
			}
		}
		return m("FStringExpr", n.Span, "fragments", frags)
	case *TupleExpr:
		return m("TupleExpr", n.Span, "elems", exprSlice(n.Elems))
	case *ListExpr:
		return m("ListExpr", n.Span, "elems", exprSlice(n.Elems))
	case *DictExpr:
		entries := make([]interface{}, len(n.Entries))
		for i, e := range n.Entries {
			entries[i] = map[string]interface{}{"key": NodeToMap(e.Key), "value": NodeToMap(e.Value)}
		}
		return m("DictExpr", n.Span, "entries", entries)
	case *ListComprehensionExpr:
		return m("ListComprehensionExpr", n.Span,
			"head", NodeToMap(n.Head),
			"first", NodeToMap(&n.First),
			"rest", clauseSlice(n.Rest))
	case *DictComprehensionExpr:
		return m("DictComprehensionExpr", n.Span,
			"keyHead", NodeToMap(n.KeyHead),
			"valueHead", NodeToMap(n.ValueHead),
			"first", NodeToMap(&n.First),
			"rest", clauseSlice(n.Rest))
	case *DotExpr:
		return m("DotExpr", n.Span, "object", NodeToMap(n.Object), "name", n.Name)
	case *CallExpr:
		return m("CallExpr", n.Span, "callee", NodeToMap(n.Callee), "args", argSlice(n.Args))
	case *IndexExpr:
		return m("IndexExpr", n.Span, "object", NodeToMap(n.Object), "index", NodeToMap(n.Index))
	case *Index2Expr:
		return m("Index2Expr", n.Span,
			"object", NodeToMap(n.Object),
			"first", NodeToMap(n.First),
			"second", NodeToMap(n.Second))
	case *SliceExpr:
		result := m("SliceExpr", n.Span, "object", NodeToMap(n.Object))
		if n.Start != nil {
			result["start"] = NodeToMap(n.Start)
		}
		if n.Stop != nil {
			result["stop"] = NodeToMap(n.Stop)
		}
		if n.Step != nil {
			result["step"] = NodeToMap(n.Step)
		}
		return result
	case *OpExpr:
		return m("OpExpr", n.Span,
			"op", n.Op.String(),
			"left", NodeToMap(n.Left),
			"right", NodeToMap(n.Right))
	case *NotExpr:
		return m("NotExpr", n.Span, "operand", NodeToMap(n.Operand))
	case *PlusExpr:
		return m("PlusExpr", n.Span, "operand", NodeToMap(n.Operand))
	case *MinusExpr:
		return m("MinusExpr", n.Span, "operand", NodeToMap(n.Operand))
	case *BitNotExpr:
		return m("BitNotExpr", n.Span, "operand", NodeToMap(n.Operand))
	case *CondExpr:
		return m("CondExpr", n.Span,
			"then", NodeToMap(n.Then),
			"test", NodeToMap(n.Test),
			"else", NodeToMap(n.Else))
	case *LambdaExpr:
		return m("LambdaExpr", n.Span, "params", paramSlice(n.Params), "body", NodeToMap(n.Body))

	// ---- Clauses ----
	case *ForClause:
		return m("ForClause", n.Span, "target", NodeToMap(n.Target), "iter", NodeToMap(n.Iter))
	case *IfClause:
		return m("IfClause", n.Span, "test", NodeToMap(n.Test))

	// ---- Parameters ----
	case *PosParam:
		result := m("PosParam", n.Span, "name", n.Name)
		if n.Type != nil {
			result["type"] = NodeToMap(n.Type)
		}
		return result
	case *PosDefaultParam:
		result := m("PosDefaultParam", n.Span, "name", n.Name, "default", NodeToMap(n.Default))
		if n.Type != nil {
			result["type"] = NodeToMap(n.Type)
		}
		return result
	case *ArgsParam:
		result := m("ArgsParam", n.Span, "name", n.Name)
		if n.Type != nil {
			result["type"] = NodeToMap(n.Type)
		}
		return result
	case *BareStarParam:
		return m("BareStarParam", n.Span)
	case *KwArgsParam:
		result := m("KwArgsParam", n.Span, "name", n.Name)
		if n.Type != nil {
			result["type"] = NodeToMap(n.Type)
		}
		return result

	// ---- Arguments ----
	case *PositionalArg:
		return m("PositionalArg", n.Span, "value", NodeToMap(n.Value))
	case *NamedArg:
		return m("NamedArg", n.Span, "name", n.Name, "value", NodeToMap(n.Value))
	case *SplatArg:
		return m("SplatArg", n.Span, "value", NodeToMap(n.Value))
	case *SplatKwArg:
		return m("SplatKwArg", n.Span, "value", NodeToMap(n.Value))

	default:
		return map[string]interface{}{"kind": "Unknown"}
	}
}

// ---- helpers ----

func m(kind string, s span.Span, kvs ...interface{}) map[string]interface{} {
	result := map[string]interface{}{
		"kind": kind,
		"span": spanToMap(s),
	}
	for i := 0; i+1 < len(kvs); i += 2 {
		key := kvs[i].(string)
		result[key] = kvs[i+1]
	}
	return result
}

func spanToMap(s span.Span) map[string]interface{} {
	return map[string]interface{}{
		"start": map[string]interface{}{
			"offset": s.Start.Offset,
			"line":   s.Start.Line,
			"column": s.Start.Column,
		},
		"end": map[string]interface{}{
			"offset": s.End.Offset,
			"line":   s.End.Line,
			"column": s.End.Column,
		},
	}
}

func intStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func stmtSlice(stmts []Stmt) []interface{} {
	result := make([]interface{}, len(stmts))
	for i, s := range stmts {
		result[i] = NodeToMap(s)
	}
	return result
}

func exprSlice(exprs []Expr) []interface{} {
	result := make([]interface{}, len(exprs))
	for i, e := range exprs {
		result[i] = NodeToMap(e)
	}
	return result
}

func paramSlice(params []Param) []interface{} {
	result := make([]interface{}, len(params))
	for i, p := range params {
		result[i] = NodeToMap(p)
	}
	return result
}

func argSlice(args []Argument) []interface{} {
	result := make([]interface{}, len(args))
	for i, a := range args {
		result[i] = NodeToMap(a)
	}
	return result
}

func clauseSlice(clauses []Clause) []interface{} {
	result := make([]interface{}, len(clauses))
	for i, c := range clauses {
		result[i] = NodeToMap(c)
	}
	return result
}
