// Package dialect defines the policy object consulted by the parser to
// allow or reject dialect-sensitive features: typed parameters, return
// types, typed assignments, lambdas, the lone keyword-only '*' marker, and
// non-identifier f-string interpolation. The parser never caches a
// predicate's answer: every gated production reads the field afresh from
// the parser's own copy of the Policy, taken when the parser is created,
// so changes a caller makes to its Policy value after that point do not
// reach a parse already under way.
package dialect

// Policy is a small, data-only object: every predicate is a plain field
// read, never a method with side effects. Implementations that need to
// load policy from configuration (see internal/config) populate a Policy
// value and hand it to the parser; the parser treats it as opaque data.
type Policy struct {
	Name string

	// AllowTypedParams permits `: type` annotations on def/lambda
	// parameters.
	AllowTypedParams bool
	// AllowReturnTypes permits `-> type` on def declarations.
	AllowReturnTypes bool
	// AllowTypedAssignments permits `x: type = value` at statement level.
	AllowTypedAssignments bool
	// AllowLambda permits the `lambda` expression form at all.
	AllowLambda bool
	// AllowLoneStar permits a bare `*` parameter marker with no
	// following keyword-only parameter (normally illegal).
	AllowLoneStar bool
	// AllowComplexFStringInterpolation permits f-string interpolation
	// fragments to hold arbitrary expressions; when false, every
	// interpolation fragment must be a bare identifier.
	AllowComplexFStringInterpolation bool
}

// Strict is the conservative build-rule dialect: no type system, no
// lambdas, no lone '*', identifier-only f-string interpolation. This is
// the dialect a build-rule language (no open-ended computation) wants.
var Strict = Policy{
	Name:                             "strict",
	AllowTypedParams:                 false,
	AllowReturnTypes:                 false,
	AllowTypedAssignments:            false,
	AllowLambda:                      false,
	AllowLoneStar:                    false,
	AllowComplexFStringInterpolation: false,
}

// Permissive is the general embedded-scripting dialect: every
// dialect-gated feature is allowed.
var Permissive = Policy{
	Name:                             "permissive",
	AllowTypedParams:                 true,
	AllowReturnTypes:                 true,
	AllowTypedAssignments:            true,
	AllowLambda:                      true,
	AllowLoneStar:                    true,
	AllowComplexFStringInterpolation: true,
}

// ByName resolves a named preset. The zero value and false are returned
// for an unknown name.
func ByName(name string) (Policy, bool) {
	switch name {
	case "strict":
		return Strict, true
	case "permissive":
		return Permissive, true
	default:
		return Policy{}, false
	}
}
