package filter

import (
	"maps"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/s0up4200/godmart/dmart"
)

const defaultCacheSize = 128

// Filter is a compiled boolean expression over a Dmart profile
type Filter struct {
	expression string
	program    *vm.Program
	funcs      map[string]any
}

// CompilerOption configures a Compiler
type CompilerOption func(*Compiler)

// WithCache enables caching of compiled expressions with the specified size
func WithCache(size int) CompilerOption {
	return func(c *Compiler) {
		if size > 0 {
			c.cache = newLRUCache[*Filter](size)
		}
	}
}

// WithCustomFunctions adds custom helper functions
func WithCustomFunctions(funcs map[string]any) CompilerOption {
	return func(c *Compiler) {
		maps.Copy(c.helperFuncs, funcs)
	}
}

// Compiler turns expressions into Filters. It is safe for concurrent use.
type Compiler struct {
	helperFuncs map[string]any
	cache       *lruCache[*Filter]
}

// NewCompiler creates a new expr-based profile compiler
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{
		helperFuncs: make(map[string]any, 16),
	}
	addHelperFunctions(c.helperFuncs)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

var defaultCompiler = NewCompiler(WithCache(defaultCacheSize))

// Compile compiles an expression with the shared caching compiler
func Compile(expression string) (*Filter, error) {
	return defaultCompiler.Compile(expression)
}

// Compile compiles an expression into a Filter. Unknown identifiers are
// rejected here rather than at evaluation time.
func (c *Compiler) Compile(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
		}
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			return cached, nil
		}
	}

	program, err := expr.Compile(expression,
		expr.Env(buildEnvironment(&dmart.Profile{}, c.helperFuncs)),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "failed to compile expression",
			Err:        err,
		}
	}

	f := &Filter{
		expression: expression,
		program:    program,
		funcs:      c.helperFuncs,
	}

	if c.cache != nil {
		c.cache.Put(expression, f)
	}

	return f, nil
}

// Clear removes all cached filters
func (c *Compiler) Clear() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// Size returns the number of cached filters
func (c *Compiler) Size() int {
	if c.cache != nil {
		return c.cache.Len()
	}
	return 0
}

// Expression returns the original expression
func (f *Filter) Expression() string {
	return f.expression
}

// Evaluate runs the filter against a profile
func (f *Filter) Evaluate(profile *dmart.Profile) (bool, error) {
	if profile == nil {
		profile = &dmart.Profile{}
	}

	result, err := expr.Run(f.program, buildEnvironment(profile, f.funcs))
	if err != nil {
		return false, &EvaluationError{
			Expression: f.expression,
			Shortname:  profile.Shortname,
			Err:        err,
		}
	}

	// AsBool at compile time guarantees the type
	return result.(bool), nil
}

// Match is Evaluate with runtime errors treated as no match
func (f *Filter) Match(profile *dmart.Profile) bool {
	ok, err := f.Evaluate(profile)
	return err == nil && ok
}

// addHelperFunctions adds the profile-independent helpers
func addHelperFunctions(env map[string]any) {
	env["contains"] = func(str, substr string) bool {
		return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
	}
	env["startsWith"] = func(str, prefix string) bool {
		return strings.HasPrefix(strings.ToLower(str), strings.ToLower(prefix))
	}
	env["endsWith"] = func(str, suffix string) bool {
		return strings.HasSuffix(strings.ToLower(str), strings.ToLower(suffix))
	}
	env["lower"] = strings.ToLower
	env["upper"] = strings.ToUpper
}

// buildEnvironment exposes the profile fields and profile-bound helpers
func buildEnvironment(profile *dmart.Profile, funcs map[string]any) map[string]any {
	env := make(map[string]any, len(funcs)+20)
	maps.Copy(env, funcs)

	env["Profile"] = profile
	env["Shortname"] = profile.Shortname
	env["Subpath"] = profile.Subpath
	env["Email"] = profile.Email
	env["Msisdn"] = profile.Msisdn
	env["DisplayName"] = profile.GetDisplayName()
	env["Type"] = profile.Type
	env["Language"] = profile.Language
	env["Roles"] = nonNil(profile.Roles)
	env["Groups"] = nonNil(profile.Groups)
	env["IsEmailVerified"] = profile.IsEmailVerified
	env["IsMsisdnVerified"] = profile.IsMsisdnVerified
	env["ForcePasswordChange"] = profile.ForcePasswordChange
	env["Attributes"] = profile.Attributes

	env["hasRole"] = createMembershipFunc(profile.Roles)
	env["inGroup"] = createMembershipFunc(profile.Groups)
	env["can"] = createCanFunc(profile.Permissions)
	env["attr"] = createAttrFunc(profile.Attributes)

	return env
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func createMembershipFunc(values []string) func(string) bool {
	lower := make([]string, len(values))
	for i, v := range values {
		lower[i] = strings.ToLower(v)
	}
	return func(name string) bool {
		return slices.Contains(lower, strings.ToLower(name))
	}
}

// createCanFunc checks an action against a permission key of the form
// "space:subpath:resource_type"
func createCanFunc(permissions map[string]dmart.Permission) func(string, string) bool {
	return func(key, action string) bool {
		perm, ok := permissions[key]
		if !ok {
			return false
		}
		return slices.Contains(perm.AllowedActions, action)
	}
}

func createAttrFunc(attributes map[string]any) func(string) any {
	return func(key string) any {
		return attributes[key]
	}
}
