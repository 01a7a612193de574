package region

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// Policy is a compiled CEL expression deciding whether a scored region is
// eligible. The expression sees three variables: region (string),
// score (int) and resource_type (string), and must return a bool.
//
//	score >= 3 && !region.startsWith("ap-")
type Policy struct {
	expr    string
	program cel.Program
}

// CompilePolicy compiles expr. An empty expression yields a nil policy,
// which allows every region.
func CompilePolicy(expr string) (*Policy, error) {
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("region", cel.StringType),
		cel.Variable("score", cel.IntType),
		cel.Variable("resource_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile region policy: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("region policy must return bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program for region policy: %w", err)
	}

	return &Policy{expr: expr, program: program}, nil
}

// String returns the source expression.
func (p *Policy) String() string {
	if p == nil {
		return ""
	}
	return p.expr
}

// Allows evaluates the policy for one scored region.
func (p *Policy) Allows(region string, score int, resourceType string) (bool, error) {
	if p == nil {
		return true, nil
	}

	out, _, err := p.program.Eval(map[string]any{
		"region":        region,
		"score":         int64(score),
		"resource_type": resourceType,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate region policy for %s: %w", region, err)
	}
	if out.Type() != types.BoolType {
		return false, fmt.Errorf("region policy returned %s for %s", out.Type().TypeName(), region)
	}
	return out.Value().(bool), nil
}
