package tariff

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/expertise-auto/chiffrage/internal/domain"
)

// guardCache compiles tariff rule guard expressions once and reuses the
// programs across resolutions. A guard narrows when a rule applies beyond
// its kind's discriminator; rules without a guard always pass.
type guardCache struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]cel.Program // key: guard expression
}

func newGuardCache() (*guardCache, error) {
	env, err := cel.NewEnv(
		cel.Variable("category", cel.StringType),
		cel.Variable("vehicle_age", cel.DoubleType),
		cel.Variable("distance_km", cel.DoubleType),
		cel.Variable("base_amount", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &guardCache{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// validate compiles an expression and checks it yields a boolean.
func (g *guardCache) validate(expr string) error {
	if expr == "" {
		return nil
	}
	_, err := g.compile(expr)
	return err
}

func (g *guardCache) compile(expr string) (cel.Program, error) {
	ast, issues := g.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile guard: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("guard must return bool, got %s", ast.OutputType())
	}
	return g.env.Program(ast)
}

// matches reports whether the rule's guard accepts the input. A guard
// that fails to compile or evaluate counts as a non-match, never an
// error: the lookup-miss fallback policy absorbs it.
func (g *guardCache) matches(rule *domain.TariffRule, input Input) bool {
	if rule.Guard == "" {
		return true
	}

	g.mu.RLock()
	program, ok := g.programs[rule.Guard]
	g.mu.RUnlock()

	if !ok {
		var err error
		program, err = g.compile(rule.Guard)
		if err != nil {
			slog.Warn("invalid tariff rule guard, treating as non-match",
				"rule_id", rule.ID,
				"error", err,
			)
			return false
		}

		g.mu.Lock()
		g.programs[rule.Guard] = program
		g.mu.Unlock()
	}

	out, _, err := program.Eval(map[string]any{
		"category":    input.Category,
		"vehicle_age": input.VehicleAge,
		"distance_km": input.DistanceKm,
		"base_amount": input.BaseAmount,
	})
	if err != nil {
		slog.Warn("guard evaluation failed, treating as non-match",
			"rule_id", rule.ID,
			"error", err,
		)
		return false
	}

	b, ok := out.(types.Bool)
	return ok && bool(b)
}
