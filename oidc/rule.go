package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"recipe-api/auth"

	log "github.com/sirupsen/logrus"
)

var (
	ErrRuleCompile = errors.New("access rule does not compile")
	ErrRuleRun     = errors.New("access rule failed")
	ErrRuleResult  = errors.New("access rule did not yield a bool")
)

// AccessRule is the Tengo expression of a provider deciding whether a mapped
// identity may log in. The script sees the claims as map `user` and the
// provider name as `provider`, the `text` and `times` modules are imported.
type AccessRule struct {
	provider string
	source   string
	compiled *tengo.Compiled
}

func compileAccessRule(provider, source string) (*AccessRule, error) {
	script := tengo.NewScript([]byte(fmt.Sprintf(`
		text := import("text")
		times := import("times")
		__allow__ := (%s)
	`, source)))
	script.SetImports(stdlib.GetModuleMap("text", "times"))
	if err := script.Add("user", map[string]any{}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleCompile, err)
	}
	if err := script.Add("provider", provider); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleCompile, err)
	}
	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleCompile, err)
	}
	return &AccessRule{provider: provider, source: source, compiled: compiled}, nil
}

func (r *AccessRule) String() string {
	return r.source
}

// Check returns nil when the rule allows the claims. Otherwise the error wraps
// auth.ErrAccessDenied, and ErrRuleRun or ErrRuleResult when the rule itself broke.
func (r *AccessRule) Check(ctx context.Context, claims *auth.Claims) error {
	logger := log.WithField("provider", r.provider).
		WithField("rule", r.source).
		WithField("subject", claims.Subject)

	allowed, err := r.eval(ctx, claims.AsMap())
	if err != nil {
		logger.WithError(err).Error("Access rule could not be evaluated")
		return fmt.Errorf("%w: %w", auth.ErrAccessDenied, err)
	}
	if !allowed {
		logger.Info("Login denied by access rule")
		return fmt.Errorf("%w: %s may not log in via %s", auth.ErrAccessDenied, describe(claims), r.provider)
	}
	return nil
}

// eval runs a clone of the compiled script, so concurrent logins do not share state
func (r *AccessRule) eval(ctx context.Context, user map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRuleRun, err)
	}
	cloned := r.compiled.Clone()
	if err := cloned.Set("user", user); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRuleRun, err)
	}
	if err := cloned.RunContext(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRuleRun, err)
	}
	v := cloned.Get("__allow__")
	if v == nil {
		return false, ErrRuleResult
	}
	allowed, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %s", ErrRuleResult, v.ValueType())
	}
	return allowed, nil
}

func describe(claims *auth.Claims) string {
	if claims.Email != "" {
		return claims.Email
	}
	return claims.Subject
}
