package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"clavionx/backend/internal/policy/repository"
	userdomain "clavionx/backend/internal/user/domain"
)

// OPAEvaluator evaluates the authorization and two-factor policies with OPA Rego.
// Queries are compiled once and recompiled by Reload.
type OPAEvaluator struct {
	policyRepo repository.Repository

	mu        sync.RWMutex
	authz     rego.PreparedEvalQuery
	twoFactor rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the built-in policies plus any enabled modules from policyRepo (may be nil).
func NewOPAEvaluator(ctx context.Context, policyRepo repository.Repository) (*OPAEvaluator, error) {
	e := &OPAEvaluator{policyRepo: policyRepo}
	if err := e.Reload(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func builtinModules() map[string]string {
	return map[string]string{
		"builtin/authz.rego":      authzPolicy,
		"builtin/two_factor.rego": twoFactorPolicy,
	}
}

// Reload recompiles the policies. Operator modules that fail to load or compile are skipped with a
// log line and the built-in policies stay in force; only a broken built-in policy is an error.
func (e *OPAEvaluator) Reload(ctx context.Context) error {
	modules := builtinModules()
	if e.policyRepo != nil {
		extra, err := e.policyRepo.ListEnabled(ctx)
		if err != nil {
			log.Printf("policy: failed to load operator policies: %v", err)
		}
		for _, p := range extra {
			if p.Enabled && p.Rules != "" {
				modules["operator/"+p.Name] = p.Rules
			}
		}
	}

	compiler, err := ast.CompileModules(modules)
	if err != nil && len(modules) > len(builtinModules()) {
		log.Printf("policy: operator policies rejected, using built-in policies only: %v", err)
		compiler, err = ast.CompileModules(builtinModules())
	}
	if err != nil {
		return fmt.Errorf("compile policies: %w", err)
	}

	authz, err := rego.New(rego.Query(authzQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("prepare authz query: %w", err)
	}
	twoFactor, err := rego.New(rego.Query(twoFactorQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("prepare two-factor query: %w", err)
	}

	e.mu.Lock()
	e.authz, e.twoFactor = authz, twoFactor
	e.mu.Unlock()
	return nil
}

func (e *OPAEvaluator) queries() (rego.PreparedEvalQuery, rego.PreparedEvalQuery) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.authz, e.twoFactor
}

// HasPermission reports whether role grants permission. Unknown roles have no permissions.
func (e *OPAEvaluator) HasPermission(ctx context.Context, role, permission string) (bool, error) {
	authz, _ := e.queries()
	rs, err := authz.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"role":       role,
		"permission": permission,
	}))
	if err != nil {
		return false, fmt.Errorf("eval authz: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, _ := rs[0].Expressions[0].Value.(bool)
	return allowed, nil
}

// EvaluateTwoFactor decides whether the login of user from a device that is (or is not) trusted needs
// a verification code. If evaluation fails the built-in rule is applied in Go and the error returned.
func (e *OPAEvaluator) EvaluateTwoFactor(ctx context.Context, user *userdomain.User, deviceTrusted bool) (TwoFactorDecision, error) {
	if user == nil {
		return TwoFactorDecision{}, errors.New("policy: nil user")
	}
	fallback := TwoFactorDecision{
		Required:        user.TwoFactorEnabled && !deviceTrusted,
		RememberAllowed: user.Role != userdomain.RoleSuperAdmin,
	}
	_, twoFactor := e.queries()
	rs, err := twoFactor.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"user": map[string]interface{}{
			"id":                 user.ID,
			"role":               string(user.Role),
			"two_factor_enabled": user.TwoFactorEnabled,
			"two_factor_method":  string(user.TwoFactorMethod),
			"has_phone":          user.Phone != "",
		},
		"device": map[string]interface{}{
			"trusted": deviceTrusted,
		},
	}))
	if err != nil {
		return fallback, fmt.Errorf("eval two-factor policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fallback, errors.New("policy: two-factor query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return fallback, fmt.Errorf("policy: unexpected two-factor result %T", rs[0].Expressions[0].Value)
	}
	out := fallback
	if v, ok := doc["required"].(bool); ok {
		out.Required = v
	}
	if v, ok := doc["remember_allowed"].(bool); ok {
		out.RememberAllowed = v
	}
	return out, nil
}

// HealthCheck evaluates a fixed permission check against the compiled policies.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	ok, err := e.HasPermission(ctx, string(userdomain.RoleGuest), "COURSE_VIEW_PUBLIC")
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("policy: built-in permission table did not evaluate")
	}
	return nil
}
