package engine

import (
	"context"
	"errors"
	"testing"

	"clavionx/backend/internal/policy/domain"
	"clavionx/backend/internal/policy/repository"
	userdomain "clavionx/backend/internal/user/domain"
)

// mockPolicyRepo implements repository.Repository for tests.
type mockPolicyRepo struct {
	policies []*domain.Policy
	err      error
}

var _ repository.Repository = (*mockPolicyRepo)(nil)

func (m *mockPolicyRepo) ListEnabled(ctx context.Context) ([]*domain.Policy, error) {
	return m.policies, m.err
}

func newEvaluator(t *testing.T, repo repository.Repository) *OPAEvaluator {
	t.Helper()
	e, err := NewOPAEvaluator(context.Background(), repo)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return e
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	e := newEvaluator(t, nil)
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_HasPermission(t *testing.T) {
	e := newEvaluator(t, nil)
	ctx := context.Background()
	tests := []struct {
		role, permission string
		want             bool
	}{
		{"SUPER_ADMIN", PermUserManageAll, true},
		{"SUPER_ADMIN", PermAuditView, true},
		{"ADMIN", PermUserManageAll, false},
		{"ADMIN", "COURSE_MANAGE_ALL", true},
		{"TEACHER", "GRADE_MANAGE_OWN", true},
		{"STUDENT", "GRADE_MANAGE_OWN", false},
		{"GUEST", "REGISTRATION_REQUEST", true},
		{"NOBODY", "COURSE_VIEW", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := e.HasPermission(ctx, tt.role, tt.permission)
		if err != nil {
			t.Fatalf("HasPermission(%q, %q): %v", tt.role, tt.permission, err)
		}
		if got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.permission, got, tt.want)
		}
	}
}

func TestOPAEvaluator_EvaluateTwoFactor(t *testing.T) {
	e := newEvaluator(t, nil)
	ctx := context.Background()
	tests := []struct {
		name    string
		user    userdomain.User
		trusted bool
		want    TwoFactorDecision
	}{
		{"disabled", userdomain.User{Role: userdomain.RoleStudent}, false, TwoFactorDecision{Required: false, RememberAllowed: true}},
		{"enabled untrusted", userdomain.User{Role: userdomain.RoleStudent, TwoFactorEnabled: true}, false, TwoFactorDecision{Required: true, RememberAllowed: true}},
		{"enabled trusted", userdomain.User{Role: userdomain.RoleTeacher, TwoFactorEnabled: true}, true, TwoFactorDecision{Required: false, RememberAllowed: true}},
		{"super admin never remembered", userdomain.User{Role: userdomain.RoleSuperAdmin, TwoFactorEnabled: true}, false, TwoFactorDecision{Required: true, RememberAllowed: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			got, err := e.EvaluateTwoFactor(ctx, &u, tt.trusted)
			if err != nil {
				t.Fatalf("EvaluateTwoFactor: %v", err)
			}
			if got != tt.want {
				t.Errorf("EvaluateTwoFactor = %+v, want %+v", got, tt.want)
			}
		})
	}
	if _, err := e.EvaluateTwoFactor(ctx, nil, false); err == nil {
		t.Error("nil user should fail")
	}
}

func TestOPAEvaluator_OperatorPolicyExtendsRules(t *testing.T) {
	repo := &mockPolicyRepo{policies: []*domain.Policy{{
		Name:    "admins.rego",
		Enabled: true,
		Rules: `package clavionx.two_factor

required if input.user.role == "ADMIN"
`,
	}}}
	e := newEvaluator(t, repo)
	got, err := e.EvaluateTwoFactor(context.Background(), &userdomain.User{Role: userdomain.RoleAdmin}, true)
	if err != nil {
		t.Fatalf("EvaluateTwoFactor: %v", err)
	}
	if !got.Required {
		t.Error("operator rule should force two-factor for admins")
	}
}

func TestOPAEvaluator_BrokenOperatorPolicyFallsBack(t *testing.T) {
	repo := &mockPolicyRepo{policies: []*domain.Policy{{Name: "broken.rego", Enabled: true, Rules: "package broken\n\nallow if {"}}}
	e := newEvaluator(t, repo)
	ok, err := e.HasPermission(context.Background(), "SUPER_ADMIN", PermAuditView)
	if err != nil || !ok {
		t.Errorf("HasPermission after broken operator policy = %v, %v; want true", ok, err)
	}
}

func TestOPAEvaluator_RepoErrorUsesBuiltins(t *testing.T) {
	e := newEvaluator(t, &mockPolicyRepo{err: errors.New("disk gone")})
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
