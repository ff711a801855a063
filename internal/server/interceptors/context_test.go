package interceptors

import (
	"context"
	"testing"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "ADMIN", "session-1")

	if v, ok := GetUserID(ctx); !ok || v != "user-1" {
		t.Errorf("GetUserID = %q, %v; want user-1, true", v, ok)
	}
	if v, ok := GetRole(ctx); !ok || v != "ADMIN" {
		t.Errorf("GetRole = %q, %v; want ADMIN, true", v, ok)
	}
	if v, ok := GetSessionID(ctx); !ok || v != "session-1" {
		t.Errorf("GetSessionID = %q, %v; want session-1, true", v, ok)
	}
}

func TestGetters_ReturnFalseWhenNotSet(t *testing.T) {
	ctx := context.Background()
	if v, ok := GetUserID(ctx); ok || v != "" {
		t.Errorf("GetUserID = %q, %v; want empty, false", v, ok)
	}
	if v, ok := GetRole(ctx); ok || v != "" {
		t.Errorf("GetRole = %q, %v; want empty, false", v, ok)
	}
	if v, ok := GetSessionID(ctx); ok || v != "" {
		t.Errorf("GetSessionID = %q, %v; want empty, false", v, ok)
	}
}

func TestWithIdentity_OverwritesPrevious(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "STUDENT", "session-1")
	ctx = WithIdentity(ctx, "user-2", "ADMIN", "session-2")
	if v, _ := GetUserID(ctx); v != "user-2" {
		t.Errorf("user_id = %q, want user-2", v)
	}
	if v, _ := GetRole(ctx); v != "ADMIN" {
		t.Errorf("role = %q, want ADMIN", v)
	}
}
