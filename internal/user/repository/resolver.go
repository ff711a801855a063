package repository

import "context"

// AccountResolver adapts a Repository to the lockout guard's login-to-user lookup.
type AccountResolver struct {
	Users Repository
}

// ResolveAccount returns the ID of the user whose username or e-mail matches login.
func (a AccountResolver) ResolveAccount(ctx context.Context, login string) (string, bool, error) {
	u, err := a.Users.GetByLogin(ctx, login)
	if err != nil {
		return "", false, err
	}
	if u == nil {
		return "", false, nil
	}
	return u.ID, true, nil
}
