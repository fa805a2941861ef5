package service

import (
	"context"
	"strings"
	"time"

	"ChatCore/tools/errs"
	"ChatCore/tools/security"
)

// Auth turns credentials into validated usernames and answers
// addressability questions from the directory.
type Auth struct {
	opts security.Options
	dir  Directory
}

func NewAuth(opts security.Options, dir Directory) *Auth {
	return &Auth{opts: opts, dir: dir}
}

// ValidateOperation accepts a bare token or a "Bearer <token>" header value.
func (a *Auth) ValidateOperation(_ context.Context, credential string) (string, error) {
	token := strings.TrimSpace(credential)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", errs.ErrUnauthenticated.WrapMsg("missing credential")
	}
	username, err := security.Verify(a.opts, token)
	if err != nil {
		return "", errs.ErrUnauthenticated.WrapMsg("invalid credential", "reason", err.Error())
	}
	return username, nil
}

func (a *Auth) ValidateAddressable(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	return a.dir.Exists(ctx, username)
}

// IssueToken signs a token for an existing user.
func (a *Auth) IssueToken(ctx context.Context, username string) (string, time.Time, error) {
	ok, err := a.ValidateAddressable(ctx, username)
	if err != nil {
		return "", time.Time{}, err
	}
	if !ok {
		return "", time.Time{}, errs.ErrNotFound.WrapMsg("user not found", "username", username)
	}
	token, exp, err := security.Generate(a.opts, username)
	if err != nil {
		return "", time.Time{}, errs.ErrInternal.WrapMsg("sign token", "reason", err.Error())
	}
	return token, exp, nil
}
