package service

import (
	"context"
	"strings"

	"github.com/golang/glog"

	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/mutate"
)

// Auth signs users in and out.
type Auth struct {
	env *Env
}

// Login exchanges credentials for a session token and stores it.
func (a *Auth) Login(ctx context.Context, input model.LoginInput) error {
	input.Email = strings.TrimSpace(input.Email)
	if err := input.Validate(); err != nil {
		return a.env.fail(err, "auth.loginError")
	}
	s, err := mutate.Dispatch(ctx, a.env.Dispatch, mutate.Mutation[model.Session]{
		Operation: opLogin,
		Vars:      vars("userLoginData", input),
		Field:     "login",
	})
	if err != nil {
		return a.env.fail(err, "auth.loginError")
	}
	if err := a.env.Gate.SetToken(s.Token); err != nil {
		glog.Warningf("auth: persisting session: %v", err)
	}
	a.env.success("auth.loginSuccess")
	return nil
}

// SignUp creates an account. It does not sign in.
func (a *Auth) SignUp(ctx context.Context, input model.SignUpInput) error {
	input.Email = strings.TrimSpace(input.Email)
	if err := input.Validate(); err != nil {
		return a.env.fail(err, "auth.signUpError")
	}
	_, err := mutate.Dispatch(ctx, a.env.Dispatch, mutate.Mutation[model.Deleted]{
		Operation: opSignUp,
		Vars:      vars("createUserData", input),
		Field:     "signUp",
	})
	if err != nil {
		return a.env.fail(err, "auth.signUpError")
	}
	a.env.success("auth.signUpSuccess")
	return nil
}

// ResetPassword requests a password reset email.
func (a *Auth) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := model.ValidateEmail(email); err != nil {
		return a.env.fail(err, "auth.resetError")
	}
	_, err := mutate.Dispatch(ctx, a.env.Dispatch, mutate.Mutation[bool]{
		Operation: opResetPassword,
		Vars:      vars("email", email),
		Field:     "resetPassword",
	})
	if err != nil {
		return a.env.fail(err, "auth.resetError")
	}
	a.env.success("auth.resetSuccess")
	return nil
}

// Logout clears the session. The cache is reset through the gate
// subscription installed by New.
func (a *Auth) Logout() error {
	if err := a.env.Gate.SetToken(""); err != nil {
		return err
	}
	a.env.success("auth.logoutSuccess")
	return nil
}
