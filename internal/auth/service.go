package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
)

// Service performs account operations against the backend.
type Service struct {
	client *pocketbase.Client
}

// NewService creates a Service. Calls that act on the signed-in user need
// a client carrying that user's token.
func NewService(client *pocketbase.Client) *Service {
	return &Service{client: client}
}

// SignIn validates form and signs in with email and password.
func (s *Service) SignIn(ctx context.Context, form SignInForm) (*Session, error) {
	if err := Validate(form); err != nil {
		return nil, err
	}
	res, err := s.client.AuthWithPassword(ctx, UsersCollection, strings.TrimSpace(form.Email), form.Password)
	if err != nil {
		return nil, err
	}
	return newSession(res)
}

// SignUp creates a freemium account and signs it in.
func (s *Service) SignUp(ctx context.Context, form SignUpForm) (*Session, error) {
	if err := Validate(form); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(form.Email)
	_, err := pocketbase.Create[User](ctx, s.client, UsersCollection, map[string]any{
		"username":        form.Username,
		"email":           email,
		"emailVisibility": true,
		"password":        form.Password,
		"passwordConfirm": form.ConfirmPassword,
		"name":            form.Username,
		"subcription":     DefaultSubscription,
	})
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	return s.SignIn(ctx, SignInForm{Email: email, Password: form.Password})
}

// Refresh exchanges the client's token for a fresh session.
func (s *Service) Refresh(ctx context.Context) (*Session, error) {
	res, err := s.client.AuthRefresh(ctx, UsersCollection)
	if err != nil {
		return nil, err
	}
	return newSession(res)
}

// Me returns the user record of id.
func (s *Service) Me(ctx context.Context, id string) (*User, error) {
	return pocketbase.Get[User](ctx, s.client, UsersCollection, id, "")
}

// ProfileResult reports what UpdateProfile did.
type ProfileResult struct {
	User                 *User `json:"record"`
	EmailChangeRequested bool  `json:"emailChangeRequested"`
}

// UpdateProfile applies form to user. A changed email only triggers a
// confirmation mail; otherwise the name is saved.
func (s *Service) UpdateProfile(ctx context.Context, user *User, form ProfileForm) (*ProfileResult, error) {
	if err := Validate(form); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(form.Email)
	if !strings.EqualFold(email, user.Email) {
		if err := s.client.RequestEmailChange(ctx, UsersCollection, email); err != nil {
			return nil, err
		}
		return &ProfileResult{User: user, EmailChangeRequested: true}, nil
	}

	updated, err := pocketbase.Update[User](ctx, s.client, UsersCollection, user.ID, map[string]string{"name": form.Name})
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return &ProfileResult{User: updated}, nil
}

// DeleteAccount removes the user record.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	if err := s.client.Delete(ctx, UsersCollection, id); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return nil
}

func newSession(res *pocketbase.AuthResponse) (*Session, error) {
	var user User
	if err := json.Unmarshal(res.Record, &user); err != nil {
		return nil, fmt.Errorf("decoding user record: %w", err)
	}
	return &Session{Token: res.Token, User: &user}, nil
}
