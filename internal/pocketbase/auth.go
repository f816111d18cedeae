package pocketbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// AuthResponse is returned by the auth endpoints. Record is left raw so
// callers decode it into their own user type.
type AuthResponse struct {
	Token  string          `json:"token"`
	Record json.RawMessage `json:"record"`
}

func authPath(collection, action string) string {
	return "/api/collections/" + url.PathEscape(collection) + "/" + action
}

// AuthWithPassword signs in against an auth collection and stores the
// returned token on the client.
func (c *Client) AuthWithPassword(ctx context.Context, collection, identity, password string) (*AuthResponse, error) {
	body := map[string]string{
		"identity": identity,
		"password": password,
	}
	var out AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, authPath(collection, "auth-with-password"), nil, body, &out); err != nil {
		return nil, fmt.Errorf("signing in to %s: %w", collection, err)
	}
	c.SetToken(out.Token)
	return &out, nil
}

// AuthRefresh exchanges the current token for a fresh one.
func (c *Client) AuthRefresh(ctx context.Context, collection string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, authPath(collection, "auth-refresh"), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("refreshing %s token: %w", collection, err)
	}
	c.SetToken(out.Token)
	return &out, nil
}

// RequestEmailChange asks the backend to send a confirmation link to newEmail.
func (c *Client) RequestEmailChange(ctx context.Context, collection, newEmail string) error {
	body := map[string]string{"newEmail": newEmail}
	if err := c.doJSON(ctx, http.MethodPost, authPath(collection, "request-email-change"), nil, body, nil); err != nil {
		return fmt.Errorf("requesting email change: %w", err)
	}
	return nil
}

// RequestPasswordReset asks the backend to send a password reset email.
func (c *Client) RequestPasswordReset(ctx context.Context, collection, email string) error {
	body := map[string]string{"email": email}
	if err := c.doJSON(ctx, http.MethodPost, authPath(collection, "request-password-reset"), nil, body, nil); err != nil {
		return fmt.Errorf("requesting password reset: %w", err)
	}
	return nil
}
