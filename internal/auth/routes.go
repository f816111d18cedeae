package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ziadkadry99/rvt-studio/internal/catalog"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
)

// RouteConfig wires the account endpoints.
type RouteConfig struct {
	Client   *pocketbase.Client
	Recorder catalog.ChangeRecorder
	// OnLogout is called with the token of a user who logged out or deleted
	// their account.
	OnLogout func(token string)
}

type sessionResponse struct {
	Token     string    `json:"token"`
	User      *User     `json:"record"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

type meResponse struct {
	User      *User     `json:"record"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Remaining string    `json:"remaining"`
}

// RegisterRoutes mounts the account endpoints under /api/auth.
func RegisterRoutes(r chi.Router, cfg RouteConfig) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", handleLogin(cfg))
		r.Post("/signup", handleSignup(cfg))

		r.Group(func(r chi.Router) {
			r.Use(Require)
			r.Post("/logout", handleLogout(cfg))
			r.Get("/me", handleMe(cfg))
			r.Patch("/profile", handleProfile(cfg))
			r.Delete("/account", handleDeleteAccount(cfg))
		})
	})
}

func userService(cfg RouteConfig, r *http.Request) *Service {
	return NewService(cfg.Client.WithAuth(Token(r.Context())))
}

func handleLogin(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form SignInForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		sess, err := NewService(cfg.Client.WithAuth("")).SignIn(r.Context(), form)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionResponse(sess))
	}
}

func handleSignup(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form SignUpForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		sess, err := NewService(cfg.Client.WithAuth("")).SignUp(r.Context(), form)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newSessionResponse(sess))
	}
}

func handleLogout(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.OnLogout != nil {
			cfg.OnLogout(Token(r.Context()))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMe(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := userService(cfg, r).Me(r.Context(), UserID(r.Context()))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		claims := ClaimsFrom(r.Context())
		writeJSON(w, http.StatusOK, meResponse{
			User:      user,
			ExpiresAt: claims.Expiry(),
			Remaining: claims.Remaining(time.Now()).Round(time.Second).String(),
		})
	}
}

func handleProfile(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form ProfileForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		svc := userService(cfg, r)
		user, err := svc.Me(r.Context(), UserID(r.Context()))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		res, err := svc.UpdateProfile(r.Context(), user, form)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if cfg.Recorder != nil {
			summary := "Updated profile name"
			if res.EmailChangeRequested {
				summary = "Requested email change"
			}
			cfg.Recorder.RecordChange(r.Context(), catalog.Change{
				Action:   "profile_updated",
				RecordID: user.ID,
				Summary:  summary,
			})
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleDeleteAccount(cfg RouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := userService(cfg, r).DeleteAccount(r.Context(), UserID(r.Context())); err != nil {
			writeServiceError(w, err)
			return
		}
		if cfg.OnLogout != nil {
			cfg.OnLogout(Token(r.Context()))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func newSessionResponse(s *Session) sessionResponse {
	out := sessionResponse{Token: s.Token, User: s.User}
	if claims, err := ParseToken(s.Token); err == nil {
		out.ExpiresAt = claims.Expiry()
	}
	return out
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verr.Fields})
		return
	}
	status := pocketbase.StatusOf(err)
	if status == 0 {
		logrus.WithError(err).Error("auth: backend request failed")
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}
