package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/ziadkadry99/rvt-studio/internal/audit"
	"github.com/ziadkadry99/rvt-studio/internal/auth"
	"github.com/ziadkadry99/rvt-studio/internal/config"
	"github.com/ziadkadry99/rvt-studio/internal/db"
	"github.com/ziadkadry99/rvt-studio/internal/logging"
	"github.com/ziadkadry99/rvt-studio/internal/pocketbase"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `rvtstudio init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	logging.Setup(verbose, string(cfg.LogFormat))
	return cfg, nil
}

// newClient returns a backend client for cfg carrying token, which may be
// empty for anonymous access.
func newClient(cfg *config.Config, token string) *pocketbase.Client {
	return pocketbase.New(cfg.BackendURL,
		pocketbase.WithTimeout(cfg.RequestTimeout()),
		pocketbase.WithToken(token),
	)
}

// session is the signed-in context most commands run in.
type session struct {
	cfg    *config.Config
	creds  *auth.Credentials
	client *pocketbase.Client
}

// userID returns the signed-in user's record id.
func (s *session) userID() string {
	if s.creds.Token == "" {
		return ""
	}
	if s.creds.User != nil {
		return s.creds.User.ID
	}
	if claims, err := auth.ParseToken(s.creds.Token); err == nil {
		return claims.ID
	}
	return ""
}

func (s *session) actor(context.Context) string { return s.userID() }

// requireSession loads the config and the stored credentials. Expired or
// missing credentials are reported with a hint to sign in again.
func requireSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	creds, err := auth.Current()
	if errors.Is(err, auth.ErrTokenExpired) {
		return nil, fmt.Errorf("session expired: run 'rvtstudio login' again")
	}
	if err != nil {
		return nil, err
	}
	backend := cfg.BackendURL
	if creds.BackendURL != "" && creds.BackendURL != backend {
		return nil, fmt.Errorf("signed in to %s but config points at %s: run 'rvtstudio login' again", creds.BackendURL, backend)
	}
	return &session{cfg: cfg, creds: creds, client: newClient(cfg, creds.Token)}, nil
}

// openDatabase opens the local SQLite database under cfg.DataDir.
func openDatabase(cfg *config.Config) (*db.DB, error) {
	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return database, nil
}

// newRecorder returns an audit recorder attributing entries to s's user.
func (s *session) newRecorder(database *db.DB) *audit.Recorder {
	return audit.NewRecorder(audit.NewStore(database), s.actor)
}

// prompt asks for a value, masking it when secret is set.
func prompt(label, def string, secret bool) (string, error) {
	p := promptui.Prompt{Label: label, Default: def}
	if secret {
		p.Mask = '*'
	}
	v, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("%s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(v), nil
}

// confirm asks a yes/no question. yes skips the prompt.
func confirm(label string, yes bool) bool {
	if yes {
		return true
	}
	p := promptui.Prompt{Label: label, IsConfirm: true}
	_, err := p.Run()
	return err == nil
}

// printValidation prints per-field validation messages.
func printValidation(err error) {
	var verr *auth.ValidationError
	if !errors.As(err, &verr) {
		return
	}
	for field, msg := range verr.Fields {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// optionalSession is requireSession for commands that also work
// anonymously. The returned session has empty credentials when nobody is
// signed in.
func optionalSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	creds, err := auth.Current()
	if err != nil || creds.BackendURL != cfg.BackendURL {
		return &session{cfg: cfg, creds: &auth.Credentials{}, client: newClient(cfg, "")}, nil
	}
	return &session{cfg: cfg, creds: creds, client: newClient(cfg, creds.Token)}, nil
}
