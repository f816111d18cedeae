package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/rvt-studio/internal/audit"
	"github.com/ziadkadry99/rvt-studio/internal/auth"
	"github.com/ziadkadry99/rvt-studio/internal/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the catalog backend",
	Long: `Signs in with email and password and stores the session token in
~/.rvtstudio/credentials.json. Missing values are prompted for.`,
	RunE: runLogin,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create a freemium account and sign in",
	RunE:  runSignup,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.Clear(); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the signed-in user and how long the session stays valid",
	RunE:  runStatus,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update your name and email",
	Long: `Without flags, prints the profile. --name renames the account; a
different --email sends a confirmation mail to the new address instead.`,
	RunE: runProfile,
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password (prompted when omitted)")
	signupCmd.Flags().String("username", "", "username")
	signupCmd.Flags().String("email", "", "account email")
	profileCmd.Flags().String("name", "", "new display name")
	profileCmd.Flags().String("email", "", "new email address")
	profileCmd.Flags().Bool("delete", false, "delete the account")
	profileCmd.Flags().Bool("yes", false, "skip the confirmation prompt")

	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, statusCmd, profileCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if email == "" {
		if email, err = prompt("Email", "", false); err != nil {
			return err
		}
	}
	if password == "" {
		if password, err = prompt("Password", "", true); err != nil {
			return err
		}
	}

	svc := auth.NewService(newClient(cfg, ""))
	sess, err := svc.SignIn(cmd.Context(), auth.SignInForm{Email: email, Password: password})
	if err != nil {
		printValidation(err)
		return fmt.Errorf("sign in failed: %w", err)
	}
	return saveSession(cfg, sess)
}

func runSignup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	username, _ := cmd.Flags().GetString("username")
	email, _ := cmd.Flags().GetString("email")
	if username == "" {
		if username, err = prompt("Username", "", false); err != nil {
			return err
		}
	}
	if email == "" {
		if email, err = prompt("Email", "", false); err != nil {
			return err
		}
	}
	password, err := prompt("Password", "", true)
	if err != nil {
		return err
	}
	confirmPassword, err := prompt("Confirm password", "", true)
	if err != nil {
		return err
	}

	svc := auth.NewService(newClient(cfg, ""))
	sess, err := svc.SignUp(cmd.Context(), auth.SignUpForm{
		Username:        username,
		Email:           email,
		Password:        password,
		ConfirmPassword: confirmPassword,
	})
	if err != nil {
		printValidation(err)
		return fmt.Errorf("sign up failed: %w", err)
	}
	return saveSession(cfg, sess)
}

func saveSession(cfg *config.Config, sess *auth.Session) error {
	if err := auth.Save(&auth.Credentials{
		BackendURL: cfg.BackendURL,
		Token:      sess.Token,
		User:       sess.User,
	}); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s (%s).\n", sess.User.DisplayName(), sess.User.Email)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	creds, err := auth.Current()
	if errors.Is(err, auth.ErrNotLoggedIn) {
		fmt.Println("Not signed in.")
		return nil
	}
	if err != nil && !errors.Is(err, auth.ErrTokenExpired) {
		return err
	}

	path, _ := auth.CredentialPath()
	fmt.Printf("Credentials file: %s\n", path)
	fmt.Printf("Backend:          %s\n", creds.BackendURL)
	if u := creds.User; u != nil {
		fmt.Printf("User:             %s <%s>\n", u.DisplayName(), u.Email)
		fmt.Printf("Subscription:     %s\n", u.Tier())
	}

	claims, perr := auth.ParseToken(creds.Token)
	if perr != nil {
		return perr
	}
	now := time.Now()
	fmt.Printf("Expires:          %s\n", claims.Expiry().Local().Format("Jan 2, 2006 15:04"))
	if claims.Expired(now) {
		fmt.Println("Status:           expired, run 'rvtstudio login'")
	} else {
		fmt.Printf("Status:           valid for %s\n", claims.Remaining(now).Round(time.Minute))
	}
	return nil
}

func runProfile(cmd *cobra.Command, args []string) error {
	s, err := requireSession()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc := auth.NewService(s.client)

	user, err := svc.Me(ctx, s.userID())
	if err != nil {
		return fmt.Errorf("loading profile: %w", err)
	}

	if del, _ := cmd.Flags().GetBool("delete"); del {
		yes, _ := cmd.Flags().GetBool("yes")
		if !confirm(fmt.Sprintf("Delete account %s permanently", user.Email), yes) {
			fmt.Println("Aborted.")
			return nil
		}
		if err := svc.DeleteAccount(ctx, user.ID); err != nil {
			return err
		}
		fmt.Println("Account deleted.")
		return auth.Clear()
	}

	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	if name == "" && email == "" {
		fmt.Printf("Name:         %s\n", user.Name)
		fmt.Printf("Username:     %s\n", user.Username)
		fmt.Printf("Email:        %s\n", user.Email)
		fmt.Printf("Verified:     %t\n", user.Verified)
		fmt.Printf("Subscription: %s\n", user.Tier())
		return nil
	}
	if name == "" {
		name = user.Name
	}
	if email == "" {
		email = user.Email
	}

	res, err := svc.UpdateProfile(ctx, user, auth.ProfileForm{Name: name, Email: email})
	if err != nil {
		printValidation(err)
		return err
	}
	if err := recordProfile(ctx, s, res); err != nil {
		return err
	}
	if res.EmailChangeRequested {
		fmt.Printf("A confirmation link was sent to %s.\n", email)
		return nil
	}

	s.creds.User = res.User
	if err := auth.Save(s.creds); err != nil {
		return err
	}
	fmt.Printf("Profile updated: %s\n", res.User.DisplayName())
	return nil
}

func recordProfile(ctx context.Context, s *session, res *auth.ProfileResult) error {
	database, err := openDatabase(s.cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	summary := "Updated profile name"
	if res.EmailChangeRequested {
		summary = "Requested email change"
	}
	s.newRecorder(database).Record(ctx, audit.Entry{
		Action:          audit.ActionProfileUpdated,
		Scope:           audit.ScopeAccount,
		ScopeID:         res.User.ID,
		Summary:         summary,
		AffectedRecords: []string{res.User.ID},
	})
	return nil
}
