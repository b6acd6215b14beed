package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/glasserstudy/glasser/internal/model"
)

var (
	loginEmail string
	signUpName string
	signUpGoal string
)

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Sign in to Glasser Study",
	Long: `Sign in and store the session token in session_file.

The password is prompted for on a terminal, otherwise read from the first
line of stdin.

Examples:
  glasser login ana@example.com
  echo "$PASSWORD" | glasser login ana@example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(false, runLogin),
}

var signUpCmd = &cobra.Command{
	Use:   "signup <email>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(false, runSignUp),
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password <email>",
	Short: "Request a password reset email",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(false, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return a.svc.Auth.ResetPassword(ctx, args[0])
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return a.svc.Auth.Logout()
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE:  withApp(true, runWhoami),
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email (or pass it as an argument)")
	signUpCmd.Flags().StringVar(&signUpName, "name", "", "Display name")
	signUpCmd.Flags().StringVar(&signUpGoal, "goal", "", "Study goal shown on your profile")
}

// isTTY returns true if stdin is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// promptPassword reads a password without echo on a terminal, or one line
// from in otherwise.
func promptPassword(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	if isTTY() {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", label)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogin(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	email := loginEmail
	if len(args) > 0 {
		email = args[0]
	}
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email is required")
	}
	password, err := promptPassword(cmd, bufio.NewReader(cmd.InOrStdin()), "Password")
	if err != nil {
		return err
	}
	return a.svc.Auth.Login(ctx, model.LoginInput{Email: email, Password: password})
}

func runSignUp(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	in := bufio.NewReader(cmd.InOrStdin())
	password, err := promptPassword(cmd, in, "Password")
	if err != nil {
		return err
	}
	confirm, err := promptPassword(cmd, in, "Confirm password")
	if err != nil {
		return err
	}
	return a.svc.Auth.SignUp(ctx, model.SignUpInput{
		Email:    args[0],
		Name:     signUpName,
		Goal:     signUpGoal,
		Password: password,
		Confirm:  confirm,
	})
}

// WhoamiResult is the --json output of whoami.
type WhoamiResult struct {
	User      model.User `json:"user"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func runWhoami(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	me, err := a.svc.Profile.Me(ctx)
	if err != nil {
		return err
	}
	res := WhoamiResult{User: me}
	if claims, ok := a.gate.Claims(); ok && !claims.ExpiresAt.IsZero() {
		exp := claims.ExpiresAt
		res.ExpiresAt = &exp
	}
	printResult(cmd.OutOrStdout(), res, func(w io.Writer) {
		fmt.Fprintf(w, "%s <%s>\n", me.Name, me.Email)
		if me.Goal != "" {
			fmt.Fprintf(w, "  goal: %s\n", me.Goal)
		}
		if res.ExpiresAt != nil {
			fmt.Fprintf(w, "  session expires %s\n", formatTimeUntil(*res.ExpiresAt, time.Now()))
		}
	})
	return nil
}
