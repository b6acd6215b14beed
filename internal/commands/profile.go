package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/glasserstudy/glasser/internal/model"
)

var (
	profileName           string
	profileGoal           string
	profileChangePassword bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show and edit your profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		me, err := a.svc.Profile.Me(ctx)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), me, func(w io.Writer) {
			fmt.Fprint(w, formatProfile(me))
		})
		return nil
	}),
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update your name, goal or password",
	Args:  cobra.NoArgs,
	RunE:  withApp(true, runProfileUpdate),
}

var profileAvatarCmd = &cobra.Command{
	Use:   "avatar <image-file>",
	Short: "Upload a new profile picture",
	Args:  cobra.ExactArgs(1),
	RunE:  withTimeout(true, uploadTimeout, runProfileAvatar),
}

func init() {
	profileUpdateCmd.Flags().StringVar(&profileName, "name", "", "New display name")
	profileUpdateCmd.Flags().StringVar(&profileGoal, "goal", "", "New study goal")
	profileUpdateCmd.Flags().BoolVar(&profileChangePassword, "password", false, "Prompt for a new password")

	profileCmd.AddCommand(profileShowCmd, profileUpdateCmd, profileAvatarCmd)
}

func formatProfile(u model.User) string {
	s := fmt.Sprintf("%s <%s>\n  id: %s\n", u.Name, u.Email, u.ID)
	if u.Goal != "" {
		s += fmt.Sprintf("  goal: %s\n", u.Goal)
	}
	if u.ProfileImageURL != "" {
		s += fmt.Sprintf("  picture: %s\n", u.ProfileImageURL)
	}
	return s
}

func runProfileUpdate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	input := model.ProfileInput{Name: profileName, Goal: profileGoal}
	if profileChangePassword {
		in := bufio.NewReader(cmd.InOrStdin())
		var err error
		if input.Password, err = promptPassword(cmd, in, "New password"); err != nil {
			return err
		}
		if input.Confirm, err = promptPassword(cmd, in, "Confirm password"); err != nil {
			return err
		}
	}
	if input == (model.ProfileInput{}) {
		return fmt.Errorf("nothing to update (use --name, --goal or --password)")
	}
	u, err := a.svc.Profile.Update(ctx, input)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), u, func(w io.Writer) {
		fmt.Fprint(w, formatProfile(u))
	})
	return nil
}

// AvatarResult is the --json output of profile avatar.
type AvatarResult struct {
	User       model.User `json:"user"`
	DisplayURL string     `json:"display_url"`
}

func runProfileAvatar(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	contentType, err := detectContentType(f, path)
	if err != nil {
		return err
	}
	u, displayURL, err := a.svc.Profile.UploadImage(ctx, contentType, f)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), AvatarResult{User: u, DisplayURL: displayURL}, func(w io.Writer) {
		fmt.Fprintln(w, displayURL)
	})
	return nil
}

// detectContentType sniffs the file head, falling back to the extension,
// and rewinds f.
func detectContentType(f io.ReadSeeker, path string) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding %s: %w", path, err)
	}
	ct := http.DetectContentType(head[:n])
	if ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
			ct = byExt
		}
	}
	return ct, nil
}
