// Package commands implements the glasser CLI commands.
package commands

import (
	goflag "flag"
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/glasserstudy/glasser/internal/config"
)

var versionInfo struct {
	version string
	commit  string
	date    string
}

// SetVersionInfo sets version information from main (populated by goreleaser).
func SetVersionInfo(version, commit, date string) {
	versionInfo.version = version
	versionInfo.commit = commit
	versionInfo.date = date
	rootCmd.Version = version
	if commit != "" && commit != "none" {
		rootCmd.Version += fmt.Sprintf(" (commit %s, built %s)", commit, date)
	}
}

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "glasser",
	Short: "Glasser Study from the terminal",
	Long: `glasser talks to the Glasser Study API: chats, goals, posts, groups,
notifications and your profile.

Setup:
  glasser login            - Sign in (token stored in session_file)
  .glasser                 - Workspace config (api_url, locale, ...)

Environment variables:
  GLASSER_API_URL              - GraphQL endpoint
  GLASSER_NOTIFICATION_URL     - Notification endpoint (default: api url)
  GLASSER_NOTIFICATION_WS_URL  - graphql-transport-ws endpoint for push
  GLASSER_LOCALE               - en or pt
  GLASSER_SESSION_FILE         - Where the session token is stored
  GLASSER_TOKEN                - Use this token instead of the stored session`,
	// main.go prints errors and notices
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			config.SetPath(configPath)
		}
		loadDotenvBestEffort()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Use an alternate .glasser config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	// glog registers on the standard flag set; expose -v and friends.
	_ = goflag.Set("logtostderr", "true")
	addGoFlags(rootCmd.PersistentFlags(), goflag.CommandLine)

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signUpCmd)
	rootCmd.AddCommand(resetPasswordCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(goalsCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(profileCmd)
}

func loadDotenvBestEffort() {
	// Prefer the workspace root (dir containing .glasser) so subdir invocations work.
	if root, err := config.WorkspaceRoot(); err == nil {
		_ = godotenv.Load(filepath.Join(root, ".env"))
		return
	}
	// Fallback: load from the current working directory.
	_ = godotenv.Load()
}

// addGoFlags exposes the standard library flags (glog's -v, -vmodule,
// -logtostderr) on fs.
func addGoFlags(fs *pflag.FlagSet, gfs *goflag.FlagSet) {
	gfs.VisitAll(func(f *goflag.Flag) {
		if fs.Lookup(f.Name) == nil {
			fs.AddGoFlag(f)
		}
	})
}

// Execute runs the root command.
func Execute() error {
	defer config.SetPath("")
	return rootCmd.Execute()
}
