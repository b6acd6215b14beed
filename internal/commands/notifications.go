package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/service"
)

var notificationsWatch bool

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Show your latest notifications",
	Long: `Show your latest notifications (notification_limit, default 3).

With --watch, keep running and print notifications as they arrive. Push
delivery uses push_transport; polling covers anything push misses.

Examples:
  glasser notifications
  glasser notifications --watch
  glasser notifications read-all`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if notificationsWatch {
			return live(runNotificationsWatch)(cmd, args)
		}
		return withApp(true, runNotificationsList)(cmd, args)
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark a notification read",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return a.svc.Notifications.MarkRead(ctx, args[0])
	}),
}

var notificationsReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification read",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return a.svc.Notifications.MarkAllRead(ctx)
	}),
}

func init() {
	notificationsCmd.Flags().BoolVar(&notificationsWatch, "watch", false, "Keep running and print new notifications")
	notificationsCmd.AddCommand(notificationsReadCmd, notificationsReadAllCmd)
}

// NotificationsResult is the --json output of notifications.
type NotificationsResult struct {
	Unread        int                  `json:"unread"`
	Notifications []model.Notification `json:"notifications"`
}

func runNotificationsList(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	list, err := a.svc.Notifications.List(ctx)
	if err != nil {
		return err
	}
	res := NotificationsResult{Unread: service.Unread(list), Notifications: list}
	printResult(cmd.OutOrStdout(), res, func(w io.Writer) {
		fmt.Fprint(w, formatNotifications(list, a.dict.T("notifications.empty"), time.Now()))
	})
	return nil
}

func runNotificationsWatch(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	f := a.svc.Notifications.Feed()
	defer f.Close()

	// The feed is per user; any non-empty key binds it.
	f.Bind(ctx, "me")

	w := cmd.OutOrStdout()
	seen := make(map[string]bool)
	for {
		items := f.Items()
		// Newest first; print oldest unseen first.
		for i := len(items) - 1; i >= 0; i-- {
			n := items[i]
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			if jsonOutput {
				_ = json.NewEncoder(w).Encode(n)
			} else {
				fmt.Fprint(w, formatNotification(n, time.Now()))
			}
		}
		if !a.gate.SignedIn() {
			return ErrReported
		}
		select {
		case <-ctx.Done():
			return nil
		case <-f.Updates():
		}
	}
}

func formatNotifications(list []model.Notification, empty string, now time.Time) string {
	if len(list) == 0 {
		return empty + "\n"
	}
	var sb strings.Builder
	for _, n := range list {
		sb.WriteString(formatNotification(n, now))
	}
	return sb.String()
}

func formatNotification(n model.Notification, now time.Time) string {
	marker := "•"
	if n.Read {
		marker = " "
	}
	kind := ""
	if n.Type != "" && n.Type != model.NotificationInfo {
		kind = strings.ToUpper(string(n.Type)) + ": "
	}
	return fmt.Sprintf("%s %s  %s%s (%s)\n", marker, n.ID, kind, n.Message, formatTimeAgo(n.Timestamp, now))
}

// PrintNotifications prints and clears the notices queued by the last
// command. main calls it at the end of every command.
func PrintNotifications(w io.Writer) {
	if b := currentBoard(); b != nil {
		b.Print(w)
	}
}
