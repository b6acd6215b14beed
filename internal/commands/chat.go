package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/glasserstudy/glasser/internal/mutate"
	"github.com/glasserstudy/glasser/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat <id>",
	Short: "Open a chat in a live view",
	Long: `Open a chat and follow its messages as they arrive.

Type a message and press enter to send it; esc leaves the chat.`,
	Args: cobra.ExactArgs(1),
	RunE: live(runChat),
}

func runChat(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	chatID := args[0]

	getCtx, cancel := context.WithTimeout(ctx, apiTimeout)
	chat, err := a.svc.Chats.Get(getCtx, chatID)
	cancel()
	if err != nil {
		return err
	}
	a.svc.Chats.MarkRead(chatID)

	messages := a.svc.Chats.Messages()
	defer messages.Close()
	messages.Bind(ctx, chatID)

	// Sends issued for this chat are dropped once the view is left.
	scope := mutate.NewScope(chatID)
	return tui.Run(tui.Options{
		Context: ctx,
		Title:   chat.Name,
		Feed:    messages,
		Send: func(ctx context.Context, content string) error {
			sendCtx, cancel := context.WithTimeout(ctx, apiTimeout)
			defer cancel()
			_, err := a.svc.Chats.SendMessage(sendCtx, scope, chatID, content)
			return err
		},
		Leave: func() { scope.Set("") },
	})
}
