package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/mutate"
)

var (
	chatsSearch      string
	chatSaveID       string
	chatSaveName     string
	chatSaveDesc     string
	chatSaveMembers  []string
	chatInviteAccept bool
	chatInviteReject bool
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List and manage chats",
	Long: `List and manage your chats.

Examples:
  glasser chats list --search math
  glasser chats save --name "Calculus" --description "Study group" --member ana@example.com
  glasser chats invite <id> --accept
  glasser chats exit <id>`,
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your chats",
	Args:  cobra.NoArgs,
	RunE:  withApp(true, runChatsList),
}

var chatsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create a chat, or update one with --id",
	Args:  cobra.NoArgs,
	RunE:  withApp(true, runChatsSave),
}

var chatsRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a chat",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return a.svc.Chats.Remove(ctx, args[0])
	}),
}

var chatsInviteCmd = &cobra.Command{
	Use:   "invite <id>",
	Short: "Accept or decline a chat invitation",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(true, runChatsInvite),
}

var chatsExitCmd = &cobra.Command{
	Use:   "exit <id>",
	Short: "Leave a chat",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		chat, err := a.svc.Chats.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return a.svc.Chats.Exit(ctx, chat)
	}),
}

var chatsMemberCmd = &cobra.Command{
	Use:   "member <email>",
	Short: "Look up a user to add to a chat",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		u, err := a.svc.Chats.LookupMember(ctx, args[0])
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), u, func(w io.Writer) {
			fmt.Fprintf(w, "%s  %s <%s>\n", u.ID, u.Name, u.Email)
		})
		return nil
	}),
}

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <message>",
	Short: "Send a message to a chat",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		chatID := args[0]
		msg, err := a.svc.Chats.SendMessage(ctx, mutate.NewScope(chatID), chatID, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), msg, func(w io.Writer) {
			fmt.Fprintf(w, "Sent %s\n", msg.ID)
		})
		return nil
	}),
}

func init() {
	chatsListCmd.Flags().StringVar(&chatsSearch, "search", "", "Filter chats by name")

	chatsSaveCmd.Flags().StringVar(&chatSaveID, "id", "", "Chat to update (omit to create)")
	chatsSaveCmd.Flags().StringVar(&chatSaveName, "name", "", "Chat name")
	chatsSaveCmd.Flags().StringVar(&chatSaveDesc, "description", "", "Chat description")
	chatsSaveCmd.Flags().StringArrayVar(&chatSaveMembers, "member", nil, "Member email to invite (repeatable)")

	chatsInviteCmd.Flags().BoolVar(&chatInviteAccept, "accept", false, "Accept the invitation")
	chatsInviteCmd.Flags().BoolVar(&chatInviteReject, "decline", false, "Decline the invitation")

	chatsCmd.AddCommand(chatsListCmd, chatsSaveCmd, chatsRemoveCmd, chatsInviteCmd, chatsExitCmd, chatsMemberCmd)
}

func runChatsList(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	chats, err := a.svc.Chats.List(ctx, chatsSearch)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), chats, func(w io.Writer) {
		fmt.Fprint(w, formatChats(chats, a.dict.T("chats.empty")))
	})
	return nil
}

func formatChats(chats []model.Chat, empty string) string {
	if len(chats) == 0 {
		return empty + "\n"
	}
	var sb strings.Builder
	for _, c := range chats {
		marker := " "
		if !c.HasRead {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %s  %s", marker, c.ID, c.Name)
		switch c.Role() {
		case model.RoleModerator:
			sb.WriteString(" (moderator)")
		case model.RoleInvited:
			sb.WriteString(" (invited)")
		}
		fmt.Fprintf(&sb, " · %d members\n", len(c.Members))
	}
	return sb.String()
}

func runChatsSave(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	input := model.ChatInput{Name: chatSaveName, Description: chatSaveDesc}

	var members []model.Member
	if chatSaveID != "" {
		chat, err := a.svc.Chats.Get(ctx, chatSaveID)
		if err != nil {
			return err
		}
		members = chat.Members
		if input.Name == "" {
			input.Name = chat.Name
		}
		if input.Description == "" {
			input.Description = chat.Description
		}
	}
	if len(chatSaveMembers) > 0 {
		me, err := a.svc.Profile.Me(ctx)
		if err != nil {
			return err
		}
		for _, email := range chatSaveMembers {
			if members, err = a.svc.Chats.AddMember(ctx, members, email, me.ID); err != nil {
				return err
			}
		}
	}
	input.MembersIDs = model.MemberIDs(members)

	chat, err := a.svc.Chats.Save(ctx, input, chatSaveID)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), chat, func(w io.Writer) {
		fmt.Fprintf(w, "%s  %s\n", chat.ID, chat.Name)
	})
	return nil
}

func runChatsInvite(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if chatInviteAccept == chatInviteReject {
		return fmt.Errorf("pass exactly one of --accept or --decline")
	}
	chat, err := a.svc.Chats.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return a.svc.Chats.ManageInvitation(ctx, chat, chatInviteAccept)
}
