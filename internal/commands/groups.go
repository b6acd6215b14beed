package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glasserstudy/glasser/internal/model"
)

var (
	groupsSearch    string
	groupSaveID     string
	groupSaveName   string
	groupSaveDesc   string
	groupSaveMember []string
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List and manage study groups",
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your groups",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		groups, err := a.svc.Groups.List(ctx, groupsSearch)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), groups, func(w io.Writer) {
			fmt.Fprint(w, formatGroups(groups, a.dict.T("groups.empty")))
		})
		return nil
	}),
}

var groupsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create a group, or update one with --id",
	Args:  cobra.NoArgs,
	RunE:  withApp(true, runGroupsSave),
}

var groupsRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a group",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return a.svc.Groups.Remove(ctx, args[0])
	}),
}

func init() {
	groupsListCmd.Flags().StringVar(&groupsSearch, "search", "", "Filter groups by name")

	groupsSaveCmd.Flags().StringVar(&groupSaveID, "id", "", "Group to update (omit to create)")
	groupsSaveCmd.Flags().StringVar(&groupSaveName, "name", "", "Group name")
	groupsSaveCmd.Flags().StringVar(&groupSaveDesc, "description", "", "Group description")
	groupsSaveCmd.Flags().StringArrayVar(&groupSaveMember, "member", nil, "Member email (repeatable)")

	groupsCmd.AddCommand(groupsListCmd, groupsSaveCmd, groupsRemoveCmd)
}

func formatGroups(groups []model.Group, empty string) string {
	if len(groups) == 0 {
		return empty + "\n"
	}
	var sb strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&sb, "%s  %s · %d members\n", g.ID, g.Name, len(g.Members))
		if g.Description != "" {
			fmt.Fprintf(&sb, "  %s\n", g.Description)
		}
	}
	return sb.String()
}

func runGroupsSave(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	var members []model.Member
	if len(groupSaveMember) > 0 {
		me, err := a.svc.Profile.Me(ctx)
		if err != nil {
			return err
		}
		for _, email := range groupSaveMember {
			if members, err = a.svc.Chats.AddMember(ctx, members, email, me.ID); err != nil {
				return err
			}
		}
	}
	group, err := a.svc.Groups.Save(ctx, model.GroupInput{
		Name:        groupSaveName,
		Description: groupSaveDesc,
		MembersIDs:  model.MemberIDs(members),
	}, groupSaveID)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), group, func(w io.Writer) {
		fmt.Fprintf(w, "%s  %s\n", group.ID, group.Name)
	})
	return nil
}
