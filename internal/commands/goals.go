package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glasserstudy/glasser/internal/model"
)

var (
	goalSaveID    string
	goalSaveName  string
	goalSaveDesc  string
	goalSaveTasks []string
)

var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "List and manage study goals",
	Long: `List and manage your study goals.

Tasks are given as "name" or "name|link".

Examples:
  glasser goals save --name "Linear algebra" --task "Vectors|https://example.com/v" --task "Matrices"
  glasser goals toggle <goal-id> 2`,
}

var goalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your goals with progress",
	Args:  cobra.NoArgs,
	RunE:  withApp(true, runGoalsList),
}

var goalsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create a goal, or replace one with --id",
	Args:  cobra.NoArgs,
	RunE:  withApp(true, runGoalsSave),
}

var goalsRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a goal",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return a.svc.Goals.Delete(ctx, args[0])
	}),
}

var goalsToggleCmd = &cobra.Command{
	Use:   "toggle <goal-id> <task-index>",
	Short: "Toggle a task between done and not done (index from 0)",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(true, runGoalsToggle),
}

func init() {
	goalsSaveCmd.Flags().StringVar(&goalSaveID, "id", "", "Goal to replace (omit to create)")
	goalsSaveCmd.Flags().StringVar(&goalSaveName, "name", "", "Goal name")
	goalsSaveCmd.Flags().StringVar(&goalSaveDesc, "description", "", "Goal description")
	goalsSaveCmd.Flags().StringArrayVar(&goalSaveTasks, "task", nil, `Task as "name" or "name|link" (repeatable)`)

	goalsCmd.AddCommand(goalsListCmd, goalsSaveCmd, goalsRemoveCmd, goalsToggleCmd)
}

func runGoalsList(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	goals, err := a.svc.Goals.List(ctx)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), goals, func(w io.Writer) {
		fmt.Fprint(w, formatGoals(goals, a.dict.T("goals.empty")))
	})
	return nil
}

func formatGoals(goals []model.Goal, empty string) string {
	if len(goals) == 0 {
		return empty + "\n"
	}
	var sb strings.Builder
	for _, g := range goals {
		fmt.Fprintf(&sb, "%s  %s  %d%%\n", g.ID, g.Name, g.Progress())
		for i, t := range g.Tasks {
			check := " "
			if t.Completed {
				check = "x"
			}
			fmt.Fprintf(&sb, "  %d [%s] %s", i, check, t.Name)
			if t.Link != "" {
				fmt.Fprintf(&sb, " <%s>", t.Link)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func parseTasks(specs []string) []model.Task {
	tasks := make([]model.Task, 0, len(specs))
	for _, s := range specs {
		name, link, _ := strings.Cut(s, "|")
		tasks = append(tasks, model.Task{Name: strings.TrimSpace(name), Link: strings.TrimSpace(link)})
	}
	return tasks
}

func runGoalsSave(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	goal, err := a.svc.Goals.Save(ctx, model.GoalInput{
		Name:        goalSaveName,
		Description: goalSaveDesc,
		Tasks:       parseTasks(goalSaveTasks),
	}, goalSaveID)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), goal, func(w io.Writer) {
		fmt.Fprint(w, formatGoals([]model.Goal{goal}, ""))
	})
	return nil
}

func runGoalsToggle(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[1])
	if err != nil || index < 0 {
		return fmt.Errorf("task index must be a non-negative integer: %q", args[1])
	}
	res, err := a.svc.Goals.ToggleTask(ctx, args[0], index)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res, func(w io.Writer) {
		state := "not done"
		if res.Completed {
			state = "done"
		}
		fmt.Fprintf(w, "Task %d of %s is %s\n", res.TaskID, res.GoalID, state)
	})
	return nil
}
