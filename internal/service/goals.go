package service

import (
	"context"
	"fmt"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/fetch"
	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/mutate"
)

// Goals is the goals screen.
type Goals struct {
	env *Env
}

// GoalsQuery is the current user's goal list.
func GoalsQuery() fetch.Query[[]model.Goal] {
	return fetch.Query[[]model.Goal]{Operation: opMyGoals, Field: "myGoals"}
}

func (g *Goals) List(ctx context.Context) ([]model.Goal, error) {
	return fetch.Fetch(ctx, g.env.Fetch, GoalsQuery())
}

func (g *Goals) Watch(ctx context.Context, opts fetch.Options) *fetch.Watch[[]model.Goal] {
	return fetch.WatchQuery(ctx, g.env.Fetch, GoalsQuery(), opts)
}

// Save creates (id == "") or updates a goal.
func (g *Goals) Save(ctx context.Context, input model.GoalInput, id string) (model.Goal, error) {
	if err := input.Validate(); err != nil {
		return model.Goal{}, g.env.fail(err, "goals.saveError")
	}
	goal, err := mutate.Dispatch(ctx, g.env.Dispatch, mutate.Mutation[model.Goal]{
		Operation: opSaveGoal,
		Vars:      vars("saveGoalDto", input, "id", optional(id)),
		Field:     "saveGoal",
		Patch: func(store *cache.Store, goal model.Goal) {
			cache.Apply(store, GoalsQuery().Descriptor(), cache.Upsert(goal))
		},
	})
	if err != nil {
		return model.Goal{}, g.env.fail(err, "goals.saveError")
	}
	if id == "" {
		g.env.success("goals.createSuccess")
	} else {
		g.env.success("goals.updateSuccess")
	}
	return goal, nil
}

func (g *Goals) Delete(ctx context.Context, id string) error {
	_, err := mutate.Dispatch(ctx, g.env.Dispatch, mutate.Mutation[bool]{
		Operation: opDeleteGoal,
		Vars:      vars("id", id),
		Field:     "deleteGoal",
		Patch: func(store *cache.Store, _ bool) {
			cache.Apply(store, GoalsQuery().Descriptor(), cache.Remove[model.Goal](id))
		},
	})
	if err != nil {
		return g.env.fail(err, "goals.deleteError")
	}
	g.env.success("goals.deleteSuccess")
	return nil
}

// ToggleTask flips the completed flag of the task at index inside goalID.
// Only that task changes in the cache; every other goal and task is kept
// as it was.
func (g *Goals) ToggleTask(ctx context.Context, goalID string, index int) (model.TaskToggle, error) {
	if index < 0 {
		return model.TaskToggle{}, g.env.fail(fmt.Errorf("task index %d out of range", index), "goals.toggleError")
	}
	res, err := mutate.Dispatch(ctx, g.env.Dispatch, mutate.Mutation[model.TaskToggle]{
		Operation: opToggleTask,
		Vars:      vars("goalId", goalID, "taskId", index),
		Field:     "toggleTask",
		Patch: func(store *cache.Store, t model.TaskToggle) {
			cache.Apply(store, GoalsQuery().Descriptor(), SetTaskCompleted(t.GoalID, t.TaskID, t.Completed))
		},
	})
	if err != nil {
		return model.TaskToggle{}, g.env.fail(err, "goals.toggleError")
	}
	return res, nil
}

// SetTaskCompleted returns a patch setting one task's completed flag.
func SetTaskCompleted(goalID string, index int, completed bool) cache.Patch[[]model.Goal] {
	return cache.Transform(cache.ByID[model.Goal](goalID), func(goal model.Goal) model.Goal {
		if index < 0 || index >= len(goal.Tasks) || goal.Tasks[index].Completed == completed {
			return goal
		}
		tasks := make([]model.Task, len(goal.Tasks))
		copy(tasks, goal.Tasks)
		tasks[index].Completed = completed
		goal.Tasks = tasks
		return goal
	})
}
