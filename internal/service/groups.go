package service

import (
	"context"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/fetch"
	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/mutate"
)

// Groups is the study groups screen.
type Groups struct {
	env *Env
}

// GroupsQuery is the group list, optionally filtered by search.
func GroupsQuery(search string) fetch.Query[[]model.Group] {
	return fetch.Query[[]model.Group]{Operation: opGetGroups, Vars: vars("search", optional(search)), Field: "myGroups"}
}

func (g *Groups) List(ctx context.Context, search string) ([]model.Group, error) {
	return fetch.Fetch(ctx, g.env.Fetch, GroupsQuery(search))
}

func (g *Groups) Watch(ctx context.Context, search string, opts fetch.Options) *fetch.Watch[[]model.Group] {
	return fetch.WatchQuery(ctx, g.env.Fetch, GroupsQuery(search), opts)
}

func (g *Groups) Save(ctx context.Context, input model.GroupInput, id string) (model.Group, error) {
	if err := input.Validate(); err != nil {
		return model.Group{}, g.env.fail(err, "groups.saveError")
	}
	if input.MembersIDs == nil {
		input.MembersIDs = []string{}
	}
	group, err := mutate.Dispatch(ctx, g.env.Dispatch, mutate.Mutation[model.Group]{
		Operation: opSaveGroup,
		Vars:      vars("saveGroupData", input, "id", optional(id)),
		Field:     "saveGroup",
		Patch: func(store *cache.Store, group model.Group) {
			upsertMatching(store, opGetGroups.Name, group, group.Name)
		},
	})
	if err != nil {
		return model.Group{}, g.env.fail(err, "groups.saveError")
	}
	if id == "" {
		g.env.success("groups.createSuccess")
	} else {
		g.env.success("groups.updateSuccess")
	}
	return group, nil
}

func (g *Groups) Remove(ctx context.Context, id string) error {
	_, err := mutate.Dispatch(ctx, g.env.Dispatch, mutate.Mutation[model.Deleted]{
		Operation: opRemoveGroup,
		Vars:      vars("id", id),
		Field:     "removeGroup",
		Patch: func(store *cache.Store, _ model.Deleted) {
			cache.ApplyAll(store, opGetGroups.Name, cache.Remove[model.Group](id))
		},
	})
	if err != nil {
		return g.env.fail(err, "groups.deleteError")
	}
	g.env.success("groups.deleteSuccess")
	return nil
}
