package service

import (
	"context"
	"strings"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/fetch"
	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/mutate"
)

// SearchFilterAll is the UI's "everything" search filter; it is sent as
// no filter at all.
const SearchFilterAll = "tudo"

// PostFilter narrows the post list.
type PostFilter struct {
	SearchTerm   string
	SearchFilter string
	Subject      string
	MaterialType string
}

// Posts is the posts screen.
type Posts struct {
	env *Env
}

// PostsQuery is the filtered post list.
func PostsQuery(f PostFilter) fetch.Query[[]model.Post] {
	filter := f.SearchFilter
	if filter == SearchFilterAll {
		filter = ""
	}
	return fetch.Query[[]model.Post]{
		Operation: opGetPosts,
		Vars: vars(
			"searchTerm", optional(f.SearchTerm),
			"searchFilter", optional(filter),
			"subject", optional(f.Subject),
			"materialType", optional(f.MaterialType),
		),
		Field: "posts",
	}
}

// CommentsQuery is the comment list of one post.
func CommentsQuery(postID string) fetch.Query[[]model.Comment] {
	return fetch.Query[[]model.Comment]{Operation: opGetComments, Vars: vars("postId", postID), Field: "getComments"}
}

func (p *Posts) List(ctx context.Context, f PostFilter) ([]model.Post, error) {
	return fetch.Fetch(ctx, p.env.Fetch, PostsQuery(f))
}

// Watch keeps a filtered post list fresh at the poll interval.
func (p *Posts) Watch(ctx context.Context, f PostFilter) *fetch.Watch[[]model.Post] {
	return fetch.WatchQuery(ctx, p.env.Fetch, PostsQuery(f), fetch.Options{PollInterval: p.env.PollInterval})
}

// Save creates (id == "") or updates a post. A new post is added to the
// unfiltered list only; an update replaces the post wherever it is cached.
func (p *Posts) Save(ctx context.Context, input model.PostInput, id string) (model.Post, error) {
	if err := input.Validate(); err != nil {
		return model.Post{}, p.env.fail(err, "posts.saveError")
	}
	if input.Tags == nil {
		input.Tags = []string{}
	}
	if input.Materials == nil {
		input.Materials = []model.Material{}
	}
	post, err := mutate.Dispatch(ctx, p.env.Dispatch, mutate.Mutation[model.Post]{
		Operation: opSavePost,
		Vars:      vars("savePostDto", input, "id", optional(id)),
		Field:     "savePost",
		Patch: func(store *cache.Store, post model.Post) {
			if id == "" {
				cache.Apply(store, PostsQuery(PostFilter{}).Descriptor(), cache.Upsert(post))
				return
			}
			cache.ApplyAll(store, opGetPosts.Name, cache.Transform(cache.ByID[model.Post](post.ID), func(model.Post) model.Post { return post }))
		},
	})
	if err != nil {
		return model.Post{}, p.env.fail(err, "posts.saveError")
	}
	if id == "" {
		p.env.success("posts.createSuccess")
	} else {
		p.env.success("posts.updateSuccess")
	}
	return post, nil
}

func (p *Posts) Delete(ctx context.Context, id string) error {
	_, err := mutate.Dispatch(ctx, p.env.Dispatch, mutate.Mutation[model.Deleted]{
		Operation: opDeletePost,
		Vars:      vars("id", id),
		Field:     "deletePost",
		Patch: func(store *cache.Store, _ model.Deleted) {
			cache.ApplyAll(store, opGetPosts.Name, cache.Remove[model.Post](id))
			store.Evict(CommentsQuery(id).Descriptor())
		},
	})
	if err != nil {
		return p.env.fail(err, "posts.deleteError")
	}
	p.env.success("posts.deleteSuccess")
	return nil
}

// ToggleLike likes or unlikes a post, then re-reads the cached post lists
// for the new count.
func (p *Posts) ToggleLike(ctx context.Context, postID string) error {
	_, err := mutate.Dispatch(ctx, p.env.Dispatch, mutate.Mutation[model.Deleted]{
		Operation: opToggleLike,
		Vars:      vars("input", map[string]any{"postId": postID}),
		Field:     "toggleLike",
		Refetch:   PostsQuery(PostFilter{}).Variants(p.env.store()),
	})
	return p.env.fail(err, "posts.likeError")
}

func (p *Posts) Comments(ctx context.Context, postID string) ([]model.Comment, error) {
	return fetch.Fetch(ctx, p.env.Fetch, CommentsQuery(postID))
}

// CreateComment appends a comment and bumps the post's comment count.
func (p *Posts) CreateComment(ctx context.Context, postID, content string) (model.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return model.Comment{}, p.env.fail(model.ValidateMessage(content), "")
	}
	c, err := mutate.Dispatch(ctx, p.env.Dispatch, mutate.Mutation[model.Comment]{
		Operation: opCreateComment,
		Vars:      vars("input", map[string]any{"postId": postID, "content": strings.TrimSpace(content)}),
		Field:     "createComment",
		Patch: func(store *cache.Store, c model.Comment) {
			if cache.Apply(store, CommentsQuery(postID).Descriptor(), cache.Append(c, 0)) {
				cache.ApplyAll(store, opGetPosts.Name, adjustComments(postID, 1))
			}
		},
	})
	if err != nil {
		return model.Comment{}, p.env.fail(err, "posts.commentError")
	}
	p.env.success("posts.commentSuccess")
	return c, nil
}

// DeleteComment removes a comment and lowers the post's comment count.
func (p *Posts) DeleteComment(ctx context.Context, postID, commentID string) error {
	_, err := mutate.Dispatch(ctx, p.env.Dispatch, mutate.Mutation[model.Deleted]{
		Operation: opDeleteComment,
		Vars:      vars("id", commentID),
		Field:     "deleteComment",
		Patch: func(store *cache.Store, _ model.Deleted) {
			if cache.Apply(store, CommentsQuery(postID).Descriptor(), cache.Remove[model.Comment](commentID)) {
				cache.ApplyAll(store, opGetPosts.Name, adjustComments(postID, -1))
			}
		},
	})
	if err != nil {
		return p.env.fail(err, "posts.commentDeleteError")
	}
	p.env.success("posts.commentDeleteSuccess")
	return nil
}

// Report files a report against a post or comment.
func (p *Posts) Report(ctx context.Context, input model.ReportInput) error {
	if err := input.Validate(); err != nil {
		return p.env.fail(err, "posts.reportError")
	}
	_, err := mutate.Dispatch(ctx, p.env.Dispatch, mutate.Mutation[model.Deleted]{
		Operation: opCreateReport,
		Vars:      vars("saveReportDto", input),
		Field:     "createReport",
	})
	if err != nil {
		return p.env.fail(err, "posts.reportError")
	}
	p.env.success("posts.reportSuccess")
	return nil
}

func adjustComments(postID string, delta int) cache.Patch[[]model.Post] {
	return cache.Transform(cache.ByID[model.Post](postID), func(post model.Post) model.Post {
		post.CommentsCount += delta
		if post.CommentsCount < 0 {
			post.CommentsCount = 0
		}
		return post
	})
}
