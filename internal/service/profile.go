package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/fetch"
	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/mutate"
)

// Profile is the signed-in user's profile.
type Profile struct {
	env *Env
}

// MeQuery is the signed-in user.
func MeQuery() fetch.Query[model.User] {
	return fetch.Query[model.User]{Operation: opMe, Field: "me"}
}

// Me returns the cached user, reading it when not cached.
func (p *Profile) Me(ctx context.Context) (model.User, error) {
	if u, ok := cache.Read[model.User](p.env.store(), MeQuery().Descriptor()); ok {
		return u, nil
	}
	return fetch.Fetch(ctx, p.env.Fetch, MeQuery())
}

// Update saves profile fields and replaces the cached user.
func (p *Profile) Update(ctx context.Context, input model.ProfileInput) (model.User, error) {
	if err := input.Validate(); err != nil {
		return model.User{}, p.env.fail(err, "profile.updateError")
	}
	u, err := p.updateMe(ctx, input)
	if err != nil {
		return model.User{}, p.env.fail(err, "profile.updateError")
	}
	p.env.success("profile.updateSuccess")
	return u, nil
}

// UploadImage stores a new profile picture: it asks for a presigned URL,
// PUTs the image there and records the public URL on the user. The
// returned display URL carries a version parameter so stale copies are not
// shown.
func (p *Profile) UploadImage(ctx context.Context, contentType string, body io.Reader) (model.User, string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return model.User{}, "", p.env.fail(fmt.Errorf("unsupported content type %q", contentType), "profile.imageError")
	}
	if p.env.Uploader == nil {
		return model.User{}, "", p.env.fail(fmt.Errorf("no uploader configured"), "profile.imageError")
	}

	var presigned model.PresignedURL
	if err := p.env.Fetch.Client().DoField(ctx, opGetPresignedURL, vars("type", contentType), "getPresignedUrl", &presigned); err != nil {
		return model.User{}, "", p.env.fail(err, "profile.imageError")
	}
	if err := p.env.Uploader.Upload(ctx, presigned.UploadURL, contentType, body); err != nil {
		return model.User{}, "", p.env.fail(err, "profile.imageError")
	}
	u, err := p.updateMe(ctx, model.ProfileInput{ProfileImageURL: presigned.PublicURL})
	if err != nil {
		return model.User{}, "", p.env.fail(err, "profile.imageError")
	}
	p.env.success("profile.imageSuccess")
	return u, DisplayURL(u.ProfileImageURL, p.env.Now().UnixMilli()), nil
}

// DisplayURL appends a cache-busting version to an image URL.
func DisplayURL(u string, version int64) string {
	if u == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sv=%d", u, sep, version)
}

func (p *Profile) updateMe(ctx context.Context, input model.ProfileInput) (model.User, error) {
	return mutate.Dispatch(ctx, p.env.Dispatch, mutate.Mutation[model.User]{
		Operation: opUpdateMe,
		Vars:      vars("userData", input),
		Field:     "updateMe",
		Patch: func(store *cache.Store, u model.User) {
			cache.Apply(store, MeQuery().Descriptor(), cache.Replace(u))
		},
	})
}
