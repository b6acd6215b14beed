// Package service binds each screen of the Glasser Study app to its
// GraphQL operations and cache patches.
//
// Every write reconciles the shared cache itself (upsert, remove, transform,
// append) so open lists reflect it without a refetch; only writes whose
// effect cannot be derived from their result (invitations, exiting a chat,
// likes) re-read the affected lists. Success and failure are reported as
// notices keyed into the i18n dictionaries.
package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/client"
	"github.com/glasserstudy/glasser/internal/fetch"
	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/mutate"
	"github.com/glasserstudy/glasser/internal/notice"
	"github.com/glasserstudy/glasser/internal/session"
)

// Defaults.
const (
	DefaultPollInterval      = time.Second
	DefaultNotificationLimit = 3
)

// Uploader stores files at presigned URLs.
type Uploader interface {
	Upload(ctx context.Context, uploadURL, contentType string, body io.Reader) error
}

// Env is what every service needs.
type Env struct {
	Fetch    *fetch.Controller
	Dispatch *mutate.Dispatcher
	Gate     *session.Gate
	Notices  notice.Sink
	Uploader Uploader

	// Notification operations may live on a separate endpoint. Nil means
	// the main controller.
	NotificationFetch    *fetch.Controller
	NotificationDispatch *mutate.Dispatcher
	Push                 client.Subscriber

	PollInterval      time.Duration
	NotificationLimit int
	Now               func() time.Time
}

// Services groups the per-screen services over one Env.
type Services struct {
	env           *Env
	Auth          *Auth
	Chats         *Chats
	Goals         *Goals
	Posts         *Posts
	Groups        *Groups
	Notifications *Notifications
	Profile       *Profile
}

// New fills in defaults and builds all services. Signing out, by logout or
// by invalidation, resets the shared cache.
func New(env *Env) *Services {
	if env.Notices == nil {
		env.Notices = notice.Discard
	}
	if env.NotificationFetch == nil {
		env.NotificationFetch = env.Fetch
	}
	if env.NotificationDispatch == nil {
		env.NotificationDispatch = env.Dispatch
	}
	if env.PollInterval <= 0 {
		env.PollInterval = DefaultPollInterval
	}
	if env.NotificationLimit <= 0 {
		env.NotificationLimit = DefaultNotificationLimit
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.Gate != nil {
		env.Gate.Subscribe(func(token string) {
			if token == "" {
				env.Fetch.Store().Reset()
				if env.NotificationFetch.Store() != env.Fetch.Store() {
					env.NotificationFetch.Store().Reset()
				}
			}
		})
	}

	return &Services{
		env:           env,
		Auth:          &Auth{env: env},
		Chats:         &Chats{env: env},
		Goals:         &Goals{env: env},
		Posts:         &Posts{env: env},
		Groups:        &Groups{env: env},
		Notifications: &Notifications{env: env},
		Profile:       &Profile{env: env},
	}
}

// Store returns the shared cache.
func (s *Services) Store() *cache.Store { return s.env.Fetch.Store() }

func (e *Env) store() *cache.Store { return e.Fetch.Store() }

func (e *Env) success(key string) {
	if key != "" {
		e.Notices.Notify(notice.Notice{Kind: notice.Success, Key: key})
	}
}

// fail reports err under errKey and returns it. Validation failures use
// their own key. Session failures are left to the session gate, which has
// already announced them.
func (e *Env) fail(err error, errKey string) error {
	if err == nil {
		return nil
	}
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		e.Notices.Notify(notice.Notice{Kind: notice.Error, Key: ve.Key})
	case client.IsAuth(err):
	case errKey != "":
		glog.V(1).Infof("service: %s: %v", errKey, err)
		e.Notices.Notify(notice.Notice{Kind: notice.Error, Key: errKey})
	}
	return err
}

// optional maps "" to nil so the variable is omitted from the request and
// from the cache key.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func vars(kv ...any) map[string]any {
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if v := kv[i+1]; v != nil {
			out[kv[i].(string)] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
