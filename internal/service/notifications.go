package service

import (
	"context"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/feed"
	"github.com/glasserstudy/glasser/internal/fetch"
	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/mutate"
)

// Notifications is the notification feed of the signed-in user.
type Notifications struct {
	env *Env
}

// NotificationsQuery is the newest limit notifications.
func NotificationsQuery(limit int) fetch.Query[[]model.Notification] {
	return fetch.Query[[]model.Notification]{Operation: opMyNotifications, Vars: vars("limit", limit), Field: "myNotifications"}
}

func (n *Notifications) query() fetch.Query[[]model.Notification] {
	return NotificationsQuery(n.env.NotificationLimit)
}

func (n *Notifications) List(ctx context.Context) ([]model.Notification, error) {
	return fetch.Fetch(ctx, n.env.NotificationFetch, n.query())
}

// Feed returns an idle, newest-first feed bounded to the notification
// limit. Bind it to the user (any non-empty key) to start it.
func (n *Notifications) Feed() *feed.Feed[model.Notification] {
	return feed.New(n.env.NotificationFetch, feed.Config[model.Notification]{
		Query: func(string) fetch.Query[[]model.Notification] { return n.query() },
		Push: func(string) feed.Push {
			return feed.Push{Operation: opOnNotification, Field: "newNotification"}
		},
		Subscriber:   n.env.Push,
		Order:        feed.Prepend,
		Bound:        n.env.NotificationLimit,
		PollInterval: n.env.PollInterval,
	})
}

// MarkRead marks one notification read.
func (n *Notifications) MarkRead(ctx context.Context, id string) error {
	_, err := mutate.Dispatch(ctx, n.env.NotificationDispatch, mutate.Mutation[model.Notification]{
		Operation: opMarkNotificationRead,
		Vars:      vars("id", id),
		Field:     "markNotificationAsRead",
		Patch: func(store *cache.Store, _ model.Notification) {
			cache.ApplyAll(store, opMyNotifications.Name, markRead(cache.ByID[model.Notification](id)))
		},
	})
	return n.env.fail(err, "notifications.markError")
}

// MarkAllRead marks every notification read.
func (n *Notifications) MarkAllRead(ctx context.Context) error {
	_, err := mutate.Dispatch(ctx, n.env.NotificationDispatch, mutate.Mutation[bool]{
		Operation: opMarkAllNotificationsRead,
		Field:     "markAllNotificationsAsRead",
		Patch: func(store *cache.Store, _ bool) {
			cache.ApplyAll(store, opMyNotifications.Name, markRead(func(model.Notification) bool { return true }))
		},
	})
	if err != nil {
		return n.env.fail(err, "notifications.markError")
	}
	n.env.success("notifications.markAllSuccess")
	return nil
}

// Unread counts unread entries of list.
func Unread(list []model.Notification) int {
	count := 0
	for _, item := range list {
		if !item.Read {
			count++
		}
	}
	return count
}

func markRead(match func(model.Notification) bool) cache.Patch[[]model.Notification] {
	return cache.Transform(func(item model.Notification) bool { return match(item) && !item.Read }, func(item model.Notification) model.Notification {
		item.Read = true
		return item
	})
}
