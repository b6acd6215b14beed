package service

import (
	"context"
	"strings"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/client"
	"github.com/glasserstudy/glasser/internal/feed"
	"github.com/glasserstudy/glasser/internal/fetch"
	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/mutate"
)

// Chats is the chat screen.
type Chats struct {
	env *Env
}

// ChatsQuery is the chat list read, optionally filtered by search.
func ChatsQuery(search string) fetch.Query[[]model.Chat] {
	return fetch.Query[[]model.Chat]{Operation: opGetChats, Vars: vars("search", optional(search)), Field: "myChats"}
}

// MessagesQuery is the message list of one chat.
func MessagesQuery(chatID string) fetch.Query[[]model.Message] {
	return fetch.Query[[]model.Message]{Operation: opGetMessages, Vars: vars("chatId", chatID), Field: "chatMessages"}
}

// List reads the chat list once.
func (c *Chats) List(ctx context.Context, search string) ([]model.Chat, error) {
	return fetch.Fetch(ctx, c.env.Fetch, ChatsQuery(search))
}

// Watch keeps the chat list fresh.
func (c *Chats) Watch(ctx context.Context, search string, opts fetch.Options) *fetch.Watch[[]model.Chat] {
	return fetch.WatchQuery(ctx, c.env.Fetch, ChatsQuery(search), opts)
}

// Get returns a chat from any cached list, reading the full list when
// nothing is cached yet.
func (c *Chats) Get(ctx context.Context, id string) (model.Chat, error) {
	for _, d := range c.env.store().Descriptors(opGetChats.Name) {
		list, _ := cache.Read[[]model.Chat](c.env.store(), d)
		for _, ch := range list {
			if ch.ID == id {
				return ch, nil
			}
		}
	}
	list, err := c.List(ctx, "")
	if err != nil {
		return model.Chat{}, err
	}
	for _, ch := range list {
		if ch.ID == id {
			return ch, nil
		}
	}
	return model.Chat{}, client.ErrNotFound
}

// Save creates (id == "") or updates a chat and upserts it into every
// cached chat list it belongs to.
func (c *Chats) Save(ctx context.Context, input model.ChatInput, id string) (model.Chat, error) {
	okKey, errKey := "chats.createSuccess", "chats.createError"
	if id != "" {
		okKey, errKey = "chats.updateSuccess", "chats.updateError"
	}
	if err := input.Validate(); err != nil {
		return model.Chat{}, c.env.fail(err, errKey)
	}
	if input.MembersIDs == nil {
		input.MembersIDs = []string{}
	}

	chat, err := mutate.Dispatch(ctx, c.env.Dispatch, mutate.Mutation[model.Chat]{
		Operation: opSaveChat,
		Vars:      vars("saveChatData", input, "id", optional(id)),
		Field:     "saveChat",
		Patch: func(store *cache.Store, chat model.Chat) {
			upsertMatching(store, opGetChats.Name, chat, chat.Name)
		},
	})
	if err != nil {
		return model.Chat{}, c.env.fail(err, errKey)
	}
	c.env.success(okKey)
	return chat, nil
}

// Remove deletes a chat, drops it from every cached list and forgets its
// messages.
func (c *Chats) Remove(ctx context.Context, id string) error {
	_, err := mutate.Dispatch(ctx, c.env.Dispatch, mutate.Mutation[model.Deleted]{
		Operation: opRemoveChat,
		Vars:      vars("id", id),
		Field:     "removeChat",
		Patch: func(store *cache.Store, d model.Deleted) {
			cache.ApplyAll(store, opGetChats.Name, cache.Remove[model.Chat](id))
			store.Evict(MessagesQuery(id).Descriptor())
		},
	})
	if err != nil {
		return c.env.fail(err, "chats.deleteError")
	}
	c.env.success("chats.deleteSuccess")
	return nil
}

// SendMessage posts content to chatID and appends the result to the cached
// message list. When scope is given and has moved to another chat by the
// time the write completes, the list is left alone.
func (c *Chats) SendMessage(ctx context.Context, scope *mutate.Scope, chatID, content string) (model.Message, error) {
	if err := model.ValidateMessage(content); err != nil {
		return model.Message{}, c.env.fail(err, "")
	}
	d := MessagesQuery(chatID).Descriptor()
	msg, err := mutate.Dispatch(ctx, c.env.Dispatch, mutate.Mutation[model.Message]{
		Operation: opSaveMessage,
		Vars: vars("saveMessageInput", map[string]any{
			"chatId":  chatID,
			"content": strings.TrimSpace(content),
		}),
		Field: "saveMessage",
		Patch: func(store *cache.Store, m model.Message) {
			cache.Apply(store, d, cache.Append(m, 0))
		},
		Scope:    scope,
		ScopeKey: chatID,
	})
	if err != nil {
		return model.Message{}, c.env.fail(err, "chats.sendError")
	}
	return msg, nil
}

// ManageInvitation accepts or declines an invitation, then re-reads the
// chat lists.
func (c *Chats) ManageInvitation(ctx context.Context, chat model.Chat, accept bool) error {
	if err := chat.Role().Require(model.Role.CanRespondInvitation); err != nil {
		return c.env.fail(err, "")
	}
	_, err := mutate.Dispatch(ctx, c.env.Dispatch, mutate.Mutation[bool]{
		Operation: opManageInvitation,
		Vars:      vars("id", chat.ID, "accept", accept),
		Field:     "manageInvitation",
		Refetch:   ChatsQuery("").Variants(c.env.store()),
	})
	if err != nil {
		return c.env.fail(err, "chats.manageInvitationError")
	}
	if accept {
		c.env.success("chats.invitationAccepted")
	} else {
		c.env.success("chats.invitationDeclined")
	}
	return nil
}

// Exit leaves a chat, then re-reads the chat lists.
func (c *Chats) Exit(ctx context.Context, chat model.Chat) error {
	if err := chat.Role().Require(model.Role.CanExit); err != nil {
		return c.env.fail(err, "")
	}
	_, err := mutate.Dispatch(ctx, c.env.Dispatch, mutate.Mutation[bool]{
		Operation: opExitChat,
		Vars:      vars("id", chat.ID),
		Field:     "exitChat",
		Refetch:   ChatsQuery("").Variants(c.env.store()),
	})
	if err != nil {
		return c.env.fail(err, "chats.exitChatError")
	}
	c.env.store().Evict(MessagesQuery(chat.ID).Descriptor())
	c.env.success("chats.exitChatSuccess")
	return nil
}

// LookupMember finds a user by email. An unknown email is reported as
// member-not-found and leaves every cached list untouched.
func (c *Chats) LookupMember(ctx context.Context, email string) (model.User, error) {
	if err := model.ValidateEmail(email); err != nil {
		return model.User{}, c.env.fail(err, "")
	}
	var u model.User
	err := c.env.Fetch.Client().DoField(ctx, opGetMember, vars("email", strings.TrimSpace(email)), "user", &u)
	if err != nil {
		return model.User{}, c.env.fail(err, "chats.memberNotFound")
	}
	return u, nil
}

// AddMember looks email up and appends it to members. selfID is the
// caller's user id; adding yourself or someone already listed fails.
func (c *Chats) AddMember(ctx context.Context, members []model.Member, email, selfID string) ([]model.Member, error) {
	u, err := c.LookupMember(ctx, email)
	if err != nil {
		return members, err
	}
	out, err := model.AddMember(members, u, selfID)
	if err != nil {
		return members, c.env.fail(err, "")
	}
	return out, nil
}

// MarkRead flags a chat as read in every cached list. It is local only.
func (c *Chats) MarkRead(id string) {
	cache.ApplyAll(c.env.store(), opGetChats.Name, cache.Transform(cache.ByID[model.Chat](id), func(ch model.Chat) model.Chat {
		ch.HasRead = true
		return ch
	}))
}

// Messages returns an idle feed of chat messages. Bind it to a chat id.
func (c *Chats) Messages() *feed.Feed[model.Message] {
	return feed.New(c.env.Fetch, feed.Config[model.Message]{
		Query:        MessagesQuery,
		Order:        feed.Append,
		PollInterval: c.env.PollInterval,
	})
}

// upsertMatching upserts e into every cached variant of operation whose
// search variable is absent or matches name.
func upsertMatching[E cache.Entity](store *cache.Store, operation string, e E, name string) {
	for _, d := range store.Descriptors(operation) {
		search, _ := d.Vars["search"].(string)
		if search != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(search)) {
			// A filtered list only gains the entity when it is already there.
			cache.Apply(store, d, cache.Transform(cache.ByID[E](e.EntityID()), func(E) E { return e }))
			continue
		}
		cache.Apply(store, d, cache.Upsert(e))
	}
}
