package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/client"
	"github.com/glasserstudy/glasser/internal/fetch"
	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/mutate"
	"github.com/glasserstudy/glasser/internal/notice"
	"github.com/glasserstudy/glasser/internal/session"
)

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// backend is a fake GraphQL server answering by operation name.
type backend struct {
	mu       sync.Mutex
	calls    []gqlRequest
	handlers map[string]func(vars map[string]any) string
}

func (b *backend) handle(op string, fn func(vars map[string]any) string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[op] = fn
}

func (b *backend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.OperationName == op {
			n++
		}
	}
	return n
}

func (b *backend) last(op string) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.calls) - 1; i >= 0; i-- {
		if b.calls[i].OperationName == op {
			return b.calls[i].Variables
		}
	}
	return nil
}

type fixture struct {
	t        *testing.T
	backend  *backend
	server   *httptest.Server
	gate     *session.Gate
	board    *notice.Board
	services *Services
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	b := &backend{handlers: make(map[string]func(map[string]any) string)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			_, _ = io.Copy(io.Discard, r.Body)
			return
		}
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		b.mu.Lock()
		b.calls = append(b.calls, req)
		fn := b.handlers[req.OperationName]
		b.mu.Unlock()
		if fn == nil {
			t.Errorf("unexpected operation %s", req.OperationName)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, fn(req.Variables))
	}))
	t.Cleanup(server.Close)

	board := notice.NewBoard(nil)
	gate := session.New(session.NewMemoryStore(token), board)
	c := client.New(server.URL, gate)
	fc := fetch.New(c, cache.NewStore())
	services := New(&Env{
		Fetch:        fc,
		Dispatch:     mutate.New(fc),
		Gate:         gate,
		Notices:      board,
		Uploader:     c,
		PollInterval: 10 * time.Millisecond,
		Now:          func() time.Time { return time.UnixMilli(1700000000000) },
	})
	return &fixture{t: t, backend: b, server: server, gate: gate, board: board, services: services}
}

func data(field, value string) string {
	return `{"data":{"` + field + `":` + value + `}}`
}

func (f *fixture) keys() []string {
	var keys []string
	for _, n := range f.board.Pending() {
		keys = append(keys, n.Key)
	}
	return keys
}

func TestChats_CreateIntoEmptyList(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("GetChats", func(map[string]any) string { return data("myChats", `[]`) })
	f.backend.handle("SaveChat", func(vars map[string]any) string {
		return data("saveChat", `{"id":"c1","name":"Study","description":"d","isModerator":true,"isInvited":false,"members":[]}`)
	})

	ctx := context.Background()
	list, err := f.services.Chats.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, list)

	chat, err := f.services.Chats.Save(ctx, model.ChatInput{Name: "Study", Description: "d"}, "")
	require.NoError(t, err)
	assert.Equal(t, "c1", chat.ID)

	cached, ok := cache.Read[[]model.Chat](f.services.Store(), ChatsQuery("").Descriptor())
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, "c1", cached[0].ID)
	assert.Equal(t, 1, f.backend.count("GetChats"), "no refetch after create")
	assert.Equal(t, 1, f.backend.count("SaveChat"))
	assert.Equal(t, []string{"chats.createSuccess"}, f.keys())

	sent := f.backend.last("SaveChat")
	assert.NotContains(t, sent, "id", "create omits id")
}

func TestChats_SaveValidation(t *testing.T) {
	f := newFixture(t, "tok")
	_, err := f.services.Chats.Save(context.Background(), model.ChatInput{Name: "x"}, "")
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, []string{model.KeyRequiredFields}, f.keys())
	assert.Equal(t, 0, f.backend.count("SaveChat"))
}

func TestChats_RemoveFromEveryVariant(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("GetChats", func(vars map[string]any) string {
		return data("myChats", `[{"id":"c1","name":"Math"},{"id":"c2","name":"Mathematics"}]`)
	})
	f.backend.handle("RemoveChat", func(map[string]any) string { return data("removeChat", `{"id":"c1"}`) })

	ctx := context.Background()
	_, err := f.services.Chats.List(ctx, "")
	require.NoError(t, err)
	_, err = f.services.Chats.List(ctx, "math")
	require.NoError(t, err)

	require.NoError(t, f.services.Chats.Remove(ctx, "c1"))
	for _, search := range []string{"", "math"} {
		cached, _ := cache.Read[[]model.Chat](f.services.Store(), ChatsQuery(search).Descriptor())
		require.Len(t, cached, 1, "search %q", search)
		assert.Equal(t, "c2", cached[0].ID)
	}
}

func TestChats_MemberNotFound(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("GetMember", func(map[string]any) string { return data("user", `null`) })
	f.backend.handle("GetChats", func(map[string]any) string { return data("myChats", `[]`) })

	ctx := context.Background()
	_, err := f.services.Chats.List(ctx, "")
	require.NoError(t, err)
	var notified atomic.Int32
	defer f.services.Store().Watch(ChatsQuery("").Descriptor(), func() { notified.Add(1) })()

	members := []model.Member{{User: model.User{ID: "u2"}}}
	out, err := f.services.Chats.AddMember(ctx, members, "ghost@example.com", "u1")
	require.ErrorIs(t, err, client.ErrNotFound)
	assert.Equal(t, members, out)
	assert.Equal(t, []string{"chats.memberNotFound"}, f.keys())
	assert.Zero(t, notified.Load(), "lookup failure leaves the cached list alone")
}

func TestChats_AddMemberRejectsSelfAndDuplicate(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("GetMember", func(vars map[string]any) string {
		if vars["email"] == "me@example.com" {
			return data("user", `{"id":"u1","email":"me@example.com"}`)
		}
		return data("user", `{"id":"u2","email":"ana@example.com"}`)
	})

	ctx := context.Background()
	members := []model.Member{{User: model.User{ID: "u2"}}}

	_, err := f.services.Chats.AddMember(ctx, members, "me@example.com", "u1")
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = f.services.Chats.AddMember(ctx, members, "ana@example.com", "u1")
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, []string{model.KeyMemberSelf, model.KeyMemberDuplicate}, f.keys())
	assert.Len(t, members, 1)
}

func TestChats_SendMessageAppends(t *testing.T) {
	f := newFixture(t, "tok")
	const m1 = `{"id":"m1","content":"hi","createdAt":"2024-01-01T00:00:00Z"}`
	const m2 = `{"id":"m2","content":"hello","isCurrentUser":true,"createdAt":"2024-01-01T00:01:00Z"}`
	var saved atomic.Bool
	f.backend.handle("GetMessages", func(map[string]any) string {
		if saved.Load() {
			return data("chatMessages", `[`+m1+`,`+m2+`]`)
		}
		return data("chatMessages", `[`+m1+`]`)
	})
	f.backend.handle("SaveMessage", func(vars map[string]any) string {
		saved.Store(true)
		return data("saveMessage", m2)
	})

	ctx := context.Background()
	messages := f.services.Chats.Messages()
	defer messages.Close()
	messages.Bind(ctx, "c1")
	require.Eventually(t, func() bool { return len(messages.Items()) == 1 }, time.Second, time.Millisecond)

	scope := mutate.NewScope("c1")
	_, err := f.services.Chats.SendMessage(ctx, scope, "c1", "  hello ")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		items := messages.Items()
		return len(items) == 2 && items[1].ID == "m2"
	}, time.Second, time.Millisecond)

	input := f.backend.last("SaveMessage")["saveMessageInput"].(map[string]any)
	assert.Equal(t, "hello", input["content"])
	assert.Equal(t, "c1", input["chatId"])

	_, err = f.services.Chats.SendMessage(ctx, scope, "c1", "   ")
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestChats_RoleGuards(t *testing.T) {
	f := newFixture(t, "tok")
	ambiguous := model.Chat{ID: "c1", IsModerator: true, IsInvited: true}

	err := f.services.Chats.ManageInvitation(context.Background(), ambiguous, true)
	require.ErrorIs(t, err, model.ErrValidation)
	err = f.services.Chats.Exit(context.Background(), model.Chat{ID: "c1", IsModerator: true})
	require.ErrorIs(t, err, model.ErrValidation)

	assert.Equal(t, []string{model.KeyRoleAmbiguous, model.KeyNotAllowed}, f.keys())
	assert.Equal(t, 0, f.backend.count("ManageInvitation")+f.backend.count("ExitChat"))
}

func TestChats_ExitRefetches(t *testing.T) {
	f := newFixture(t, "tok")
	reads := 0
	f.backend.handle("GetChats", func(map[string]any) string {
		reads++
		if reads == 1 {
			return data("myChats", `[{"id":"c1","name":"A"}]`)
		}
		return data("myChats", `[]`)
	})
	f.backend.handle("ExitChat", func(map[string]any) string { return data("exitChat", `true`) })

	ctx := context.Background()
	list, err := f.services.Chats.List(ctx, "")
	require.NoError(t, err)
	require.NoError(t, f.services.Chats.Exit(ctx, list[0]))

	cached, _ := cache.Read[[]model.Chat](f.services.Store(), ChatsQuery("").Descriptor())
	assert.Empty(t, cached)
	assert.Equal(t, 2, f.backend.count("GetChats"))
}

func TestChats_MarkRead(t *testing.T) {
	f := newFixture(t, "tok")
	f.services.Store().Write(ChatsQuery("").Descriptor(), []model.Chat{{ID: "c1"}, {ID: "c2"}})

	f.services.Chats.MarkRead("c2")
	cached, _ := cache.Read[[]model.Chat](f.services.Store(), ChatsQuery("").Descriptor())
	assert.False(t, cached[0].HasRead)
	assert.True(t, cached[1].HasRead)
}

func TestGoals_ToggleTaskChangesOneTask(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("MyGoals", func(map[string]any) string {
		return data("myGoals", `[
			{"id":"g1","name":"Read","tasks":[{"name":"a"},{"name":"b"},{"name":"c"},{"name":"d"}]},
			{"id":"g2","name":"Write","tasks":[{"name":"x"},{"name":"y"},{"name":"z"}]}
		]`)
	})
	f.backend.handle("ToggleTask", func(vars map[string]any) string {
		return data("toggleTask", `{"goalId":"g1","taskId":2,"completed":true}`)
	})

	ctx := context.Background()
	before, err := f.services.Goals.List(ctx)
	require.NoError(t, err)

	res, err := f.services.Goals.ToggleTask(ctx, "g1", 2)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.EqualValues(t, 2, f.backend.last("ToggleTask")["taskId"])

	after, _ := cache.Read[[]model.Goal](f.services.Store(), GoalsQuery().Descriptor())
	for i, task := range after[0].Tasks {
		if i == 2 {
			assert.True(t, task.Completed)
			continue
		}
		assert.Equal(t, before[0].Tasks[i], task, "task %d changed", i)
	}
	assert.Equal(t, before[1], after[1], "other goal changed")
	assert.False(t, before[0].Tasks[2].Completed, "earlier result mutated")
	assert.Equal(t, 25, after[0].Progress())
}

func TestGoals_SaveAndDelete(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("MyGoals", func(map[string]any) string { return data("myGoals", `[]`) })
	f.backend.handle("SaveGoal", func(map[string]any) string {
		return data("saveGoal", `{"id":"g1","name":"Read","tasks":[{"name":"a","link":"https://example.com"}]}`)
	})
	f.backend.handle("DeleteGoal", func(map[string]any) string { return data("deleteGoal", `true`) })

	ctx := context.Background()
	_, err := f.services.Goals.List(ctx)
	require.NoError(t, err)

	_, err = f.services.Goals.Save(ctx, model.GoalInput{Name: "Read", Tasks: []model.Task{{Name: "a", Link: "notaurl"}}}, "")
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.services.Goals.Save(ctx, model.GoalInput{Name: "Read", Tasks: []model.Task{{Name: "a", Link: "https://example.com"}}}, "")
	require.NoError(t, err)
	cached, _ := cache.Read[[]model.Goal](f.services.Store(), GoalsQuery().Descriptor())
	require.Len(t, cached, 1)

	require.NoError(t, f.services.Goals.Delete(ctx, "g1"))
	cached, _ = cache.Read[[]model.Goal](f.services.Store(), GoalsQuery().Descriptor())
	assert.Empty(t, cached)
	assert.Equal(t, []string{model.KeyInvalidURL, "goals.createSuccess", "goals.deleteSuccess"}, f.keys())
}

func TestPosts_CommentUpdatesCount(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("GetPosts", func(map[string]any) string {
		return data("posts", `[{"id":"p1","title":"T","commentsCount":1}]`)
	})
	f.backend.handle("GetComments", func(map[string]any) string {
		return data("getComments", `[{"id":"k1","content":"first"}]`)
	})
	f.backend.handle("CreateComment", func(map[string]any) string {
		return data("createComment", `{"id":"k2","content":"second"}`)
	})
	f.backend.handle("DeleteComment", func(map[string]any) string { return data("deleteComment", `{"id":"k1"}`) })

	ctx := context.Background()
	_, err := f.services.Posts.List(ctx, PostFilter{SearchFilter: SearchFilterAll})
	require.NoError(t, err)
	assert.Nil(t, f.backend.last("GetPosts"), "the all filter sends no variables")
	_, err = f.services.Posts.Comments(ctx, "p1")
	require.NoError(t, err)

	_, err = f.services.Posts.CreateComment(ctx, "p1", "second")
	require.NoError(t, err)
	posts, _ := cache.Read[[]model.Post](f.services.Store(), PostsQuery(PostFilter{}).Descriptor())
	assert.Equal(t, 2, posts[0].CommentsCount)

	require.NoError(t, f.services.Posts.DeleteComment(ctx, "p1", "k1"))
	comments, _ := cache.Read[[]model.Comment](f.services.Store(), CommentsQuery("p1").Descriptor())
	require.Len(t, comments, 1)
	assert.Equal(t, "k2", comments[0].ID)
	posts, _ = cache.Read[[]model.Post](f.services.Store(), PostsQuery(PostFilter{}).Descriptor())
	assert.Equal(t, 1, posts[0].CommentsCount)
}

func TestPosts_CreateAppendsToUnfilteredList(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("GetPosts", func(vars map[string]any) string {
		if len(vars) > 0 {
			return data("posts", `[]`)
		}
		return data("posts", `[{"id":"p1","title":"First"}]`)
	})
	f.backend.handle("SavePost", func(map[string]any) string {
		return data("savePost", `{"id":"p2","title":"Second","subject":"math","description":"d"}`)
	})

	ctx := context.Background()
	_, err := f.services.Posts.List(ctx, PostFilter{})
	require.NoError(t, err)
	_, err = f.services.Posts.List(ctx, PostFilter{SearchTerm: "calc"})
	require.NoError(t, err)

	_, err = f.services.Posts.Save(ctx, model.PostInput{Title: "Second", Subject: "math", Description: "d"}, "")
	require.NoError(t, err)

	posts, _ := cache.Read[[]model.Post](f.services.Store(), PostsQuery(PostFilter{}).Descriptor())
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"p1", "p2"}, ids)
	filtered, _ := cache.Read[[]model.Post](f.services.Store(), PostsQuery(PostFilter{SearchTerm: "calc"}).Descriptor())
	assert.Empty(t, filtered, "filtered lists are not patched on create")
	assert.Equal(t, 2, f.backend.count("GetPosts"), "no refetch after create")
}

func TestPosts_ReportRequiresReason(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("CreateReport", func(map[string]any) string { return data("createReport", `{"id":"r1"}`) })

	ctx := context.Background()
	err := f.services.Posts.Report(ctx, model.ReportInput{Entity: "Post", EntityID: "p1"})
	require.ErrorIs(t, err, model.ErrValidation)
	require.NoError(t, f.services.Posts.Report(ctx, model.ReportInput{Entity: "Post", EntityID: "p1", Reason: "spam"}))
	assert.Equal(t, 1, f.backend.count("CreateReport"))
}

func TestNotifications_MarkAllRead(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("MyNotifications", func(vars map[string]any) string {
		return data("myNotifications", `[{"id":"n2","message":"b"},{"id":"n1","message":"a","read":true}]`)
	})
	f.backend.handle("MarkAllNotificationsRead", func(map[string]any) string { return data("markAllNotificationsAsRead", `true`) })

	ctx := context.Background()
	list, err := f.services.Notifications.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, Unread(list))
	assert.EqualValues(t, DefaultNotificationLimit, f.backend.last("MyNotifications")["limit"])

	require.NoError(t, f.services.Notifications.MarkAllRead(ctx))
	cached, _ := cache.Read[[]model.Notification](f.services.Store(), NotificationsQuery(DefaultNotificationLimit).Descriptor())
	assert.Equal(t, 0, Unread(cached))
}

func TestProfile_UploadImage(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("Me", func(map[string]any) string { return data("me", `{"id":"u1","name":"Ana"}`) })
	f.backend.handle("GetPresignedUrl", func(vars map[string]any) string {
		return data("getPresignedUrl", `{"uploadUrl":"`+f.server.URL+`/upload","publicUrl":"https://cdn.example.com/u1.png"}`)
	})
	f.backend.handle("UpdateMe", func(vars map[string]any) string {
		userData := vars["userData"].(map[string]any)
		return data("updateMe", `{"id":"u1","name":"Ana","profileImageUrl":"`+userData["profileImageUrl"].(string)+`"}`)
	})

	ctx := context.Background()
	_, err := f.services.Profile.Me(ctx)
	require.NoError(t, err)

	u, display, err := f.services.Profile.UploadImage(ctx, "image/png", strings.NewReader("PNG"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/u1.png", u.ProfileImageURL)
	assert.Equal(t, "https://cdn.example.com/u1.png?v=1700000000000", display)

	me, err := f.services.Profile.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, u, me)
	assert.Equal(t, 1, f.backend.count("Me"), "Me served from cache")

	_, _, err = f.services.Profile.UploadImage(ctx, "text/plain", strings.NewReader("x"))
	require.Error(t, err)
}

func TestAuth_LoginAndLogout(t *testing.T) {
	f := newFixture(t, "")
	f.backend.handle("Login", func(vars map[string]any) string { return data("login", `{"token":"t1"}`) })
	f.backend.handle("MyGoals", func(map[string]any) string { return data("myGoals", `[]`) })

	ctx := context.Background()
	_, err := f.services.Goals.List(ctx)
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Equal(t, 0, f.backend.count("MyGoals"))

	require.NoError(t, f.services.Auth.Login(ctx, model.LoginInput{Email: " ana@example.com ", Password: "abc12345"}))
	assert.Equal(t, "t1", f.gate.Token())
	login := f.backend.last("Login")["userLoginData"].(map[string]any)
	assert.Equal(t, "ana@example.com", login["email"])

	_, err = f.services.Goals.List(ctx)
	require.NoError(t, err)
	require.True(t, f.services.Store().Has(GoalsQuery().Descriptor()))

	require.NoError(t, f.services.Auth.Logout())
	assert.False(t, f.gate.SignedIn())
	assert.False(t, f.services.Store().Has(GoalsQuery().Descriptor()), "logout resets the cache")
}

func TestAuth_ExpiredSessionNoticeOnce(t *testing.T) {
	f := newFixture(t, "tok")
	f.backend.handle("MyGoals", func(map[string]any) string {
		return `{"errors":[{"message":"Unauthorized","extensions":{"code":"UNAUTHENTICATED"}}]}`
	})
	f.backend.handle("GetChats", func(map[string]any) string {
		return `{"errors":[{"message":"Unauthorized","extensions":{"code":"UNAUTHENTICATED"}}]}`
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = f.services.Goals.List(ctx) }()
	go func() { defer wg.Done(); _, _ = f.services.Chats.List(ctx, "") }()
	wg.Wait()

	assert.False(t, f.gate.SignedIn())
	assert.Equal(t, []string{session.KeyExpired}, f.keys())
}
