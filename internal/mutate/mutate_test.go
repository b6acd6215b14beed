package mutate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/client"
	"github.com/glasserstudy/glasser/internal/fetch"
)

type chat struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c chat) EntityID() string { return c.ID }

// scriptedDoer answers by operation name and records every call.
type scriptedDoer struct {
	mu      sync.Mutex
	calls   []string
	answers map[string]any
	errs    map[string]error
	during  func()
}

func (s *scriptedDoer) Token() string { return "tok" }

func (s *scriptedDoer) DoField(ctx context.Context, op client.Operation, vars map[string]any, field string, out any) error {
	s.mu.Lock()
	s.calls = append(s.calls, op.Name)
	during := s.during
	s.mu.Unlock()
	if during != nil {
		during()
	}
	if err := s.errs[op.Name]; err != nil {
		return err
	}
	b, _ := json.Marshal(s.answers[op.Name])
	return json.Unmarshal(b, out)
}

var (
	getChats = fetch.Query[[]chat]{
		Operation: client.Operation{Name: "GetChats", Document: "query GetChats { myChats { id name } }"},
		Field:     "myChats",
	}
	saveChat = client.Operation{Name: "SaveChat", Document: "mutation SaveChat { saveChat { id name } }"}
)

func setup(doer *scriptedDoer) (*Dispatcher, *cache.Store) {
	store := cache.NewStore()
	return New(fetch.New(doer, store)), store
}

func upsertChat(store *cache.Store, c chat) {
	cache.Apply(store, getChats.Descriptor(), cache.Upsert(c))
}

func TestDispatch_PatchesBeforeReturn(t *testing.T) {
	doer := &scriptedDoer{answers: map[string]any{"SaveChat": chat{ID: "c1", Name: "Math"}}}
	d, store := setup(doer)
	store.Write(getChats.Descriptor(), []chat{})

	got, err := Dispatch(context.Background(), d, Mutation[chat]{
		Operation: saveChat,
		Field:     "saveChat",
		Patch:     upsertChat,
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)

	cached, _ := cache.Read[[]chat](store, getChats.Descriptor())
	assert.Equal(t, []chat{{ID: "c1", Name: "Math"}}, cached)
	assert.Equal(t, []string{"SaveChat"}, doer.calls, "exactly one network call")
}

func TestDispatch_FailureLeavesCache(t *testing.T) {
	boom := errors.New("boom")
	doer := &scriptedDoer{errs: map[string]error{"SaveChat": boom}}
	d, store := setup(doer)
	store.Write(getChats.Descriptor(), []chat{{ID: "c0"}})
	notified := 0
	defer store.Watch(getChats.Descriptor(), func() { notified++ })()

	patched := false
	_, err := Dispatch(context.Background(), d, Mutation[chat]{
		Operation: saveChat,
		Field:     "saveChat",
		Patch:     func(*cache.Store, chat) { patched = true },
		Refetch:   []fetch.Runner{getChats},
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, patched)
	assert.Zero(t, notified)
	cached, _ := cache.Read[[]chat](store, getChats.Descriptor())
	assert.Equal(t, []chat{{ID: "c0"}}, cached)
	assert.Equal(t, []string{"SaveChat"}, doer.calls, "no refetch after failure")
}

func TestDispatch_StaleScopeDropsPatch(t *testing.T) {
	scope := NewScope("chat-a")
	doer := &scriptedDoer{answers: map[string]any{"SaveChat": chat{ID: "m1"}}}
	// The user switches conversations while the write is in flight.
	doer.during = func() { scope.Set("chat-b") }
	d, store := setup(doer)
	store.Write(getChats.Descriptor(), []chat{})

	got, err := Dispatch(context.Background(), d, Mutation[chat]{
		Operation: saveChat,
		Field:     "saveChat",
		Patch:     upsertChat,
		Scope:     scope,
		ScopeKey:  "chat-a",
	})
	require.NoError(t, err, "a dropped patch is not a failed write")
	assert.Equal(t, "m1", got.ID)

	cached, _ := cache.Read[[]chat](store, getChats.Descriptor())
	assert.Empty(t, cached)
}

func TestDispatch_RefetchOnlyCached(t *testing.T) {
	doer := &scriptedDoer{answers: map[string]any{
		"ExitChat": true,
		"GetChats": []chat{{ID: "c2"}},
	}}
	d, store := setup(doer)
	exit := client.Operation{Name: "ExitChat", Document: "mutation ExitChat($id: String!) { exitChat(id: $id) }"}

	_, err := Dispatch(context.Background(), d, Mutation[bool]{Operation: exit, Field: "exitChat", Refetch: getChats.Variants(store)})
	require.NoError(t, err)
	assert.Equal(t, []string{"ExitChat"}, doer.calls, "nothing cached, nothing refetched")

	search := getChats
	search.Vars = map[string]any{"search": "math"}
	store.Write(search.Descriptor(), []chat{{ID: "c1"}})
	doer.calls = nil

	_, err = Dispatch(context.Background(), d, Mutation[bool]{Operation: exit, Field: "exitChat", Refetch: getChats.Variants(store)})
	require.NoError(t, err)
	assert.Equal(t, []string{"ExitChat", "GetChats"}, doer.calls)

	cached, _ := cache.Read[[]chat](store, search.Descriptor())
	assert.Equal(t, []chat{{ID: "c2"}}, cached)
}

func TestDispatch_InFlight(t *testing.T) {
	var d *Dispatcher
	var seen int
	doer := &scriptedDoer{answers: map[string]any{"SaveChat": chat{ID: "c1"}}}
	doer.during = func() { seen = d.InFlight() }
	d, _ = setup(doer)

	_, err := Dispatch(context.Background(), d, Mutation[chat]{Operation: saveChat, Field: "saveChat"})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
	assert.Equal(t, 0, d.InFlight())
}
