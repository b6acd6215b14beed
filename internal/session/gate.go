// Package session owns the authentication credential.
//
// The Gate is the single holder of the session token. Every outbound call
// reads the token at call time, so a token change is visible to the very
// next request. When the backend rejects the credential, Invalidate clears
// it exactly once no matter how many calls fail concurrently.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/glasserstudy/glasser/internal/client"
	"github.com/glasserstudy/glasser/internal/notice"
)

// Notice keys emitted on invalidation.
const (
	KeyExpired = "session.expired"
	KeyBlocked = "session.blocked"
)

// Gate holds the session token.
type Gate struct {
	mu          sync.Mutex
	token       string
	store       Store
	sink        notice.Sink
	subscribers map[int]func(token string)
	nextSub     int

	// Now is the clock used for JWT expiry checks.
	Now func() time.Time
}

// New creates a gate initialized from store. A stored JWT that has already
// expired is treated as absent and cleared.
func New(store Store, sink notice.Sink) *Gate {
	if sink == nil {
		sink = notice.Discard
	}
	g := &Gate{
		store:       store,
		sink:        sink,
		subscribers: make(map[int]func(string)),
		Now:         time.Now,
	}

	token, err := store.Load()
	if err != nil {
		glog.Warningf("session: loading stored token: %v", err)
		token = ""
	}
	if c, ok := ParseClaims(token); ok && c.Expired(g.Now()) {
		glog.V(1).Infof("session: stored token expired at %s", c.ExpiresAt.Format(time.RFC3339))
		if err := store.Clear(); err != nil {
			glog.Warningf("session: clearing expired token: %v", err)
		}
		token = ""
	}
	g.token = token
	return g
}

// Token returns the current token, or "" when signed out.
func (g *Gate) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token
}

// SignedIn reports whether a token is present.
func (g *Gate) SignedIn() bool {
	return g.Token() != ""
}

// Claims returns the unverified claims of the current token.
func (g *Gate) Claims() (Claims, bool) {
	return ParseClaims(g.Token())
}

// SetToken stores v, or signs out when v is empty.
func (g *Gate) SetToken(v string) error {
	g.mu.Lock()
	if g.token == v {
		g.mu.Unlock()
		return nil
	}
	g.token = v
	subs := g.snapshot()
	err := g.store.Save(v)
	g.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
	return err
}

// Invalidate clears token because the backend rejected it. A token that is
// no longer current is ignored. It returns true only for the call that moved
// the gate from signed in to signed out; that call alone emits a notice.
func (g *Gate) Invalidate(token string, cause error) bool {
	g.mu.Lock()
	if g.token == "" || g.token != token {
		g.mu.Unlock()
		if token != "" {
			glog.V(1).Infof("session: ignoring rejection of a replaced token: %v", cause)
		}
		return false
	}
	g.token = ""
	subs := g.snapshot()
	if err := g.store.Clear(); err != nil {
		glog.Warningf("session: clearing token: %v", err)
	}
	g.mu.Unlock()

	key := KeyExpired
	if errors.Is(cause, client.ErrBlocked) {
		key = KeyBlocked
	}
	glog.Infof("session: invalidated: %v", cause)
	g.sink.Notify(notice.Notice{Kind: notice.Error, Key: key})

	for _, fn := range subs {
		fn("")
	}
	return true
}

// Subscribe registers fn to be called after every token change.
func (g *Gate) Subscribe(fn func(token string)) (cancel func()) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subscribers[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.subscribers, id)
		g.mu.Unlock()
	}
}

// snapshot must be called with mu held.
func (g *Gate) snapshot() []func(string) {
	subs := make([]func(string), 0, len(g.subscribers))
	for _, fn := range g.subscribers {
		subs = append(subs, fn)
	}
	return subs
}
