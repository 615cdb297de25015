package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	taskboardsdk "taskboard/sdk/go"
)

// IdentitySource emits the signed-in user (nil when signed out). fn may be
// called synchronously from OnAuthStateChanged.
type IdentitySource interface {
	OnAuthStateChanged(fn func(*taskboardsdk.User)) (unsubscribe func())
}

// TokenSource returns a fresh id token for the current user.
type TokenSource interface {
	IDToken(ctx context.Context) (string, error)
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	Identity *taskboardsdk.User
	Token    string
	// Loading is true until the identity source's first emission.
	Loading bool
}

// Authenticated reports whether both identity and token are present.
func (s Snapshot) Authenticated() bool {
	return s.Identity != nil && s.Token != ""
}

type eventKind int

const (
	identityChanged eventKind = iota
	tokenFetched
	refreshRequested
)

type event struct {
	kind  eventKind
	user  *taskboardsdk.User
	gen   uint64
	token string
	err   error
}

// Provider owns session state in a single goroutine and publishes snapshots
// to subscribers with latest-value semantics.
type Provider struct {
	source IdentitySource
	tokens TokenSource
	log    zerolog.Logger
	events chan event

	mu      sync.Mutex
	current Snapshot
	subs    map[int]chan Snapshot
	nextID  int
	closed  bool

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	unsub     func()
	done      chan struct{}
}

func New(source IdentitySource, tokens TokenSource, log zerolog.Logger) *Provider {
	return &Provider{
		source:  source,
		tokens:  tokens,
		log:     log.With().Str("component", "session").Logger(),
		events:  make(chan event, 16),
		current: Snapshot{Loading: true},
		subs:    map[int]chan Snapshot{},
		done:    make(chan struct{}),
	}
}

// Start subscribes to the identity source. The provider runs until ctx is
// cancelled or Stop is called.
func (p *Provider) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		go p.run(ctx)
		p.unsub = p.source.OnAuthStateChanged(func(u *taskboardsdk.User) {
			p.send(ctx, event{kind: identityChanged, user: u})
		})
	})
}

// Stop unsubscribes from the identity source and closes subscriber channels.
func (p *Provider) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel == nil {
			p.closeSubscribers()
			return
		}
		if p.unsub != nil {
			p.unsub()
		}
		p.cancel()
		<-p.done
	})
}

// RefreshToken asks for a new token for the current identity.
func (p *Provider) RefreshToken(ctx context.Context) {
	p.send(ctx, event{kind: refreshRequested})
}

// Current returns the latest snapshot.
func (p *Provider) Current() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe returns a channel that immediately holds the current snapshot and
// then receives every newer one. A slow reader only sees the latest value.
func (p *Provider) Subscribe() (<-chan Snapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- p.current
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
}

func (p *Provider) send(ctx context.Context, ev event) {
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}

func (p *Provider) run(ctx context.Context) {
	defer close(p.done)
	defer p.closeSubscribers()

	var gen uint64
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			snap := p.Current()
			switch ev.kind {
			case identityChanged:
				gen++
				next := Snapshot{Identity: ev.user}
				if ev.user != nil && snap.Identity != nil && snap.Identity.UID == ev.user.UID {
					next.Token = snap.Token
				}
				p.publish(next)
				if ev.user != nil {
					p.fetchToken(ctx, gen)
				}
			case refreshRequested:
				if snap.Identity != nil {
					p.fetchToken(ctx, gen)
				}
			case tokenFetched:
				if ev.gen != gen {
					p.log.Debug().Uint64("gen", ev.gen).Uint64("current", gen).Msg("discarding stale token")
					continue
				}
				if ev.err != nil {
					p.log.Warn().Err(ev.err).Msg("token fetch failed")
					continue
				}
				snap.Token = ev.token
				p.publish(snap)
			}
		}
	}
}

func (p *Provider) fetchToken(ctx context.Context, gen uint64) {
	go func() {
		tok, err := p.tokens.IDToken(ctx)
		p.send(ctx, event{kind: tokenFetched, gen: gen, token: tok, err: err})
	}()
}

func (p *Provider) publish(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = s
	for _, ch := range p.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (p *Provider) closeSubscribers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}
