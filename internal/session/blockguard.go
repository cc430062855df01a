package session

import (
	"context"
	"encoding/json"
	"sync"

	"chatsync/internal/repository"

	"go.uber.org/zap"
)

// BlockState collapses the two independent block booleans into one
// deterministic enum so compose gating has a single source of truth.
type BlockState int

const (
	BlockUnknown BlockState = iota
	BlockAllowed
	BlockedByMe
	BlockedByOther
	BlockedMutually
)

func (b BlockState) String() string {
	switch b {
	case BlockAllowed:
		return "allowed"
	case BlockedByMe:
		return "blockedByMe"
	case BlockedByOther:
		return "blockedByOther"
	case BlockedMutually:
		return "blockedMutually"
	default:
		return "unknown"
	}
}

func (b BlockState) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON maps the wire labels back to the enum so decoded view
// frames round-trip. An unrecognized label degrades to BlockUnknown,
// the state every consumer already renders conservatively.
func (b *BlockState) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	switch label {
	case "allowed":
		*b = BlockAllowed
	case "blockedByMe":
		*b = BlockedByMe
	case "blockedByOther":
		*b = BlockedByOther
	case "blockedMutually":
		*b = BlockedMutually
	default:
		*b = BlockUnknown
	}
	return nil
}

// RelationshipGuard derives block state from two independent profile
// subscriptions: the own document decides blockedByMe, the peer's
// decides blockedByOther. The two may be momentarily inconsistent with
// each other; that staleness is accepted, not corrected.
type RelationshipGuard struct {
	self string
	peer string
	repo repository.UserRepository
	log  *zap.Logger

	// notify fires outside the lock whenever the derived state changes
	// hands. Set once before Run.
	notify func(BlockState)

	mu             sync.Mutex
	ownKnown       bool
	peerKnown      bool
	blockedByMe    bool
	blockedByOther bool
}

func NewRelationshipGuard(repo repository.UserRepository, self, peer string, log *zap.Logger) *RelationshipGuard {
	return &RelationshipGuard{
		self: self,
		peer: peer,
		repo: repo,
		log:  log,
	}
}

// Run opens both profile subscriptions. A failed subscription logs and
// leaves that direction on its fail-open default (not blocked).
func (g *RelationshipGuard) Run(ctx context.Context, done <-chan struct{}) func() {
	cancelOwn := g.watch(ctx, g.self, done, func(snap repository.ProfileSnapshot) {
		g.mu.Lock()
		g.ownKnown = true
		g.blockedByMe = snap.Exists && snap.Profile.HasBlocked(g.peer)
		state := g.deriveLocked()
		g.mu.Unlock()
		g.changed(state)
	})
	cancelPeer := g.watch(ctx, g.peer, done, func(snap repository.ProfileSnapshot) {
		g.mu.Lock()
		g.peerKnown = true
		g.blockedByOther = snap.Exists && snap.Profile.HasBlocked(g.self)
		state := g.deriveLocked()
		g.mu.Unlock()
		g.changed(state)
	})

	return func() {
		cancelOwn()
		cancelPeer()
	}
}

func (g *RelationshipGuard) watch(ctx context.Context, userId string, done <-chan struct{}, apply func(repository.ProfileSnapshot)) func() {
	ch, cancel, err := g.repo.WatchProfile(ctx, userId)
	if err != nil {
		g.log.Error("profile subscription failed", zap.String("userId", userId), zap.Error(err))
		apply(repository.ProfileSnapshot{})
		return func() {}
	}

	go func() {
		for snap := range ch {
			select {
			case <-done:
				return
			default:
			}
			apply(snap)
		}
	}()
	return cancel
}

// State returns the current derived block state.
func (g *RelationshipGuard) State() BlockState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deriveLocked()
}

// IsBlockedByYou reports whether the local user has blocked the peer.
func (g *RelationshipGuard) IsBlockedByYou() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blockedByMe
}

// IsBlockedByOther reports whether the peer has blocked the local user.
// Only the other party can lift this.
func (g *RelationshipGuard) IsBlockedByOther() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blockedByOther
}

// Toggle blocks or unblocks the peer. Blocking upserts the own profile
// document, so it succeeds even when the document has never been
// created; unblocking updates an existing document and fails when it is
// absent. The local flag flips immediately on success so compose gating
// does not wait for the snapshot round-trip.
func (g *RelationshipGuard) Toggle(ctx context.Context) error {
	g.mu.Lock()
	blocked := g.blockedByMe
	g.mu.Unlock()

	var err error
	if blocked {
		err = g.repo.RemoveBlockedUser(ctx, g.self, g.peer)
	} else {
		err = g.repo.AddBlockedUser(ctx, g.self, g.peer)
	}
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.ownKnown = true
	g.blockedByMe = !blocked
	state := g.deriveLocked()
	g.mu.Unlock()
	g.changed(state)
	return nil
}

func (g *RelationshipGuard) deriveLocked() BlockState {
	if !g.ownKnown || !g.peerKnown {
		return BlockUnknown
	}
	switch {
	case g.blockedByMe && g.blockedByOther:
		return BlockedMutually
	case g.blockedByMe:
		return BlockedByMe
	case g.blockedByOther:
		return BlockedByOther
	default:
		return BlockAllowed
	}
}

func (g *RelationshipGuard) changed(state BlockState) {
	if g.notify != nil {
		g.notify(state)
	}
}
