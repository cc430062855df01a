package repository

import (
	"context"

	"chatsync/infrastructure/store"
	"chatsync/internal/entity"

	"go.mongodb.org/mongo-driver/bson"
)

const usersCollection = "users"

// ProfileSnapshot is one delivery from a profile watch. A user who has
// never blocked anyone may have no profile document at all.
type ProfileSnapshot struct {
	Exists  bool
	Profile entity.UserProfile
}

type UserRepository interface {
	WatchProfile(ctx context.Context, userId string) (<-chan ProfileSnapshot, func(), error)

	// AddBlockedUser upserts: it must succeed even when the user's
	// profile document has never been created.
	AddBlockedUser(ctx context.Context, userId, blockedId string) error

	// RemoveBlockedUser updates an existing document and fails when it
	// is absent; you can only unblock someone you previously blocked.
	RemoveBlockedUser(ctx context.Context, userId, blockedId string) error
}

type userRepository struct {
	store store.Store
}

func NewUserRepository(s store.Store) UserRepository {
	return &userRepository{store: s}
}

func (r *userRepository) WatchProfile(ctx context.Context, userId string) (<-chan ProfileSnapshot, func(), error) {
	src, cancel, err := r.store.WatchDoc(ctx, store.DocPath(usersCollection, userId))
	if err != nil {
		return nil, nil, err
	}

	out := make(chan ProfileSnapshot, 1)
	go func() {
		defer close(out)
		for snap := range src {
			decoded := ProfileSnapshot{}
			if snap.Exists {
				var profile entity.UserProfile
				if err := snap.Decode(&profile); err == nil {
					decoded = ProfileSnapshot{Exists: true, Profile: profile}
				}
			}
			out <- decoded
		}
	}()
	return out, cancel, nil
}

func (r *userRepository) AddBlockedUser(ctx context.Context, userId, blockedId string) error {
	data := bson.M{"blockedUsers": store.ArrayUnion(blockedId)}
	return r.store.Set(ctx, store.DocPath(usersCollection, userId), data, true)
}

func (r *userRepository) RemoveBlockedUser(ctx context.Context, userId, blockedId string) error {
	patch := bson.M{"blockedUsers": store.ArrayRemove(blockedId)}
	return r.store.Update(ctx, store.DocPath(usersCollection, userId), patch)
}
