package entity

// UserProfile carries the per-user state the engine subscribes to.
// Block relationships are asymmetric: each side keeps its own
// blockedUsers set on its own profile document.
type UserProfile struct {
	Id           string   `bson:"_id" json:"id"`
	BlockedUsers []string `bson:"blockedUsers" json:"blockedUsers"`
}

// HasBlocked reports whether userId is in this profile's blocked set.
func (u UserProfile) HasBlocked(userId string) bool {
	for _, id := range u.BlockedUsers {
		if id == userId {
			return true
		}
	}
	return false
}
