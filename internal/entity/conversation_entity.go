package entity

import (
	"sort"
	"strings"
	"time"
)

// Conversation is the metadata document for a two-party conversation.
// It may not exist yet: the backend creates it on the first confirmed
// send, so absence is a meaningful state, not an error.
type Conversation struct {
	Id            string          `bson:"_id" json:"id"`
	Participants  []string        `bson:"participants" json:"participants"`
	LastMessage   *MessageSnippet `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	LastUpdatedAt time.Time       `bson:"lastUpdatedAt" json:"lastUpdatedAt"`
	UnreadCounts  map[string]int  `bson:"unreadCounts" json:"unreadCounts"`
	Typing        map[string]bool `bson:"typing" json:"typing"`
}

type MessageSnippet struct {
	Text      string    `bson:"text" json:"text"`
	SenderId  string    `bson:"senderId" json:"senderId"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// ConversationId returns the canonical conversation id for a pair of
// users. Participants are sorted so both orderings map to the same id.
func ConversationId(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

// SortedParticipants returns the canonical participant ordering.
func SortedParticipants(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

// Other returns the participant that is not userId.
func (c Conversation) Other(userId string) string {
	for _, p := range c.Participants {
		if p != userId {
			return p
		}
	}
	return ""
}

// UnreadFor returns the unread count for a user, zero when absent.
func (c Conversation) UnreadFor(userId string) int {
	return c.UnreadCounts[userId]
}
