package entity

import "time"

// Message is a single message document. Messages are never physically
// removed; delete clears content and sets isDeleted so ordering and
// read-receipt history survive.
type Message struct {
	Id              string     `bson:"_id" json:"id"`
	ConversationId  string     `bson:"conversationId" json:"conversationId"`
	SenderId        string     `bson:"senderId" json:"senderId"`
	Text            string     `bson:"text" json:"text"`
	AttachmentUrls  []string   `bson:"attachmentUrls,omitempty" json:"attachmentUrls,omitempty"`
	AttachmentTypes []string   `bson:"attachmentTypes,omitempty" json:"attachmentTypes,omitempty"`
	Timestamp       time.Time  `bson:"timestamp" json:"timestamp"`
	ReadBy          []string   `bson:"readBy" json:"readBy"`
	EditedAt        *time.Time `bson:"editedAt,omitempty" json:"editedAt,omitempty"`
	IsDeleted       bool       `bson:"isDeleted" json:"isDeleted"`
}

// ReadByUser reports whether userId is in the readBy set.
func (m Message) ReadByUser(userId string) bool {
	for _, id := range m.ReadBy {
		if id == userId {
			return true
		}
	}
	return false
}

// Attachment is an uploaded file travelling with a send request.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}
