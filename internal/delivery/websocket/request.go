package websocket

// Command is one client frame. Action selects the field set:
//
//	draft          text (the current composer content; attachments
//	               cannot travel over this surface — a client sending
//	               files uses POST /messages directly, which accepts
//	               text and attachments in one multipart request)
//	send           -
//	keystroke      -
//	blur           -
//	edit           messageId, text
//	delete         messageId, confirmed
//	toggleBlock    -
//	markReadUnread conversationId, markUnread (list connections only)
type Command struct {
	Action         string `json:"action"`
	Text           string `json:"text,omitempty"`
	MessageId      string `json:"messageId,omitempty"`
	Confirmed      bool   `json:"confirmed,omitempty"`
	ConversationId string `json:"conversationId,omitempty"`
	MarkUnread     bool   `json:"markUnread,omitempty"`
}
