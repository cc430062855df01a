package websocket

import "chatsync/internal/session"

type ViewFrame struct {
	Type string            `json:"type"`
	View session.ViewState `json:"view"`
}

type ListFrame struct {
	Type  string                         `json:"type"`
	Items []session.ConversationListItem `json:"items"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
