package rest

import "github.com/codevelop/roomchat-go/roomchat"

// Query parameter names understood by the history endpoints.
const (
	paramRoomID = "ChatRoomId"
	paramPage   = "page"
)

// Endpoint paths relative to the API base URL.
const (
	pathMessages   = "/message"
	pathSelectRoom = "/selectroom"
)

// MessagesResponse wraps a list of messages, oldest first.
type MessagesResponse struct {
	Data []roomchat.Message `json:"data"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e ErrorResponse) text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}
