package roomchat

import "context"

// HistoryFetcher retrieves persisted messages for a room.
// Both methods return messages oldest first.
type HistoryFetcher interface {
	// FetchPage returns one page of older history. Page 0 is the most recent one.
	FetchPage(ctx context.Context, room RoomID, page int) ([]Message, error)
	// FetchInitial returns the recent snapshot shown when a room is opened.
	FetchInitial(ctx context.Context, room RoomID) ([]Message, error)
}

// PaginationCursor tracks the last history page requested for a room.
type PaginationCursor struct {
	Room RoomID
	Page int
}
