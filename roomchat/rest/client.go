package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/codevelop/roomchat-go/roomchat"
)

// Client fetches chat history over HTTP. It implements roomchat.HistoryFetcher.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ roomchat.HistoryFetcher = (*Client)(nil)

// NewClient creates a new REST API client.
// baseURL should be the base URL of the API, e.g., "https://example.com/api/v1".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zerolog.Nop(),
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetToken sets the token sent in the Authorization header.
func (c *Client) SetToken(token string) {
	c.token = token
}

// SetLogger overrides logger (optional).
func (c *Client) SetLogger(l zerolog.Logger) {
	c.logger = l.With().Str(roomchat.FieldComponent, "history").Logger()
}

// FetchPage retrieves one page of older messages for room. Page 0 is the newest page.
func (c *Client) FetchPage(ctx context.Context, room roomchat.RoomID, page int) ([]roomchat.Message, error) {
	q := url.Values{}
	q.Set(paramRoomID, string(room))
	q.Set(paramPage, strconv.Itoa(page))

	var resp MessagesResponse
	if err := c.get(ctx, pathMessages, q, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug().Str(roomchat.FieldRoomID, string(room)).Int(roomchat.FieldPage, page).Int(roomchat.FieldCount, len(resp.Data)).Msg("page fetched")
	return stampRoom(resp.Data, room), nil
}

// FetchInitial retrieves the recent messages shown when room is opened.
func (c *Client) FetchInitial(ctx context.Context, room roomchat.RoomID) ([]roomchat.Message, error) {
	q := url.Values{}
	q.Set(paramRoomID, string(room))

	var resp MessagesResponse
	if err := c.get(ctx, pathSelectRoom, q, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug().Str(roomchat.FieldRoomID, string(room)).Int(roomchat.FieldCount, len(resp.Data)).Msg("snapshot fetched")
	return stampRoom(resp.Data, room), nil
}

// stampRoom fills in the room of messages the server returned without one.
func stampRoom(msgs []roomchat.Message, room roomchat.RoomID) []roomchat.Message {
	for i := range msgs {
		if msgs[i].ChatRoomID == "" {
			msgs[i].ChatRoomID = room
		}
	}
	return msgs
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return roomchat.WrapError(roomchat.ErrorFetch, "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", roomchat.BearerToken(c.token))
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return roomchat.WrapError(roomchat.ErrorFetch, "http request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return roomchat.WrapError(roomchat.ErrorFetch, "read response", err)
	}

	if resp.StatusCode >= 400 {
		code := roomchat.ErrorFetch
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			code = roomchat.ErrorUnauthorized
		}
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.text() != "" {
			return roomchat.NewError(code, fmt.Sprintf("api error (status %d): %s", resp.StatusCode, errResp.text()))
		}
		return roomchat.NewError(code, fmt.Sprintf("http error: %s (status %d)", string(body), resp.StatusCode))
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return roomchat.WrapError(roomchat.ErrorFetch, "unmarshal response", err)
		}
	}
	return nil
}
