// client/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ghusers/internal/document"
	"ghusers/internal/errors"
	"ghusers/internal/validation"

	"github.com/gorilla/websocket"
)

// Client talks to a running ghusers server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Transactions may back off several times before they land.
			Timeout: time.Minute,
		},
	}
}

// Event is one progress event as streamed by the server.
type Event struct {
	Transaction string `json:"transaction"`
	Attempt     int    `json:"attempt"`
	Phase       string `json:"phase"`
	Branch      string `json:"branch,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	DelayMillis int64  `json:"delay_ms,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (c *Client) ListUsers(ctx context.Context, filter string) (document.Document, error) {
	path := "/api/users"
	if filter != "" {
		path += "?filter=" + url.QueryEscape(filter)
	}

	var doc document.Document
	err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &doc)
	return doc, err
}

func (c *Client) GetUser(ctx context.Context, id int) (document.User, error) {
	var u document.User
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d", id), nil, http.StatusOK, &u)
	return u, err
}

func (c *Client) InsertUser(ctx context.Context, username, status string) (document.User, error) {
	var u document.User
	body := validation.UserRequest{Username: username, Status: status}
	err := c.do(ctx, http.MethodPost, "/api/users", body, http.StatusCreated, &u)
	return u, err
}

func (c *Client) EditUser(ctx context.Context, id int, username, status string) error {
	body := validation.UserRequest{Username: username, Status: status}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/users/%d", id), body, http.StatusNoContent, nil)
}

func (c *Client) DeleteUser(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/users/%d", id), nil, http.StatusNoContent, nil)
}

// Watch streams progress events to handle until ctx is done or the server
// closes the stream.
func (c *Client) Watch(ctx context.Context, handle func(Event)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/progress"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting to progress stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("reading progress stream: %w", err)
		}
		handle(ev)
	}
}

// do sends body as JSON and decodes a want response into out. Any other
// status is decoded as the server's typed error.
func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Canceled(ctx.Err())
		}
		return errors.Transient("server unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var e errors.Error
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Type == "" {
		return errors.Internal(fmt.Sprintf("unexpected status: %s", resp.Status), nil)
	}
	if e.Code == 0 {
		e.Code = resp.StatusCode
	}
	return &e
}
