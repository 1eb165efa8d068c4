package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"matchchat/internal/logging"
	"matchchat/internal/session"
	"matchchat/internal/types"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 4 << 20

// Options configures an HTTPClient.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	// Client overrides the underlying transport, mostly for tests.
	Client *http.Client
}

// HTTPClient implements Backend over the REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
	limiter    *rate.Limiter
}

// NewHTTPClient creates a client bound to one session.
func NewHTTPClient(opts Options, sess *session.Session) *HTTPClient {
	hc := opts.Client
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: hc,
		session:    sess,
		limiter:    limiter,
	}
}

// do performs one request and returns the raw 2xx body.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &types.NetworkTimeoutError{Op: op, Err: err}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.session.Authorize(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.NetworkTimeoutError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &types.NetworkTimeoutError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	logging.WithRequestID(logging.CategorySnapshot, requestID).
		Debug("%s %s -> %d in %v", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &types.ServerRejectedError{Op: op, Status: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	return data, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func dropWarner(op string) func(error) {
	return func(err error) {
		logging.SnapshotWarn("%s: dropping malformed entry: %v", op, err)
	}
}

// ListChannels fetches every channel selfID participates in.
func (c *HTTPClient) ListChannels(ctx context.Context, selfID int64) ([]types.Channel, error) {
	const op = "list channels"
	q := url.Values{"user_id": {strconv.FormatInt(selfID, 10)}}
	data, err := c.do(ctx, op, http.MethodGet, "/chats?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	chans, _, err := decodeList(data, channelDTO.toChannel, dropWarner(op))
	if err != nil {
		return nil, &types.MalformedPayloadError{Op: op, Reason: err.Error()}
	}
	return chans, nil
}

// ListMessages fetches the full history of one channel.
func (c *HTTPClient) ListMessages(ctx context.Context, channelID int64) ([]types.Message, error) {
	const op = "list messages"
	data, err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/chats/%d/messages", channelID), nil)
	if err != nil {
		return nil, err
	}
	convert := func(d messageDTO) (types.Message, error) { return d.toMessage(channelID) }
	msgs, _, err := decodeList(data, convert, dropWarner(op))
	if err != nil {
		return nil, &types.MalformedPayloadError{Op: op, Reason: err.Error()}
	}
	return msgs, nil
}

// GetPresence fetches the typing and online state of one user.
func (c *HTTPClient) GetPresence(ctx context.Context, userID int64) (types.Presence, error) {
	const op = "get presence"
	data, err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/users/%d/typing", userID), nil)
	if err != nil {
		return types.Presence{}, err
	}
	var d presenceDTO
	if err := json.Unmarshal(data, &d); err != nil {
		return types.Presence{}, &types.MalformedPayloadError{Op: op, Reason: err.Error()}
	}
	if d.UserID.Set && d.UserID.V != userID {
		return types.Presence{}, &types.MalformedPayloadError{Op: op, Reason: fmt.Sprintf("presence for user %d, asked for %d", d.UserID.V, userID)}
	}
	return d.toPresence(userID), nil
}

// SendMessage posts text to channelID. The server assigns id and timestamp.
func (c *HTTPClient) SendMessage(ctx context.Context, channelID, senderID int64, text string) (types.Message, error) {
	const op = "send message"
	payload := map[string]interface{}{"sender_id": senderID, "content": text}
	data, err := c.do(ctx, op, http.MethodPost, fmt.Sprintf("/chats/%d/messages", channelID), payload)
	if err != nil {
		return types.Message{}, err
	}
	var d messageDTO
	if err := json.Unmarshal(data, &d); err != nil {
		return types.Message{}, &types.MalformedPayloadError{Op: op, Reason: err.Error()}
	}
	m, err := d.toMessage(channelID)
	if err != nil {
		return types.Message{}, &types.MalformedPayloadError{Op: op, Reason: err.Error()}
	}
	return m, nil
}

// SetTyping publishes the local user's typing flag.
func (c *HTTPClient) SetTyping(ctx context.Context, userID int64, typing bool) error {
	_, err := c.do(ctx, "set typing", http.MethodPut, fmt.Sprintf("/users/%d/typing", userID), map[string]bool{"typing": typing})
	return err
}

// CreateGroup creates a group channel.
func (c *HTTPClient) CreateGroup(ctx context.Context, req GroupRequest) (types.Channel, error) {
	return c.groupCall(ctx, "create group", http.MethodPost, "/chats/group", req)
}

// UpdateGroup renames a group or adds members to it.
func (c *HTTPClient) UpdateGroup(ctx context.Context, channelID int64, req GroupRequest) (types.Channel, error) {
	return c.groupCall(ctx, "update group", http.MethodPut, fmt.Sprintf("/chats/group/%d", channelID), req)
}

func (c *HTTPClient) groupCall(ctx context.Context, op, method, path string, req GroupRequest) (types.Channel, error) {
	data, err := c.do(ctx, op, method, path, req)
	if err != nil {
		return types.Channel{}, err
	}
	var d channelDTO
	if err := json.Unmarshal(data, &d); err != nil {
		return types.Channel{}, &types.MalformedPayloadError{Op: op, Reason: err.Error()}
	}
	if d.Type == "" {
		d.Type = "group"
	}
	ch, err := d.toChannel()
	if err != nil {
		return types.Channel{}, &types.MalformedPayloadError{Op: op, Reason: err.Error()}
	}
	return ch, nil
}

// BlockUser blocks targetID on behalf of blockerID.
func (c *HTTPClient) BlockUser(ctx context.Context, blockerID, targetID int64) error {
	payload := map[string]int64{"blocker_id": blockerID, "blocked_id": targetID}
	_, err := c.do(ctx, "block user", http.MethodPost, "/users/block", payload)
	return err
}

// ReportUser files a report against targetID.
func (c *HTTPClient) ReportUser(ctx context.Context, reporterID, targetID int64, reason string) error {
	payload := map[string]interface{}{"reporter_id": reporterID, "reported_id": targetID, "reason": reason}
	_, err := c.do(ctx, "report user", http.MethodPost, "/users/report", payload)
	return err
}

var _ Backend = (*HTTPClient)(nil)
