package eg4

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/eg4monitor/eg4monitor/pkg/log"
	"github.com/eg4monitor/eg4monitor/pkg/types"
)

// maxBodyBytes caps how much of a response is read into memory.
const maxBodyBytes = 8 << 20

func (c *Client) newPostFormRequest(ctx context.Context, endpoint string, data url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	body := strings.NewReader(data.Encode())
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and reads the whole body. The response body is closed before
// returning.
func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp, nil, err
	}
	return resp, body, nil
}

func decodeBody(body []byte, dest any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(body, dest)
}

// sessionRejected reports whether the monitor refused the session. Besides
// 401/403 the portal answers an expired session by redirecting to its HTML
// login page, which the http client follows.
func sessionRejected(resp *http.Response) bool {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return true
	}
	if resp.StatusCode != http.StatusOK {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mediaType == "text/html"
}

// invalidateSession clears the stored session if it is still the one that was
// rejected, so a concurrent Login is not undone.
func (c *Client) invalidateSession(rejected string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jsessionid == rejected {
		c.jsessionid = ""
	}
}

// readInverter posts the selected serial number to endpoint and decodes a
// successful body into dest. A body with success=false is not an error: the
// returned envelope reports it and dest is left untouched.
func (c *Client) readInverter(ctx context.Context, endpoint string, dest any) (types.APIResponse, error) {
	// we try up to 2 times because the session might have expired
	for attempt := 0; ; attempt++ {
		c.mu.RLock()
		closed := c.closed
		jsessionid := c.jsessionid
		serial := c.selection.SerialNumber
		c.mu.RUnlock()

		if closed {
			return types.APIResponse{}, &APIError{Endpoint: endpoint, Err: ErrClientClosed}
		}
		if jsessionid == "" {
			return types.APIResponse{}, &AuthError{Endpoint: endpoint, Err: ErrNotLoggedIn}
		}
		if serial == "" {
			return types.APIResponse{}, &APIError{Endpoint: endpoint, Err: ErrNoInverterSelected}
		}

		data := url.Values{}
		data.Set("serialNum", serial)
		req, err := c.newPostFormRequest(ctx, endpoint, data)
		if err != nil {
			return types.APIResponse{}, &APIError{Endpoint: endpoint, Err: err}
		}
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: jsessionid})

		log.Ctx(ctx).DebugContext(ctx, "eg4 request", slog.String("endpoint", endpoint), slog.String("serialNum", serial))

		resp, body, err := c.do(req)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "eg4 request failed", slog.String("endpoint", endpoint), slog.Any("error", err))
			return types.APIResponse{}, &APIError{Endpoint: endpoint, Err: err}
		}

		if sessionRejected(resp) {
			c.invalidateSession(jsessionid)
			if c.reauthOnExpiry && attempt == 0 {
				log.Ctx(ctx).DebugContext(ctx, "eg4 session expired, logging in again", slog.String("endpoint", endpoint))
				if err := c.Login(ctx); err != nil {
					return types.APIResponse{}, err
				}
				continue
			}
			log.Ctx(ctx).WarnContext(ctx, "eg4 session rejected", slog.String("endpoint", endpoint), slog.Int("status", resp.StatusCode))
			return types.APIResponse{}, &AuthError{
				Endpoint: endpoint,
				Status:   resp.StatusCode,
				Message:  "session rejected",
				Err:      ErrNotLoggedIn,
			}
		}

		if resp.StatusCode != http.StatusOK {
			log.Ctx(ctx).ErrorContext(ctx, "eg4 unexpected status",
				slog.String("endpoint", endpoint),
				slog.Int("status", resp.StatusCode),
				slog.String("body", snippet(body)),
			)
			return types.APIResponse{}, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: snippet(body)}
		}

		var envelope types.APIResponse
		if err := decodeBody(body, &envelope); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to decode eg4 response", slog.String("endpoint", endpoint), slog.Any("error", err), slog.String("body", snippet(body)))
			return types.APIResponse{}, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Err: err}
		}
		if !envelope.Success {
			log.Ctx(ctx).WarnContext(ctx, "eg4 reported failure", slog.String("endpoint", endpoint), slog.String("message", envelope.Reason()))
			return envelope, nil
		}

		if err := json.Unmarshal(body, dest); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to decode eg4 result", slog.String("endpoint", endpoint), slog.Any("error", err))
			return envelope, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode result: %w", err)}
		}
		return envelope, nil
	}
}

// snippet trims a body for inclusion in logs and errors.
func snippet(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
