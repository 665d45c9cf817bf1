package eg4

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/eg4monitor/eg4monitor/pkg/common"
	"github.com/eg4monitor/eg4monitor/pkg/log"
	"github.com/eg4monitor/eg4monitor/pkg/types"
)

const (
	// DefaultBaseURL is the vendor's production monitoring host.
	DefaultBaseURL = "https://monitor.eg4electronics.com"

	// DefaultTimeout bounds every request when Config.Timeout is unset.
	DefaultTimeout = 30 * time.Second

	loginPath           = "WManage/api/login"
	inverterRuntimePath = "WManage/api/inverter/getInverterRuntime"
	inverterEnergyPath  = "WManage/api/inverter/getInverterEnergyInfo"
	inverterBatteryPath = "WManage/api/battery/getBatteryInfo"

	sessionCookie = "JSESSIONID"
)

// Config is everything needed to construct a Client.
type Config struct {
	Username string
	Password string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// SerialNumber and PlantID select the inverter up front. When
	// SerialNumber is empty, InverterIndex (if >= 0) is resolved against the
	// device list returned by Login.
	SerialNumber  string
	PlantID       string
	InverterIndex int

	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// ReauthOnExpiry makes a read that is rejected with 401/403 log in again
	// once and replay the request instead of returning an AuthError.
	ReauthOnExpiry bool

	// HTTPClient overrides the client built from Timeout and
	// InsecureSkipVerify. The Client still closes its idle connections on
	// Close.
	HTTPClient *http.Client
}

// Validate checks that the configuration can build a Client.
func (c Config) Validate() error {
	if c.Username == "" {
		return errors.New("missing username")
	}
	if c.Password == "" {
		return errors.New("missing password")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("failed to parse base url (%s): %w", c.BaseURL, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base url must be absolute: %s", c.BaseURL)
		}
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// Client is a session-authenticated client for the EG4 monitor portal. Reads
// may run concurrently and share one session. Login and Close only hold the
// lock while they swap session state.
type Client struct {
	client         *http.Client
	baseURL        string
	username       string
	password       string
	reauthOnExpiry bool

	mu         sync.RWMutex
	jsessionid string
	inverters  []types.Inverter
	selection  types.InverterSelection
	closed     bool
}

// New builds a Client from cfg. No network calls are made until Login.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = common.HTTPClientWithTLS(timeout, cfg.InsecureSkipVerify)
	}

	c := &Client{
		client:         httpClient,
		baseURL:        baseURL,
		username:       cfg.Username,
		password:       cfg.Password,
		reauthOnExpiry: cfg.ReauthOnExpiry,
		selection: types.InverterSelection{
			SerialNumber:  cfg.SerialNumber,
			PlantID:       cfg.PlantID,
			InverterIndex: -1,
		},
	}
	if cfg.SerialNumber == "" && cfg.InverterIndex >= 0 {
		c.selection.InverterIndex = cfg.InverterIndex
	}
	return c, nil
}

// Login exchanges the credentials for a session cookie and records the
// account's inverters. Calling it again replaces the session.
func (c *Client) Login(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return &APIError{Endpoint: loginPath, Err: ErrClientClosed}
	}

	data := url.Values{}
	data.Set("account", c.username)
	data.Set("password", c.password)

	req, err := c.newPostFormRequest(ctx, loginPath, data)
	if err != nil {
		return &APIError{Endpoint: loginPath, Err: err}
	}

	resp, body, err := c.do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "eg4 login request failed", slog.Any("error", err))
		return &APIError{Endpoint: loginPath, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		log.Ctx(ctx).WarnContext(ctx, "eg4 login rejected", slog.Int("status", resp.StatusCode))
		return &AuthError{
			Endpoint: loginPath,
			Status:   resp.StatusCode,
			Message:  "login failed, check your credentials",
		}
	}

	var lr types.LoginResponse
	if err := decodeBody(body, &lr); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode eg4 login response", slog.Any("error", err))
		return &APIError{Endpoint: loginPath, Status: resp.StatusCode, Err: err}
	}
	if !lr.Success {
		msg := lr.Message
		if msg == "" {
			msg = "login failed, check your credentials"
		}
		log.Ctx(ctx).WarnContext(ctx, "eg4 login unsuccessful", slog.String("message", msg))
		return &AuthError{Endpoint: loginPath, Status: resp.StatusCode, Message: msg}
	}

	jsessionid := sessionFromResponse(resp)
	if jsessionid == "" {
		log.Ctx(ctx).WarnContext(ctx, "eg4 login response had no session cookie")
		return &AuthError{
			Endpoint: loginPath,
			Status:   resp.StatusCode,
			Message:  "failed to retrieve " + sessionCookie + " during login",
		}
	}

	inverters, err := lr.Inverters()
	if err != nil {
		return &APIError{Endpoint: loginPath, Status: resp.StatusCode, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &APIError{Endpoint: loginPath, Err: ErrClientClosed}
	}
	c.jsessionid = jsessionid
	c.inverters = inverters

	log.Ctx(ctx).InfoContext(ctx, "eg4 login successful",
		slog.String("username", c.username),
		slog.Int("inverters", len(inverters)),
	)

	if len(inverters) == 0 {
		return &APIError{Endpoint: loginPath, Status: resp.StatusCode, Err: ErrNoInverters}
	}

	if c.selection.SerialNumber == "" && c.selection.InverterIndex >= 0 {
		if err := c.selectIndexLocked(c.selection.InverterIndex); err != nil {
			return &APIError{Endpoint: loginPath, Err: err}
		}
		log.Ctx(ctx).InfoContext(ctx, "selected inverter",
			slog.Int("index", c.selection.InverterIndex),
			slog.String("serialNum", c.selection.SerialNumber),
			slog.String("plantId", c.selection.PlantID),
		)
	}
	return nil
}

func sessionFromResponse(resp *http.Response) string {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == sessionCookie {
			return cookie.Value
		}
	}
	return ""
}

// LoggedIn reports whether the client holds a session.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jsessionid != "" && !c.closed
}

// Inverters returns the devices discovered by the last successful Login.
func (c *Client) Inverters() []types.Inverter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Inverter, len(c.inverters))
	copy(out, c.inverters)
	return out
}

// SetSelectedInverter selects the inverter at index in the account's device
// list. Before the first Login the index is remembered and resolved once the
// device list is known.
func (c *Client) SetSelectedInverter(index int) error {
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInverterIndex, index)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.inverters) == 0 {
		c.selection = types.InverterSelection{InverterIndex: index}
		return nil
	}
	return c.selectIndexLocked(index)
}

// selectIndexLocked must be called with c.mu held for writing.
func (c *Client) selectIndexLocked(index int) error {
	if index >= len(c.inverters) {
		return fmt.Errorf("%w: %d (found %d inverters)", ErrInvalidInverterIndex, index, len(c.inverters))
	}
	inv := c.inverters[index]
	c.selection = types.InverterSelection{
		SerialNumber:  inv.SerialNumber,
		PlantID:       inv.PlantID,
		InverterIndex: index,
	}
	return nil
}

// SelectInverter targets subsequent reads at the given plant and serial
// number directly.
func (c *Client) SelectInverter(plantID, serialNumber string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = types.InverterSelection{
		SerialNumber:  serialNumber,
		PlantID:       plantID,
		InverterIndex: -1,
	}
}

// Selection returns the current inverter selection.
func (c *Client) Selection() types.InverterSelection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selection
}

// Close releases the client's idle connections and forgets the session. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.jsessionid = ""
	c.client.CloseIdleConnections()
	return nil
}
