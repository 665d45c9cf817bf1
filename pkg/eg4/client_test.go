package eg4

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, ts *httptest.Server, f *fakeMonitor, mutate ...func(*Config)) *Client {
	cfg := Config{
		Username:   f.username,
		Password:   f.password,
		BaseURL:    ts.URL,
		HTTPClient: ts.Client(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Username: "u", Password: "p"}, false},
		{"valid with base url", Config{Username: "u", Password: "p", BaseURL: "http://localhost:8080/prefix"}, false},
		{"missing username", Config{Password: "p"}, true},
		{"missing password", Config{Username: "u"}, true},
		{"relative base url", Config{Username: "u", Password: "p", BaseURL: "monitor.example.com"}, true},
		{"unparseable base url", Config{Username: "u", Password: "p", BaseURL: "http://[::1"}, true},
		{"negative timeout", Config{Username: "u", Password: "p", Timeout: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	c, err := New(Config{Username: "u", Password: "p"})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultTimeout, c.client.Timeout)
	assert.False(t, c.LoggedIn())
	assert.Equal(t, 0, c.Selection().InverterIndex, "first inverter is selected by default")

	c, err = New(Config{Username: "u", Password: "p", SerialNumber: "4512345678", PlantID: "1001"})
	require.NoError(t, err)
	defer c.Close()
	sel := c.Selection()
	assert.Equal(t, "4512345678", sel.SerialNumber)
	assert.Equal(t, "1001", sel.PlantID)
	assert.Equal(t, -1, sel.InverterIndex)

	_, err = New(Config{Username: "u"})
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFakeMonitor(t)
		ts := f.start()
		c := newTestClient(t, ts, f)

		require.NoError(t, c.Login(context.Background()))
		assert.True(t, c.LoggedIn())
		assert.NotEmpty(t, c.jsessionid)

		inverters := c.Inverters()
		require.Len(t, inverters, 3)
		assert.Equal(t, "4512345678", inverters[0].SerialNumber)
		assert.Equal(t, "1001", inverters[0].PlantID)
		assert.Equal(t, "Home", inverters[0].PlantName)
		assert.Equal(t, "2002", inverters[2].PlantID)

		sel := c.Selection()
		assert.Equal(t, "4512345678", sel.SerialNumber, "index 0 should resolve after login")
		assert.Equal(t, "1001", sel.PlantID)
	})

	t.Run("credentials are form encoded", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			assert.Equal(t, "a+b@example.com", r.Form.Get("account"))
			assert.Equal(t, "p@ss&word=1", r.Form.Get("password"))
			http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "abc"})
			writeJSON(w, map[string]any{"success": true, "plants": []map[string]any{
				{"plantId": 1, "name": "p", "inverters": []map[string]any{{"serialNum": "1"}}},
			}})
		}))
		defer ts.Close()

		c, err := New(Config{Username: "a+b@example.com", Password: "p@ss&word=1", BaseURL: ts.URL, HTTPClient: ts.Client()})
		require.NoError(t, err)
		defer c.Close()
		require.NoError(t, c.Login(context.Background()))
		assert.Equal(t, "abc", c.jsessionid)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		f := newFakeMonitor(t)
		ts := f.start()
		c := newTestClient(t, ts, f, func(cfg *Config) {
			cfg.Username = "invalid_user"
			cfg.Password = "wrong_pass"
		})

		err := c.Login(context.Background())
		require.Error(t, err)

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "account or password error", authErr.Message)
		assert.False(t, IsAPIError(err), "credential rejection must not be an APIError")
		assert.False(t, c.LoggedIn())
	})

	t.Run("non-200 is an auth error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
		defer ts.Close()

		c, err := New(Config{Username: "u", Password: "p", BaseURL: ts.URL, HTTPClient: ts.Client()})
		require.NoError(t, err)
		defer c.Close()

		err = c.Login(context.Background())
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusForbidden, authErr.Status)
		assert.Contains(t, err.Error(), "status 403")
	})

	t.Run("missing session cookie", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"success": true})
		}))
		defer ts.Close()

		c, err := New(Config{Username: "u", Password: "p", BaseURL: ts.URL, HTTPClient: ts.Client()})
		require.NoError(t, err)
		defer c.Close()

		err = c.Login(context.Background())
		require.True(t, IsAuthError(err), "got %v", err)
		assert.Contains(t, err.Error(), sessionCookie)
	})

	t.Run("transport failure is an api error", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()

		c, err := New(Config{Username: "u", Password: "p", BaseURL: url, Timeout: time.Second})
		require.NoError(t, err)
		defer c.Close()

		err = c.Login(context.Background())
		require.Error(t, err)
		assert.True(t, IsAPIError(err))
		assert.False(t, IsAuthError(err))
	})

	t.Run("no inverters", func(t *testing.T) {
		f := newFakeMonitor(t)
		f.plants = nil
		ts := f.start()
		c := newTestClient(t, ts, f)

		err := c.Login(context.Background())
		require.ErrorIs(t, err, ErrNoInverters)
		assert.True(t, IsAPIError(err))
		assert.True(t, c.LoggedIn(), "session is kept even without inverters")
	})

	t.Run("login again replaces the session", func(t *testing.T) {
		f := newFakeMonitor(t)
		ts := f.start()
		c := newTestClient(t, ts, f)
		ctx := context.Background()

		require.NoError(t, c.Login(ctx))
		first := c.jsessionid
		require.NoError(t, c.Login(ctx))
		assert.NotEqual(t, first, c.jsessionid)
		assert.Equal(t, f.currentSession(), c.jsessionid)

		rd, err := c.GetInverterRuntime(ctx)
		require.NoError(t, err)
		assert.True(t, rd.Success)
	})

	t.Run("pending index out of range", func(t *testing.T) {
		f := newFakeMonitor(t)
		ts := f.start()
		c := newTestClient(t, ts, f)

		require.NoError(t, c.SetSelectedInverter(7))
		err := c.Login(context.Background())
		require.ErrorIs(t, err, ErrInvalidInverterIndex)
		assert.True(t, c.LoggedIn())
	})
}

func TestSelection(t *testing.T) {
	f := newFakeMonitor(t)
	ts := f.start()
	c := newTestClient(t, ts, f)
	ctx := context.Background()

	require.ErrorIs(t, c.SetSelectedInverter(-1), ErrInvalidInverterIndex)

	// before login the index is remembered
	require.NoError(t, c.SetSelectedInverter(2))
	assert.True(t, c.Selection().IsZero())
	assert.Equal(t, 2, c.Selection().InverterIndex)
	assert.EqualValues(t, 0, f.requests.Load(), "selection must not hit the network")

	require.NoError(t, c.Login(ctx))
	sel := c.Selection()
	assert.Equal(t, "4500000001", sel.SerialNumber)
	assert.Equal(t, "2002", sel.PlantID)

	require.NoError(t, c.SetSelectedInverter(1))
	assert.Equal(t, "4587654321", c.Selection().SerialNumber)

	err := c.SetSelectedInverter(3)
	require.ErrorIs(t, err, ErrInvalidInverterIndex)
	assert.Equal(t, "4587654321", c.Selection().SerialNumber, "failed selection keeps the previous one")

	c.SelectInverter("9999", "4599999999")
	sel = c.Selection()
	assert.Equal(t, "4599999999", sel.SerialNumber)
	assert.Equal(t, "9999", sel.PlantID)
	assert.Equal(t, -1, sel.InverterIndex)

	rd, err := c.GetInverterRuntime(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4599999999", rd.SerialNumber, "explicit serial is sent to the monitor")
}

func TestInvertersIsACopy(t *testing.T) {
	f := newFakeMonitor(t)
	ts := f.start()
	c := newTestClient(t, ts, f)
	require.NoError(t, c.Login(context.Background()))

	inv := c.Inverters()
	inv[0].SerialNumber = "mutated"
	assert.Equal(t, "4512345678", c.Inverters()[0].SerialNumber)
}

func TestClose(t *testing.T) {
	f := newFakeMonitor(t)
	ts := f.start()
	c := newTestClient(t, ts, f)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))
	before := f.requests.Load()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "second close should be a no-op")
	assert.False(t, c.LoggedIn())

	_, err := c.GetInverterRuntime(ctx)
	require.ErrorIs(t, err, ErrClientClosed)
	assert.True(t, IsAPIError(err))

	_, err = c.GetInverterEnergy(ctx)
	require.ErrorIs(t, err, ErrClientClosed)
	_, err = c.GetInverterBattery(ctx)
	require.ErrorIs(t, err, ErrClientClosed)

	err = c.Login(ctx)
	require.ErrorIs(t, err, ErrClientClosed)

	assert.Equal(t, before, f.requests.Load(), "closed client must not do network I/O")
}

func TestCloseBeforeLogin(t *testing.T) {
	c, err := New(Config{Username: "u", Password: "p"})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestErrorMessages(t *testing.T) {
	err := &AuthError{Endpoint: loginPath, Status: 401, Message: "bad"}
	assert.Equal(t, "eg4 authentication failed (WManage/api/login): status 401: bad", err.Error())

	wrapped := &APIError{Endpoint: inverterRuntimePath, Err: ErrClientClosed}
	assert.Equal(t, "eg4 api request failed (WManage/api/inverter/getInverterRuntime): client closed", wrapped.Error())
	assert.True(t, errors.Is(wrapped, ErrClientClosed))

	assert.False(t, IsAuthError(errors.New("plain")))
	assert.False(t, IsAPIError(nil))
}

func TestConcurrentReads(t *testing.T) {
	f := newFakeMonitor(t)
	ts := f.start()
	c := newTestClient(t, ts, f)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := c.GetInverterRuntime(ctx)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := c.GetInverterEnergy(ctx)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := c.GetInverterBattery(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.logins.Load())
}
