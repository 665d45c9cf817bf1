package eg4

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/eg4monitor/eg4monitor/pkg/log"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

// fakeMonitor imitates the monitor portal. Only the most recently issued
// session is accepted.
type fakeMonitor struct {
	t *testing.T

	username string
	password string
	plants   []map[string]any

	mu      sync.Mutex
	session string

	logins   atomic.Int32
	requests atomic.Int32

	// expiredAs controls how a stale session is answered: "401" or "html".
	expiredAs string

	// handlers override the response of a data endpoint.
	handlers map[string]http.HandlerFunc
}

func newFakeMonitor(t *testing.T) *fakeMonitor {
	return &fakeMonitor{
		t:        t,
		username: "user@example.com",
		password: "p@ss&word",
		plants: []map[string]any{
			{
				"plantId": 1001,
				"name":    "Home",
				"inverters": []map[string]any{
					{"serialNum": "4512345678", "alias": "garage", "phase": 1},
					{"serialNum": "4587654321", "alias": "barn", "phase": 1},
				},
			},
			{
				"plantId": 2002,
				"name":    "Cabin",
				"inverters": []map[string]any{
					{"serialNum": "4500000001"},
				},
			},
		},
		expiredAs: "401",
		handlers:  map[string]http.HandlerFunc{},
	}
}

func (f *fakeMonitor) start() *httptest.Server {
	ts := httptest.NewServer(f)
	f.t.Cleanup(ts.Close)
	return ts
}

// expire invalidates the current session server-side.
func (f *fakeMonitor) expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = ""
}

// handle overrides the response for endpoint.
func (f *fakeMonitor) handle(endpoint string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers["/"+endpoint] = h
}

func (f *fakeMonitor) setPassword(password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.password = password
}

func (f *fakeMonitor) currentSession() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeMonitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.URL.Path == "/"+loginPath {
		f.login(w, r)
		return
	}

	cookie, err := r.Cookie(sessionCookie)
	current := f.currentSession()
	if err != nil || current == "" || cookie.Value != current {
		if f.expiredAs == "html" {
			w.Header().Set("Content-Type", "text/html;charset=UTF-8")
			fmt.Fprint(w, "<html><body>login</body></html>")
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	h, ok := f.handlers[r.URL.Path]
	f.mu.Unlock()
	if ok {
		h(w, r)
		return
	}

	serial := r.Form.Get("serialNum")
	switch r.URL.Path {
	case "/" + inverterRuntimePath:
		writeJSON(w, map[string]any{
			"success":    true,
			"serialNum":  serial,
			"statusText": "normal",
			"ppv":        3120,
			"soc":        87,
			"pToGrid":    400,
			"pToUser":    0,
			"fwCode":     "FAAB-2525",
		})
	case "/" + inverterEnergyPath:
		writeJSON(w, map[string]any{
			"success":           true,
			"serialNum":         serial,
			"todayYielding":     184,
			"todayYieldingText": "18.4",
			"totalYielding":     98765,
		})
	case "/" + inverterBatteryPath:
		writeJSON(w, map[string]any{
			"success":          true,
			"remainCapacity":   210,
			"fullCapacity":     280,
			"totalNumber":      2,
			"totalVoltageText": "53.1",
			"currentText":      "-12.3",
			"batteryArray": []map[string]any{
				{"batteryKey": serial + "_0", "batterySn": "BT01", "batIndex": 0, "soc": 75},
				{"batteryKey": serial + "_1", "batterySn": "BT02", "batIndex": 1, "soc": 76},
			},
		})
	default:
		http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
	}
}

func (f *fakeMonitor) login(w http.ResponseWriter, r *http.Request) {
	n := f.logins.Add(1)
	f.mu.Lock()
	password := f.password
	f.mu.Unlock()
	if r.Form.Get("account") != f.username || r.Form.Get("password") != password {
		writeJSON(w, map[string]any{"success": false, "msg": "account or password error"})
		return
	}

	session := fmt.Sprintf("session-%d", n)
	f.mu.Lock()
	f.session = session
	f.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: session, Path: "/"})
	writeJSON(w, map[string]any{
		"success": true,
		"plants":  f.plants,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	_ = json.NewEncoder(w).Encode(v)
}
