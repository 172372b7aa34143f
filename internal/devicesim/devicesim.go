// Package devicesim simulates the device web API: nonce issue, challenge
// login, power telemetry and logout. It backs integration tests and the
// devicesim command.
package devicesim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/and161185/gwn-voltage/internal/utils"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Device API commands, passed in the cmd query parameter.
const (
	CmdNonce     = "get_nonce"
	CmdLogin     = "login"
	CmdLogout    = "logout"
	CmdPowerInfo = "poe_get_powerinfo"
)

// Call is one request as the device saw it.
type Call struct {
	Cmd    string
	Method string
	Host   string
	Header http.Header
	Body   []byte
	Close  bool // client asked for the connection to be closed
}

// Device is an in-memory device. Safe for concurrent use.
type Device struct {
	mu       sync.Mutex
	username string
	password string
	voltage  float64
	payload  []byte
	faults   map[string]int
	nonces   map[string]struct{}
	tokens   map[string]struct{}
	calls    []Call
	logouts  []string
	logger   *zap.SugaredLogger
}

// New returns a device that accepts username/password and reports
// millivolts as its input voltage.
func New(username, password string, millivolts float64, logger *zap.SugaredLogger) *Device {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Device{
		username: username,
		password: password,
		voltage:  millivolts,
		faults:   make(map[string]int),
		nonces:   make(map[string]struct{}),
		tokens:   make(map[string]struct{}),
		logger:   logger,
	}
}

// SetVoltage changes the reported input voltage (millivolts).
func (d *Device) SetVoltage(millivolts float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voltage = millivolts
	d.payload = nil
}

// SetPowerInfoPayload replaces the telemetry body with raw.
func (d *Device) SetPowerInfoPayload(raw string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payload = []byte(raw)
}

// FailWith makes every request for cmd answer with status and an empty body.
func (d *Device) FailWith(cmd string, status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[cmd] = status
}

// Calls returns the recorded requests in arrival order.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallCount returns how many requests for cmd were received.
func (d *Device) CallCount(cmd string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Cmd == cmd {
			n++
		}
	}
	return n
}

// Logouts returns the tokens successfully logged out.
func (d *Device) Logouts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.logouts...)
}

// ActiveSessions returns the number of tokens not yet logged out.
func (d *Device) ActiveSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

// Handler returns the device HTTP API.
func (d *Device) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(LogMiddleware(d.logger))
	r.Get("/get.cgi", d.handleGet)
	r.Post("/set.cgi", d.handleSet)
	return r
}

// Run serves the device on addr until ctx is done.
func (d *Device) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Infof("device simulator listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (d *Device) handleGet(w http.ResponseWriter, r *http.Request) {
	cmd := d.record(r)
	if d.fault(w, cmd) {
		return
	}
	switch cmd {
	case CmdNonce:
		d.handleNonce(w)
	case CmdPowerInfo:
		d.handlePowerInfo(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (d *Device) handleSet(w http.ResponseWriter, r *http.Request) {
	cmd := d.record(r)
	if d.fault(w, cmd) {
		return
	}
	switch cmd {
	case CmdLogin:
		d.handleLogin(w, r)
	case CmdLogout:
		d.handleLogout(w, r)
	default:
		http.NotFound(w, r)
	}
}

// record stores the request and restores its body for the handler.
func (d *Device) record(r *http.Request) string {
	cmd := r.URL.Query().Get("cmd")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.logger.Errorf("failed to read request body: %v", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	d.mu.Lock()
	d.calls = append(d.calls, Call{
		Cmd:    cmd,
		Method: r.Method,
		Host:   r.Host,
		Header: r.Header.Clone(),
		Body:   body,
		Close:  r.Close,
	})
	d.mu.Unlock()
	return cmd
}

func (d *Device) fault(w http.ResponseWriter, cmd string) bool {
	d.mu.Lock()
	status, ok := d.faults[cmd]
	d.mu.Unlock()
	if !ok {
		return false
	}
	w.WriteHeader(status)
	return true
}

func (d *Device) handleNonce(w http.ResponseWriter) {
	nonce := uuid.NewString()
	d.mu.Lock()
	d.nonces[nonce] = struct{}{}
	d.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"code": 200, "data": map[string]any{"nonce": nonce}})
}

func (d *Device) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "msg": "invalid JSON"})
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if req.Username == d.username {
		for nonce := range d.nonces {
			if utils.ChallengeHash(d.username, nonce, d.password) != req.Password {
				continue
			}
			delete(d.nonces, nonce)
			token := uuid.NewString()
			d.tokens[token] = struct{}{}
			writeJSON(w, http.StatusOK, map[string]any{"code": 200, "data": map[string]any{"token": token}})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": 401, "msg": "invalid username or password"})
}

func (d *Device) handlePowerInfo(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	_, ok := d.tokens[r.Header.Get("Authorization")]
	payload, voltage := d.payload, d.voltage
	d.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "msg": "unauthorized"})
		return
	}
	if payload != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": 200, "data": map[string]any{"inputVoltage": voltage}})
}

func (d *Device) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "msg": "invalid JSON"})
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.tokens[req.Token]; !ok || r.Header.Get("Authorization") != req.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "msg": "unauthorized"})
		return
	}
	delete(d.tokens, req.Token)
	d.logouts = append(d.logouts, req.Token)
	writeJSON(w, http.StatusOK, map[string]any{"code": 200})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
