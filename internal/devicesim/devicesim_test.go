package devicesim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/and161185/gwn-voltage/internal/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func do(t *testing.T, h http.Handler, method, target, body string, header map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr.Code, out
}

func nonceOf(t *testing.T, h http.Handler) string {
	t.Helper()
	code, out := do(t, h, http.MethodGet, "/get.cgi?cmd=get_nonce", "", nil)
	require.Equal(t, http.StatusOK, code)
	return out["data"].(map[string]any)["nonce"].(string)
}

func login(t *testing.T, h http.Handler, user, hash string) (int, map[string]any) {
	t.Helper()
	body := `{"username":"` + user + `","password":"` + hash + `"}`
	return do(t, h, http.MethodPost, "/set.cgi?cmd=login", body, map[string]string{"Content-Type": "application/json"})
}

func TestDevice_FullSession(t *testing.T) {
	d := New("admin", "secret", 48200, nil)
	h := d.Handler()

	nonce := nonceOf(t, h)
	code, out := login(t, h, "admin", utils.ChallengeHash("admin", nonce, "secret"))
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 200, out["code"])
	token := out["data"].(map[string]any)["token"].(string)
	require.NotEmpty(t, token)
	require.Equal(t, 1, d.ActiveSessions())

	code, out = do(t, h, http.MethodGet, "/get.cgi?cmd=poe_get_powerinfo", "", map[string]string{"Authorization": token})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 48200, out["data"].(map[string]any)["inputVoltage"])

	code, _ = do(t, h, http.MethodPost, "/set.cgi?cmd=logout", `{"token":"`+token+`"}`, map[string]string{"Authorization": token})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []string{token}, d.Logouts())
	require.Zero(t, d.ActiveSessions())

	require.Equal(t, 1, d.CallCount(CmdNonce))
	require.Equal(t, 1, d.CallCount(CmdLogin))
	require.Equal(t, 1, d.CallCount(CmdPowerInfo))
	require.Equal(t, 1, d.CallCount(CmdLogout))
	require.Len(t, d.Calls(), 4)
}

func TestDevice_LoginRejected(t *testing.T) {
	d := New("admin", "secret", 48200, nil)
	h := d.Handler()

	nonce := nonceOf(t, h)
	code, out := login(t, h, "admin", utils.ChallengeHash("admin", nonce, "wrong"))
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 401, out["code"])
	require.Nil(t, out["data"])

	code, out = login(t, h, "root", utils.ChallengeHash("root", nonce, "secret"))
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 401, out["code"])
}

func TestDevice_NonceIsSingleUse(t *testing.T) {
	d := New("admin", "secret", 48200, nil)
	h := d.Handler()

	nonce := nonceOf(t, h)
	hash := utils.ChallengeHash("admin", nonce, "secret")

	_, out := login(t, h, "admin", hash)
	require.EqualValues(t, 200, out["code"])

	_, out = login(t, h, "admin", hash)
	require.EqualValues(t, 401, out["code"])
}

func TestDevice_PowerInfoRequiresToken(t *testing.T) {
	d := New("admin", "secret", 48200, nil)
	code, _ := do(t, d.Handler(), http.MethodGet, "/get.cgi?cmd=poe_get_powerinfo", "", map[string]string{"Authorization": "bogus"})
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestDevice_LogoutRejectsUnknownToken(t *testing.T) {
	d := New("admin", "secret", 48200, nil)
	code, _ := do(t, d.Handler(), http.MethodPost, "/set.cgi?cmd=logout", `{"token":"nope"}`, map[string]string{"Authorization": "nope"})
	require.Equal(t, http.StatusUnauthorized, code)
	require.Empty(t, d.Logouts())
}

func TestDevice_FaultsAndPayload(t *testing.T) {
	d := New("admin", "secret", 48200, nil)
	h := d.Handler()

	d.FailWith(CmdNonce, http.StatusInternalServerError)
	code, out := do(t, h, http.MethodGet, "/get.cgi?cmd=get_nonce", "", nil)
	require.Equal(t, http.StatusInternalServerError, code)
	require.Nil(t, out)

	d = New("admin", "secret", 48200, nil)
	h = d.Handler()
	d.SetPowerInfoPayload(`{"data":{}}`)
	nonce := nonceOf(t, h)
	_, out = login(t, h, "admin", utils.ChallengeHash("admin", nonce, "secret"))
	token := out["data"].(map[string]any)["token"].(string)

	code, out = do(t, h, http.MethodGet, "/get.cgi?cmd=poe_get_powerinfo", "", map[string]string{"Authorization": token})
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, out["data"])

	d.SetVoltage(34500)
	_, out = do(t, h, http.MethodGet, "/get.cgi?cmd=poe_get_powerinfo", "", map[string]string{"Authorization": token})
	require.EqualValues(t, 34500, out["data"].(map[string]any)["inputVoltage"])
}

func TestDevice_UnknownCommand(t *testing.T) {
	d := New("admin", "secret", 48200, nil)
	req := httptest.NewRequest(http.MethodGet, "/get.cgi?cmd=reboot", nil)
	rr := httptest.NewRecorder()
	d.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/set.cgi?cmd=login", nil)
	rr = httptest.NewRecorder()
	d.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestLogMiddleware(t *testing.T) {
	core, obs := observer.New(zap.InfoLevel)
	logger := zap.New(core).Sugar()

	h := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/set.cgi?cmd=login", strings.NewReader(`{"password":"x"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	entries := obs.All()
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Message, "cmd=login")
	require.Contains(t, entries[0].Message, "status=201")
	require.NotContains(t, entries[0].Message, "password")
}

func TestDevice_RunStopsOnCancel(t *testing.T) {
	d := New("admin", "secret", 48200, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout")
	}
}
