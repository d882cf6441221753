package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/gridadmin/pkg/admin"
	"github.com/crystal-mush/gridadmin/pkg/attach"
	"github.com/crystal-mush/gridadmin/pkg/audit"
	"github.com/crystal-mush/gridadmin/pkg/events"
	"github.com/crystal-mush/gridadmin/pkg/metrics"
	"github.com/crystal-mush/gridadmin/pkg/world"
	"github.com/crystal-mush/gridadmin/pkg/world/worldtest"
)

type fixture struct {
	srv   *Server
	svc   *admin.Service
	w     *world.World
	token string
}

// newFixture builds a ship (grid 1) with a rotor arm (grid 2), parked on a
// station (grid 3) by landing gear.
func newFixture(t *testing.T, passHash string) *fixture {
	t.Helper()
	b := worldtest.New(t)
	b.Grid(1, 7)
	b.Grid(2, 8)
	b.StaticGrid(3, 9)
	b.Rotor(1, 10, 2, 11)
	b.Gear(1, 12, 3, true)
	b.Cockpit(1, 13, 42)
	b.Block(1, &world.Block{ID: 14, Type: world.BlockThruster, Enabled: true, Working: true})
	b.W.Grid(1).Physics.Linear = world.Vector3{X: 10}

	store, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	bus := events.NewBus()
	svc := admin.New(b.W,
		admin.WithBus(bus),
		admin.WithAudit(store),
		admin.WithMetrics(metrics.New(reg)),
	)
	srv := New(svc, bus, reg, Config{
		JWTSecret:     "test-secret",
		AdminPassHash: passHash,
		DefaultMode:   attach.All,
	}, zerolog.Nop())

	token, err := srv.Auth().Issue(5)
	require.NoError(t, err)
	return &fixture{srv: srv, svc: svc, w: b.W, token: token}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func ids(v any) []int64 {
	var out []int64
	for _, x := range v.([]any) {
		out = append(out, int64(x.(float64)))
	}
	return out
}

func TestHealthNeedsNoToken(t *testing.T) {
	f := newFixture(t, "")
	f.token = ""
	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(3), decode(t, rec)["grids"])
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t, "")
	f.token = ""
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/v1/grids/1/attached", nil).Code)

	f.token = "garbage"
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/v1/grids/1/attached", nil).Code)
}

func TestAttached(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/v1/grids/1/attached", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "all", body["mode"])
	require.Equal(t, []int64{1, 2, 3}, ids(body["grids"]))

	rec = f.do(t, http.MethodGet, "/api/v1/grids/1/attached?mode=static", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int64{1, 2}, ids(decode(t, rec)["grids"]))

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/grids/1/attached?mode=sideways", nil).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/grids/abc/attached", nil).Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/grids/99/attached", nil).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/grids/10/attached", nil).Code)
}

func TestOwners(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/api/v1/grids/1/owners", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int64{7, 8}, ids(decode(t, rec)["owners"]), "the geared station is not rigidly attached")
}

func TestStopShipAndAudit(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/v1/grids/1/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep admin.HaltReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Equal(t, []world.EntityID{1, 2}, rep.Halted)
	require.Equal(t, []world.EntityID{3}, rep.Static)
	require.False(t, f.w.Grid(1).Physics.Moving())

	rec = f.do(t, http.MethodGet, "/api/v1/audit?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Entries []audit.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Entries, 1)
	require.Equal(t, "stop", out.Entries[0].Action)
	require.Equal(t, world.PlayerID(5), out.Entries[0].Actor, "actions are attributed to the token's actor")

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/audit?limit=0", nil).Code)
}

func TestStopEntity(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/api/v1/entities/14/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decode(t, rec)["stopped"], "blocks cannot be stopped on their own")

	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/v1/entities/99/stop", nil).Code)
}

func TestEject(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/api/v1/grids/1/eject", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int64{42}, ids(decode(t, rec)["ejected"]))
	require.Equal(t, world.PlayerID(0), f.w.Block(13).Pilot)

	rec = f.do(t, http.MethodPost, "/api/v1/grids/1/eject", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode(t, rec)["ejected"])
}

func TestPower(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/api/v1/blocks/14/power", map[string]bool{"on": false})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.False(t, f.w.Block(14).Enabled)

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/blocks/14/power", map[string]int{"x": 1}).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/blocks/1/power", map[string]bool{"on": true}).Code)
}

func TestValidateEndpoint(t *testing.T) {
	f := newFixture(t, "")
	f.w.Block(10).RotorEntityID = 500

	rec := f.do(t, http.MethodGet, "/api/v1/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.GreaterOrEqual(t, body["total_findings"], float64(2), "dangling stator plus detached rotor")
	cats := body["categories"].(map[string]any)
	require.Contains(t, cats, "dangling-joint")
	require.Contains(t, cats, "detached-rotor")
}

func TestLoginEndpoint(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	f := newFixture(t, hash)
	f.token = ""

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]any{"actor": 9, "password": "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode(t, rec)["token"].(string)
	claims, err := f.srv.Auth().ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, world.PlayerID(9), claims.Actor)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]any{"actor": 9, "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	f.token = token
	rec = f.do(t, http.MethodPost, "/api/v1/auth/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decode(t, rec)["token"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "")
	f.do(t, http.MethodGet, "/api/v1/grids/1/attached", nil)

	f.token = ""
	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `gridadmin_discoveries_total{mode="all"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, "")
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/grids/1/attached", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2)
	require.True(t, rl.allow("1.2.3.4"))
	require.True(t, rl.allow("1.2.3.4"))
	require.False(t, rl.allow("1.2.3.4"))
	require.True(t, rl.allow("5.6.7.8"))

	require.True(t, newRateLimiter(0).allow("1.2.3.4"), "zero means unlimited")
}

func TestWebSocketStreamsActorEvents(t *testing.T) {
	f := newFixture(t, "")
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + f.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "welcome", msg.Type)

	_, err = f.svc.As(5).StopShip(1)
	require.NoError(t, err)

	for {
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "halt" {
			break
		}
	}
	require.Equal(t, world.EntityID(1), msg.Entity)
	require.Equal(t, []world.EntityID{1, 2}, msg.Grids)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "ping"}))
	for {
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "pong" {
			break
		}
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	f := newFixture(t, "")
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
