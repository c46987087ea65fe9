package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

func newTestServer(t *testing.T, adminPass string) (*httptest.Server, *World, *Auth) {
	t.Helper()
	db := testDB(t)
	auth, err := NewAuth(db, adminPass)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}

	world := NewWorld(nil)
	world.LoadEntities([]WorldEntityRow{
		{ID: "a1", Kind: TypeAnt, X: 100, Y: 100},
		{ID: "a2", Kind: TypeAnt, X: 300, Y: 300},
		{ID: "r1", Kind: TypeResource, X: 150, Y: 150, Amount: 40},
		{ID: "b1", Kind: TypeBuilding, X: WorldWidth / 2, Y: WorldHeight / 2},
	})

	hub := NewHub(world, db, auth)
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub, ""))
	t.Cleanup(srv.Close)
	return srv, world, auth
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	payload, err := json.Marshal(Envelope{T: msgType, Data: data})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readEnvelope reads text frames until one matches wantType
func readEnvelope(t *testing.T, conn *websocket.Conn, wantType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		var env InEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad envelope %q: %v", data, err)
		}
		if env.T == MsgError && wantType != MsgError {
			t.Fatalf("got error from server: %s", env.D)
		}
		if env.T == wantType {
			return env.D
		}
	}
	t.Fatalf("no %q message within deadline", wantType)
	return nil
}

func TestIntegrationWelcomeAndWatch(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	conn := dialWS(t, srv)

	var welcome WelcomeMsg
	if err := json.Unmarshal(readEnvelope(t, conn, MsgWelcome), &welcome); err != nil {
		t.Fatalf("welcome decode: %v", err)
	}
	if welcome.CellSize != CellSize || welcome.WorldWidth != WorldWidth {
		t.Errorf("welcome = %+v", welcome)
	}
	if welcome.ID == "" {
		t.Error("welcome has no observer id")
	}

	sendMsg(t, conn, MsgWatch, WatchMsg{X: 200, Y: 200, Radius: 500})
	var watching WatchingMsg
	if err := json.Unmarshal(readEnvelope(t, conn, MsgWatching), &watching); err != nil {
		t.Fatalf("watching decode: %v", err)
	}
	if watching.X != 200 || watching.Y != 200 || watching.Radius != 500 {
		t.Errorf("watching = %+v", watching)
	}
}

func TestIntegrationSnapshotStream(t *testing.T) {
	srv, world, _ := newTestServer(t, "")
	conn := dialWS(t, srv)

	sendMsg(t, conn, MsgWatch, WatchMsg{X: 150, Y: 150, Radius: 500})
	readEnvelope(t, conn, MsgWatching) // observer is registered now

	for i := 0; i < BroadcastEvery; i++ {
		world.update()
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		var snap SnapshotMsg
		if err := msgpack.Unmarshal(data, &snap); err != nil {
			t.Fatalf("snapshot decode: %v", err)
		}
		ids := make(map[string]bool)
		for _, e := range snap.Entities {
			ids[e.ID] = true
		}
		// Everything within 500 of (150,150) is in frame
		for _, want := range []string{"a1", "a2", "r1"} {
			if !ids[want] {
				t.Errorf("snapshot missing %s: %+v", want, snap.Entities)
			}
		}
		if ids["b1"] {
			t.Error("snapshot contains the far-away nest")
		}
		return
	}
}

func TestIntegrationQueries(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	conn := dialWS(t, srv)

	// Nearest resource from near a1
	sendMsg(t, conn, MsgQuery, QueryMsg{Kind: QueryNearest, X: 100, Y: 100, Type: TypeResource})
	var res ResultMsg
	if err := json.Unmarshal(readEnvelope(t, conn, MsgResult), &res); err != nil {
		t.Fatalf("result decode: %v", err)
	}
	if res.Count != 1 || len(res.Entities) != 1 || res.Entities[0].ID != "r1" {
		t.Fatalf("nearest result = %+v, want r1", res)
	}

	// Rect selection around the cluster
	sendMsg(t, conn, MsgQuery, QueryMsg{Kind: QueryRect, Left: 50, Top: 50, Right: 200, Bottom: 200})
	if err := json.Unmarshal(readEnvelope(t, conn, MsgResult), &res); err != nil {
		t.Fatalf("result decode: %v", err)
	}
	if res.Count != 2 { // a1 and r1
		t.Errorf("rect result count = %d, want 2: %+v", res.Count, res.Entities)
	}

	// Radius query with type filter
	sendMsg(t, conn, MsgQuery, QueryMsg{Kind: QueryNearby, X: 200, Y: 200, Radius: 300, Type: TypeAnt})
	if err := json.Unmarshal(readEnvelope(t, conn, MsgResult), &res); err != nil {
		t.Fatalf("result decode: %v", err)
	}
	if res.Count != 2 {
		t.Errorf("nearby ants = %d, want 2: %+v", res.Count, res.Entities)
	}

	// Unknown kind is answered with an error
	sendMsg(t, conn, MsgQuery, QueryMsg{Kind: "spiral"})
	var errMsg ErrorMsg
	if err := json.Unmarshal(readEnvelope(t, conn, MsgError), &errMsg); err != nil {
		t.Fatalf("error decode: %v", err)
	}
	if errMsg.Msg != "unknown query kind" {
		t.Errorf("error = %q", errMsg.Msg)
	}
}

func TestIntegrationStats(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	conn := dialWS(t, srv)

	sendMsg(t, conn, MsgStats, nil)
	var stats StatsMsg
	if err := json.Unmarshal(readEnvelope(t, conn, MsgStatsData), &stats); err != nil {
		t.Fatalf("stats decode: %v", err)
	}
	if stats.Stats.TotalEntities != 4 {
		t.Errorf("stats entities = %d, want 4", stats.Stats.TotalEntities)
	}
	if stats.Stats.CellSize != CellSize {
		t.Errorf("stats cell size = %f", stats.Stats.CellSize)
	}
}

func TestIntegrationAdminFlow(t *testing.T) {
	srv, _, _ := newTestServer(t, "hunter2hunter2")
	conn := dialWS(t, srv)

	// Scatter without logging in is refused
	sendMsg(t, conn, MsgScatter, ScatterMsg{})
	readEnvelope(t, conn, MsgError)

	// Wrong password
	sendMsg(t, conn, MsgLogin, LoginMsg{Password: "wrong"})
	readEnvelope(t, conn, MsgError)

	// Login, then scatter works
	sendMsg(t, conn, MsgLogin, LoginMsg{Password: "hunter2hunter2"})
	var loginOK LoginOKMsg
	if err := json.Unmarshal(readEnvelope(t, conn, MsgLoginOK), &loginOK); err != nil {
		t.Fatalf("login decode: %v", err)
	}
	if loginOK.Token == "" {
		t.Fatal("empty token")
	}

	sendMsg(t, conn, MsgScatter, ScatterMsg{})
	var scattered map[string]int
	if err := json.Unmarshal(readEnvelope(t, conn, MsgScattered), &scattered); err != nil {
		t.Fatalf("scattered decode: %v", err)
	}
	if scattered["entities"] != 4 {
		t.Errorf("scattered entities = %d, want 4", scattered["entities"])
	}

	// A second connection can use the token instead of a session
	conn2 := dialWS(t, srv)
	sendMsg(t, conn2, MsgScatter, ScatterMsg{Token: loginOK.Token})
	if err := json.Unmarshal(readEnvelope(t, conn2, MsgScattered), &scattered); err != nil {
		t.Fatalf("token scatter decode: %v", err)
	}
}

func TestIntegrationMetricsAPI(t *testing.T) {
	srv, _, auth := newTestServer(t, "hunter2hunter2")

	resp, err := http.Get(srv.URL + "/api/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	token, err := auth.Login("hunter2hunter2", "test")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	req, _ := http.NewRequest("GET", srv.URL+"/api/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Stats struct {
			TotalEntities int `json:"totalEntities"`
		} `json:"stats"`
		Observers int `json:"observers"`
		Clients   int `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stats.TotalEntities != 4 {
		t.Errorf("metrics entities = %d, want 4", body.Stats.TotalEntities)
	}
}

func TestIntegrationMetricsAPIOpenWithoutAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("open metrics status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/metrics/history")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("history status = %d, want 200", resp.StatusCode)
	}
}
