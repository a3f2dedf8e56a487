package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/domain"
	"trivia-session-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.GameService) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	service := app.NewGameService(memory.NewSessionStore(), quizRepo, memory.NewDefaultCatalog(), app.Options{
		Presenter: hub,
		Logger:    logger,
		Rules:     app.Rules{StarterInventory: -1, LootChance: -1},
	})
	server := httptest.NewServer(NewRouter(service, hub, logger))
	t.Cleanup(server.Close)
	return server, service
}

func TestWebSocketAnswerFlow(t *testing.T) {
	server, _ := newTestServer(t)

	postJSON(t, server.URL+"/sessions", `{"contextId":"room-1","quiz":"capitals"}`, http.StatusCreated)

	conn := dial(t, server, "room-1", "u1", "Alice")
	if typ, _ := readNext(conn, t, "joined"); typ != "joined" {
		t.Fatalf("expected joined, got %s", typ)
	}

	postJSON(t, server.URL+"/sessions/room-1/start", ``, http.StatusNoContent)

	send(t, conn, "open", nil)
	_, raw := readNext(conn, t, "board")
	var view app.QuestionView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("decode board: %v", err)
	}
	if view.Text != "Capital of France?" || view.Board == "" || len(view.Options) != 3 {
		t.Fatalf("unexpected board %+v", view)
	}

	display := -1
	for _, opt := range view.Options {
		if opt.Text == "Paris" {
			display = opt.Display
		}
	}
	send(t, conn, "select", map[string]any{"display": display})
	_, raw = readNext(conn, t, "resolution")
	var res app.Resolution
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode resolution: %v", err)
	}
	// answered within milliseconds of the board opening
	if !res.Correct || res.Points < 990 || !res.Finished {
		t.Fatalf("unexpected resolution %+v", res)
	}

	send(t, conn, "leaderboard", nil)
	_, raw = readNext(conn, t, "leaderboard")
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].Score != res.Points {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}

	resp, err := http.Get(server.URL + "/sessions/room-1/leaderboard")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	body := postJSON(t, server.URL+"/sessions/room-1/finish", ``, http.StatusOK)
	var summary app.SessionSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Stats.CompletionRate != 1 || summary.Players[0].UserID != "u1" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	postJSON(t, server.URL+"/sessions/room-1/finish", ``, http.StatusNotFound)
}

func TestReplacedBoardIsExpired(t *testing.T) {
	server, service := newTestServer(t)
	ctx := context.Background()
	if _, err := service.CreateSession(ctx, "room-1", "capitals"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Join(ctx, "room-1", "u1", "Alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := service.Start(ctx, "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	first := dial(t, server, "room-1", "u1", "Alice")
	readNext(first, t, "joined")
	readNext(first, t, "board")

	second := dial(t, server, "room-1", "u1", "Alice")
	readNext(second, t, "joined")
	readNext(second, t, "board")

	// the earlier connection is told it expired and then closed
	_, raw := readNext(first, t, "expired")
	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode expired: %v", err)
	}
	if payload.Code != "board_expired" {
		t.Fatalf("unexpected code %q", payload.Code)
	}
	_ = first.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatalf("expected replaced connection closed")
	}

	send(t, second, "leaderboard", nil)
	readNext(second, t, "leaderboard")
}

func TestHubRegisterRetiresPreviousClient(t *testing.T) {
	hub := NewHub()
	first, second := newClient(), newClient()
	hub.register("room-1", "u1", first)
	hub.register("room-1", "u1", first)
	select {
	case <-first.replaced:
		t.Fatalf("re-registering the same client must not retire it")
	default:
	}

	hub.register("room-1", "u1", second)
	select {
	case <-first.replaced:
	default:
		t.Fatalf("expected first client retired")
	}

	hub.unregister("room-1", "u1", first)
	if err := hub.PushResolution(context.Background(), app.Resolution{ContextID: "room-1", PlayerID: "u1"}); err != nil {
		t.Fatalf("expected push to reach the second client: %v", err)
	}
	if msg := <-second.send; msg.Type != "resolution" {
		t.Fatalf("unexpected push %+v", msg)
	}
}

func TestPowerUpPushesReachOtherPlayers(t *testing.T) {
	server, service := newTestServer(t)
	ctx := context.Background()
	if _, err := service.CreateSession(ctx, "room-1", "capitals"); err != nil {
		t.Fatalf("create: %v", err)
	}

	alice := dial(t, server, "room-1", "u1", "Alice")
	readNext(alice, t, "joined")
	bob := dial(t, server, "room-1", "u2", "Bob")
	readNext(bob, t, "joined")

	if err := service.Start(ctx, "room-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	send(t, alice, "open", nil)
	readNext(alice, t, "board")
	send(t, bob, "open", nil)
	readNext(bob, t, "board")

	postJSON(t, server.URL+"/sessions/room-1/players/u1/powerups", `{"name":"Power Play"}`, http.StatusNoContent)
	send(t, alice, "activate", map[string]any{"slot": 0})

	seenActivated := false
	for !seenActivated {
		typ, _ := readNext(alice, t, "")
		seenActivated = typ == "activated"
	}

	_, raw := readNext(bob, t, "board")
	var view app.QuestionView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("decode pushed board: %v", err)
	}
	if !view.PowerPlay {
		t.Fatalf("expected power play pushed to Bob, got %+v", view)
	}
}

func TestAdminErrors(t *testing.T) {
	server, _ := newTestServer(t)

	postJSON(t, server.URL+"/sessions", `{"contextId":"room-1"}`, http.StatusBadRequest)
	postJSON(t, server.URL+"/sessions", `{"contextId":"room-1","quiz":"missing"}`, http.StatusNotFound)
	postJSON(t, server.URL+"/sessions/room-9/start", ``, http.StatusNotFound)
	postJSON(t, server.URL+"/sessions", `{"contextId":"room-1","quiz":"capitals"}`, http.StatusCreated)
	postJSON(t, server.URL+"/sessions/room-1/start", ``, http.StatusConflict)

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/sessions/room-1/players/ghost", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden for unknown participant, got %d", resp.StatusCode)
	}
}

func TestServeWSRequiresIdentity(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/ws?contextId=room-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}
}

func dial(t *testing.T, server *httptest.Server, contextID, userID, name string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?contextId=" + contextID + "&userId=" + userID + "&name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%s)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func postJSON(t *testing.T, url, body string, wantStatus int) []byte {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("post %s: expected %d, got %d (%s)", url, wantStatus, resp.StatusCode, data)
	}
	return data
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"capitals": {
			Name:      "capitals",
			CreatorID: "admin",
			Questions: []domain.Question{
				{
					Text:           "Capital of France?",
					Options:        []string{"Berlin", "Paris", "Rome"},
					CorrectIndices: []int{1},
				},
			},
		},
	}
}
