// internal/ws/server_test.go
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/proctord/internal/detect"
	"github.com/user/proctord/internal/extract"
	"github.com/user/proctord/internal/monitor"
	"github.com/user/proctord/internal/report"
	"github.com/user/proctord/internal/state"
	"github.com/user/proctord/internal/types"
)

type testServer struct {
	http       *httptest.Server
	registry   *state.Registry
	profiles   *state.ProfileStore
	events     *state.EventLog
	dispatcher *monitor.Dispatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	registry := state.NewRegistry()
	profiles := state.NewProfileStore()
	events := state.NewEventLog()
	reports, err := report.NewGenerator(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	mon := monitor.New(registry, profiles, events, detect.New(detect.DefaultLimits()), reports)
	dispatcher := monitor.NewDispatcher(4)
	dispatcher.Start(context.Background())
	t.Cleanup(dispatcher.Stop)

	srv := NewServer(Deps{
		Monitor:        mon,
		Dispatcher:     dispatcher,
		Profiles:       profiles,
		Registry:       registry,
		Events:         events,
		Reports:        reports,
		Vision:         extract.NullVision{},
		Audio:          extract.NullAudio{},
		Questions:      []string{"Tell me about a project you are proud of."},
		ExtractTimeout: time.Second,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{http: ts, registry: registry, profiles: profiles, events: events, dispatcher: dispatcher}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readOutbound(t *testing.T, conn *websocket.Conn) types.Outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Event string          `json:"type"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	return types.Outbound{Event: out.Event, Data: out.Data}
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatal(err)
	}
}

func TestWebsocketCallLifecycle(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	send(t, conn, map[string]string{"type": "start_call", "call_id": "c1", "user_name": "alice"})
	if out := readOutbound(t, conn); out.Event != "call_started" {
		t.Fatalf("expected call_started, got %q", out.Event)
	}

	// NullVision sees one centered face, so a frame yields a clean status.
	image := base64.StdEncoding.EncodeToString([]byte("jpegdata"))
	send(t, conn, map[string]string{"type": "frame", "call_id": "c1", "image": image})
	out := readOutbound(t, conn)
	if out.Event != "status" {
		t.Fatalf("expected status, got %q", out.Event)
	}
	var status types.StatusData
	if err := json.Unmarshal(out.Data.(json.RawMessage), &status); err != nil {
		t.Fatal(err)
	}
	if status.FaceCount != 1 || status.Warnings != 0 {
		t.Errorf("unexpected status %+v", status)
	}

	send(t, conn, map[string]string{"type": "end_call", "call_id": "c1"})
	if out := readOutbound(t, conn); out.Event != "call_ended" {
		t.Fatalf("expected call_ended, got %q", out.Event)
	}
}

func TestWebsocketAlertEscalation(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	send(t, conn, map[string]string{"type": "start_call", "call_id": "c1", "user_name": "alice"})
	readOutbound(t, conn)

	for i := 1; i <= 2; i++ {
		send(t, conn, map[string]string{"type": "client_alert", "call_id": "c1", "alert_type": "tab_switch"})
		out := readOutbound(t, conn)
		if out.Event != "violation" {
			t.Fatalf("alert %d: expected violation, got %q", i, out.Event)
		}
	}

	send(t, conn, map[string]string{"type": "client_alert", "call_id": "c1", "alert_type": "tab_switch"})
	if out := readOutbound(t, conn); out.Event != "violation" {
		t.Fatalf("expected violation, got %q", out.Event)
	}
	out := readOutbound(t, conn)
	if out.Event != "terminated" {
		t.Fatalf("expected terminated, got %q", out.Event)
	}
	var term types.TerminatedData
	if err := json.Unmarshal(out.Data.(json.RawMessage), &term); err != nil {
		t.Fatal(err)
	}
	if term.Msg != "tab_switch" {
		t.Errorf("expected reason tab_switch, got %q", term.Msg)
	}

	// The terminated session now answers every event with the notice.
	send(t, conn, map[string]string{"type": "client_alert", "call_id": "c1", "alert_type": "tab_switch"})
	if out := readOutbound(t, conn); out.Event != "terminated" {
		t.Fatalf("expected repeat terminated, got %q", out.Event)
	}
}

func TestWebsocketDecodeErrors(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{broken`)); err != nil {
		t.Fatal(err)
	}
	out := readOutbound(t, conn)
	if out.Event != "error" {
		t.Fatalf("expected error, got %q", out.Event)
	}
	var errData types.ErrorData
	if err := json.Unmarshal(out.Data.(json.RawMessage), &errData); err != nil {
		t.Fatal(err)
	}
	if errData.Code != "bad_request" {
		t.Errorf("expected bad_request, got %q", errData.Code)
	}

	send(t, conn, map[string]string{"type": "selfie"})
	out = readOutbound(t, conn)
	if err := json.Unmarshal(out.Data.(json.RawMessage), &errData); err != nil {
		t.Fatal(err)
	}
	if errData.Code != "unknown_type" {
		t.Errorf("expected unknown_type, got %q", errData.Code)
	}
}

func TestWebsocketDuplicateStart(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	send(t, conn, map[string]string{"type": "start_call", "call_id": "c1", "user_name": "alice"})
	readOutbound(t, conn)

	send(t, conn, map[string]string{"type": "start_call", "call_id": "c1", "user_name": "bob"})
	out := readOutbound(t, conn)
	if out.Event != "error" {
		t.Fatalf("expected error, got %q", out.Event)
	}
	var errData types.ErrorData
	if err := json.Unmarshal(out.Data.(json.RawMessage), &errData); err != nil {
		t.Fatal(err)
	}
	if errData.Code != "duplicate_session" {
		t.Errorf("expected duplicate_session, got %q", errData.Code)
	}
}

func TestHealthAndQuestions(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.http.URL + "/questions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Questions []string `json:"questions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Questions) != 1 {
		t.Errorf("expected 1 question, got %d", len(body.Questions))
	}
}

func TestRegisterEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.http.URL+"/register", "application/json",
		strings.NewReader(`{"name":"alice","image_data":"ZmFjZQ=="}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if _, err := ts.profiles.Get(context.Background(), "alice"); err != nil {
		t.Error("expected profile after register")
	}

	// Missing fields are rejected by binding.
	resp, err = http.Post(ts.http.URL+"/register", "application/json",
		strings.NewReader(`{"name":"alice"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRegisterVoiceUnavailable(t *testing.T) {
	ts := newTestServer(t)

	// AudioReady is false with the null extractor.
	resp, err := http.Post(ts.http.URL+"/register_voice", "application/json",
		strings.NewReader(`{"name":"alice","audio_data":"d2F2"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestReportEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	resp, err := http.Get(ts.http.URL + "/report/ghost")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown call, got %d", resp.StatusCode)
	}

	ts.events.Append(ctx, "c1", "call started by alice")
	ts.events.Append(ctx, "c1", "intruder faces=2")

	resp, err = http.Get(ts.http.URL + "/report/c1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "report_c1.txt") {
		t.Errorf("unexpected disposition %q", cd)
	}

	resp, err = http.Get(ts.http.URL + "/report/c1/pdf")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("pdf: expected 200, got %d", resp.StatusCode)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	ts.registry.Create(ctx, "c1", "alice")
	ts.events.Append(ctx, "c1", "call started by alice")

	resp, err := http.Get(ts.http.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var sessions []struct {
		CallID     string `json:"call_id"`
		UserName   string `json:"user_name"`
		EventCount int64  `json:"event_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].CallID != "c1" || sessions[0].EventCount != 1 {
		t.Errorf("unexpected sessions %+v", sessions)
	}
}
