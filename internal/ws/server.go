// internal/ws/server.go
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/user/proctord/internal/monitor"
	"github.com/user/proctord/internal/types"
)

// maxMessageBytes bounds one websocket frame; video stills dominate.
const maxMessageBytes = 8 << 20

// Deps wires the transport adapter to the monitoring core.
type Deps struct {
	Monitor        *monitor.Monitor
	Dispatcher     *monitor.Dispatcher
	Profiles       types.ProfileStore
	Registry       types.SessionRegistry
	Events         types.EventLog
	Reports        types.ReportRenderer
	Vision         types.VisionExtractor
	Audio          types.AudioExtractor
	AudioReady     bool
	Questions      []string
	ExtractTimeout time.Duration
}

// Server is the HTTP and websocket surface. It owns no session state: it
// decodes frames, pushes work onto the per-call dispatcher, and delivers
// whatever notifications the monitor returns.
type Server struct {
	deps     Deps
	upgrader websocket.Upgrader
	router   *gin.Engine
}

// NewServer builds the router over the given dependencies.
func NewServer(deps Deps) *Server {
	if deps.ExtractTimeout <= 0 {
		deps.ExtractTimeout = 2 * time.Second
	}
	s := &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", s.handleHealth)
	r.GET("/questions", s.handleQuestions)
	r.POST("/register", s.handleRegister)
	r.POST("/register_voice", s.handleRegisterVoice)
	r.GET("/report/:call_id", s.handleReportText)
	r.GET("/report/:call_id/pdf", s.handleReportPDF)
	r.GET("/api/sessions", s.handleSessions)
	r.GET("/ws", s.handleWS)
	s.router = r
	return s
}

// Handler exposes the router for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": s.deps.Questions})
}

type registerRequest struct {
	Name      string `json:"name" binding:"required"`
	ImageData string `json:"image_data" binding:"required"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "name and image required"})
		return
	}
	if _, err := s.deps.Profiles.RegisterFace(c.Request.Context(), req.Name, req.ImageData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	s.deps.Events.Append(c.Request.Context(), "system", fmt.Sprintf("registered face for %s", req.Name))
	c.JSON(http.StatusOK, gin.H{"ok": true, "msg": fmt.Sprintf("registered face for %s", req.Name)})
}

type registerVoiceRequest struct {
	Name      string `json:"name" binding:"required"`
	AudioData string `json:"audio_data" binding:"required"`
}

func (s *Server) handleRegisterVoice(c *gin.Context) {
	if !s.deps.AudioReady {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "no audio extractor configured"})
		return
	}
	var req registerVoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "name and audio required"})
		return
	}
	raw, err := DecodeMedia(req.AudioData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.deps.ExtractTimeout)
	defer cancel()
	embedding, err := s.deps.Audio.ExtractEmbedding(ctx, raw)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if _, err := s.deps.Profiles.RegisterVoice(c.Request.Context(), req.Name, embedding); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	s.deps.Events.Append(c.Request.Context(), "system", fmt.Sprintf("registered voice for %s", req.Name))
	c.JSON(http.StatusOK, gin.H{"ok": true, "msg": fmt.Sprintf("registered voice for %s", req.Name)})
}

// terminationReason returns the reason for a terminated call, empty
// otherwise.
func (s *Server) terminationReason(ctx context.Context, callID types.CallID) string {
	sess, err := s.deps.Registry.Get(ctx, callID)
	if err != nil {
		return ""
	}
	view := sess.View()
	if view.Terminated {
		return view.TerminationReason
	}
	return ""
}

func (s *Server) handleReportText(c *gin.Context) {
	callID := types.CallID(c.Param("call_id"))
	entries, err := s.deps.Events.Entries(c.Request.Context(), callID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "no logs"})
		return
	}
	path, err := s.deps.Reports.RenderText(callID, entries, s.terminationReason(c.Request.Context(), callID))
	if err != nil {
		slog.Error("text report failed", "call_id", string(callID), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "report generation failed"})
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (s *Server) handleReportPDF(c *gin.Context) {
	callID := types.CallID(c.Param("call_id"))
	entries, err := s.deps.Events.Entries(c.Request.Context(), callID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "no logs"})
		return
	}
	path, err := s.deps.Reports.RenderPDF(callID, entries, s.terminationReason(c.Request.Context(), callID))
	if err != nil {
		slog.Error("pdf report failed", "call_id", string(callID), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "report generation failed"})
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

type sessionResponse struct {
	CallID            string `json:"call_id"`
	UserName          string `json:"user_name"`
	Warnings          int    `json:"warnings"`
	Violations        int    `json:"violations"`
	Terminated        bool   `json:"terminated"`
	TerminationReason string `json:"termination_reason,omitempty"`
	StartedAt         string `json:"started_at"`
	EventCount        int64  `json:"event_count"`
}

func (s *Server) handleSessions(c *gin.Context) {
	ctx := c.Request.Context()
	sessions := s.deps.Registry.List(ctx)

	result := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		view := sess.View()
		result = append(result, sessionResponse{
			CallID:            string(view.CallID),
			UserName:          view.UserName,
			Warnings:          view.Warnings,
			Violations:        view.Violations,
			Terminated:        view.Terminated,
			TerminationReason: view.TerminationReason,
			StartedAt:         view.StartedAt.Format(time.RFC3339),
			EventCount:        s.deps.Events.Count(ctx, view.CallID),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt > result[j].StartedAt
	})
	c.JSON(http.StatusOK, result)
}

// connWriter serializes websocket writes; monitor results for one
// connection can arrive from several dispatcher workers at once.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *connWriter) send(out types.Outbound) {
	data, err := json.Marshal(out)
	if err != nil {
		slog.Error("marshal outbound failed", "event", out.Event, "error", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("write outbound failed", "event", out.Event, "error", err)
	}
}

func (w *connWriter) sendAll(outs []types.Outbound) {
	for _, out := range outs {
		w.send(out)
	}
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	w := &connWriter{conn: conn}
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.dispatchMessage(c.Request.Context(), w, data)
	}
}

// dispatchMessage routes one decoded frame. start_call is handled inline
// so the session exists before any queued events for it are processed;
// everything else goes through the per-call lane to keep arrival order.
func (s *Server) dispatchMessage(ctx context.Context, w *connWriter, data []byte) {
	msg, err := DecodeClientMessage(data)
	if err != nil {
		var decodeErr *DecodeError
		code := "bad_request"
		if errors.As(err, &decodeErr) {
			code = decodeErr.Code
		}
		w.send(types.Outbound{Event: "error", Data: types.ErrorData{Code: code, Msg: err.Error()}})
		return
	}

	switch m := msg.(type) {
	case StartCall:
		w.sendAll(s.deps.Monitor.StartCall(ctx, types.CallID(m.CallID), m.UserName))
	case Frame:
		if m.CallID == "" || m.Image == "" {
			return
		}
		s.enqueue(types.CallID(m.CallID), func(ctx context.Context) {
			s.processFrame(ctx, w, types.CallID(m.CallID), m.Image)
		})
	case AudioChunk:
		if m.CallID == "" || m.Audio == "" {
			return
		}
		s.enqueue(types.CallID(m.CallID), func(ctx context.Context) {
			s.processAudio(ctx, w, types.CallID(m.CallID), m.Audio)
		})
	case ClientAlert:
		if m.CallID == "" {
			return
		}
		s.enqueue(types.CallID(m.CallID), func(ctx context.Context) {
			w.sendAll(s.deps.Monitor.HandleAlert(ctx, types.CallID(m.CallID), m.AlertType, m.Detail))
		})
	case Transcript:
		if m.CallID == "" {
			return
		}
		s.enqueue(types.CallID(m.CallID), func(ctx context.Context) {
			w.sendAll(s.deps.Monitor.HandleTranscript(ctx, types.CallID(m.CallID), m.Text))
		})
	case EndCall:
		if m.CallID == "" {
			return
		}
		s.enqueue(types.CallID(m.CallID), func(ctx context.Context) {
			w.sendAll(s.deps.Monitor.EndCall(ctx, types.CallID(m.CallID)))
		})
	}
}

func (s *Server) enqueue(callID types.CallID, fn func(ctx context.Context)) {
	task := &monitor.Task{CallID: callID, Fn: fn}
	if err := s.deps.Dispatcher.Enqueue(task); err != nil {
		slog.Warn("dispatch failed", "call_id", string(callID), "error", err)
	}
}

// processFrame decodes and extracts one video frame, then runs the frame
// rules. Decode and extractor failures are logged against the call and the
// sample is skipped.
func (s *Server) processFrame(ctx context.Context, w *connWriter, callID types.CallID, image string) {
	if _, err := s.deps.Registry.Get(ctx, callID); err != nil {
		return
	}
	raw, err := DecodeMedia(image)
	if err != nil {
		s.deps.Events.Append(ctx, callID, fmt.Sprintf("image decode error: %v", err))
		return
	}
	ectx, cancel := context.WithTimeout(ctx, s.deps.ExtractTimeout)
	defer cancel()
	features, err := s.deps.Vision.ExtractFrame(ectx, raw)
	if err != nil {
		s.deps.Events.Append(ctx, callID, fmt.Sprintf("frame extract error: %v", err))
		return
	}
	w.sendAll(s.deps.Monitor.HandleFrame(ctx, callID, features))
}

// processAudio decodes and embeds one audio chunk, then runs the voice
// rule. An unconfigured extractor degrades to logging the sample.
func (s *Server) processAudio(ctx context.Context, w *connWriter, callID types.CallID, audio string) {
	if _, err := s.deps.Registry.Get(ctx, callID); err != nil {
		return
	}
	raw, err := DecodeMedia(audio)
	if err != nil {
		s.deps.Events.Append(ctx, callID, fmt.Sprintf("audio decode error: %v", err))
		return
	}
	ectx, cancel := context.WithTimeout(ctx, s.deps.ExtractTimeout)
	defer cancel()
	embedding, err := s.deps.Audio.ExtractEmbedding(ectx, raw)
	if err != nil {
		if errors.Is(err, types.ErrExtractorUnavailable) {
			s.deps.Events.Append(ctx, callID, "audio chunk received (no audio extractor)")
		} else {
			s.deps.Events.Append(ctx, callID, fmt.Sprintf("audio extract error: %v", err))
		}
		return
	}
	w.sendAll(s.deps.Monitor.HandleAudio(ctx, callID, embedding))
}
