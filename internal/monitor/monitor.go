// internal/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/proctord/internal/detect"
	"github.com/user/proctord/internal/types"
)

// Monitor is the escalation engine. It owns every session lifecycle
// transition: it feeds feature samples through the detector, moves the
// warning/violation counters in lockstep, appends to the audit log, and
// terminates calls that cross the warning limit. Handlers return outbound
// notifications for the transport adapter to deliver; the monitor itself
// never touches a socket.
//
// Every read-modify-write of a session's counters happens under that
// session's lock, so two samples racing toward the warning limit cannot
// double-terminate a call.
type Monitor struct {
	registry  types.SessionRegistry
	profiles  types.ProfileStore
	log       types.EventLog
	detector  *detect.Detector
	reports   types.ReportRenderer
	notifiers []types.Notifier
}

// New creates a Monitor wired to the given collaborators. reports may be
// nil to disable report artifacts.
func New(registry types.SessionRegistry, profiles types.ProfileStore, log types.EventLog, detector *detect.Detector, reports types.ReportRenderer) *Monitor {
	return &Monitor{
		registry: registry,
		profiles: profiles,
		log:      log,
		detector: detector,
		reports:  reports,
	}
}

// AddNotifier registers an out-of-band channel for termination alerts.
func (m *Monitor) AddNotifier(n types.Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Detector exposes the configured detector (read-only policy access).
func (m *Monitor) Detector() *detect.Detector {
	return m.detector
}

// StartCall registers a new session. A duplicate call ID is rejected:
// silently re-registering would reset a live session's counters.
func (m *Monitor) StartCall(ctx context.Context, callID types.CallID, userName string) []types.Outbound {
	if callID == "" {
		return []types.Outbound{errOut("call_id_required", "call_id required")}
	}
	if userName == "" {
		userName = "unknown"
	}
	if _, err := m.registry.Create(ctx, callID, userName); err != nil {
		if errors.Is(err, types.ErrDuplicateSession) {
			return []types.Outbound{errOut("duplicate_session", fmt.Sprintf("call %s already active", callID))}
		}
		slog.Error("create session failed", "call_id", string(callID), "error", err)
		return []types.Outbound{errOut("internal", "could not start call")}
	}
	m.log.Append(ctx, callID, fmt.Sprintf("call started by %s", userName))
	return []types.Outbound{{Event: "call_started", Data: types.CallStartedData{OK: true}}}
}

// HandleFrame runs one vision feature sample through the frame rules.
// Unknown call IDs are ignored; terminated calls get a repeat terminated
// notice and no counter mutation.
func (m *Monitor) HandleFrame(ctx context.Context, callID types.CallID, features *types.FrameFeatures) []types.Outbound {
	sess, err := m.registry.Get(ctx, callID)
	if err != nil {
		return nil
	}

	sess.Lock()
	if sess.Terminated {
		reason := sess.TerminationReason
		sess.Unlock()
		return []types.Outbound{terminatedOut(reason)}
	}

	violations, outStreak, awayStreak := m.detector.EvaluateFrame(features, sess.OutOfFrameStreak, sess.LookAwayStreak)
	sess.OutOfFrameStreak = outStreak
	sess.LookAwayStreak = awayStreak

	var outs []types.Outbound
	ended := false
	for _, v := range violations {
		outs = append(outs, m.recordViolation(ctx, sess, v))
		if m.checkLimit(ctx, sess, "repeated_violations") {
			ended = true
			break
		}
	}
	warnings, count := sess.Warnings, sess.Violations
	reason := sess.TerminationReason
	sess.Unlock()

	if ended {
		m.finalize(ctx, callID, reason)
		return append(outs, terminatedOut(reason))
	}
	return append(outs, types.Outbound{Event: "status", Data: types.StatusData{
		FaceCount:  features.FaceCount,
		Warnings:   warnings,
		Violations: count,
	}})
}

// HandleAudio compares one voice embedding against the enrolled reference
// for the session's user. With no enrolled voice the sample is accepted
// silently; a comparison error skips the sample.
func (m *Monitor) HandleAudio(ctx context.Context, callID types.CallID, embedding []float64) []types.Outbound {
	sess, err := m.registry.Get(ctx, callID)
	if err != nil {
		return nil
	}

	var reference []float64
	if prof, err := m.profiles.Get(ctx, sess.UserName); err == nil {
		reference = prof.VoiceEmbedding
	}
	if len(reference) == 0 {
		m.log.Append(ctx, callID, "audio processed (no enrolled voice)")
		return nil
	}

	violation, _, err := m.detector.EvaluateVoice(embedding, reference)
	if err != nil {
		m.log.Append(ctx, callID, fmt.Sprintf("voice compare skipped: %v", err))
		return nil
	}
	if violation == nil {
		return nil
	}

	sess.Lock()
	if sess.Terminated {
		reason := sess.TerminationReason
		sess.Unlock()
		return []types.Outbound{terminatedOut(reason)}
	}
	outs := []types.Outbound{m.recordViolation(ctx, sess, *violation)}
	ended := m.checkLimit(ctx, sess, "repeated_violations")
	reason := sess.TerminationReason
	sess.Unlock()

	if ended {
		m.finalize(ctx, callID, reason)
		outs = append(outs, terminatedOut(reason))
	}
	return outs
}

// HandleAlert records an externally asserted violation. Client alerts are
// unconditional: no thresholding, the supplied type and detail are taken
// as-is. A termination triggered by an alert carries the alert's type as
// its reason.
func (m *Monitor) HandleAlert(ctx context.Context, callID types.CallID, alertType, detail string) []types.Outbound {
	if alertType == "" {
		alertType = string(types.KindClientReported)
	}
	sess, err := m.registry.Get(ctx, callID)
	if err != nil {
		return nil
	}

	sess.Lock()
	if sess.Terminated {
		reason := sess.TerminationReason
		sess.Unlock()
		return []types.Outbound{terminatedOut(reason)}
	}
	v := types.Violation{
		Kind:   types.KindClientReported,
		Type:   alertType,
		Detail: detail,
	}
	outs := []types.Outbound{m.recordViolation(ctx, sess, v)}
	ended := m.checkLimit(ctx, sess, alertType)
	reason := sess.TerminationReason
	sess.Unlock()

	if ended {
		m.finalize(ctx, callID, reason)
		outs = append(outs, terminatedOut(reason))
	}
	return outs
}

// HandleTranscript appends a transcript line to the audit log. Transcripts
// are kept even when no session is registered for the ID, so a log can
// accumulate context before or after the call itself.
func (m *Monitor) HandleTranscript(ctx context.Context, callID types.CallID, text string) []types.Outbound {
	if callID == "" || text == "" {
		return nil
	}
	m.log.Append(ctx, callID, fmt.Sprintf("transcript: %s", text))
	return nil
}

// EndCall gracefully ends an active session and removes it from the
// registry. Ending an unknown call is a silent no-op; ending a terminated
// call repeats the terminated notice and leaves the frozen state in place.
func (m *Monitor) EndCall(ctx context.Context, callID types.CallID) []types.Outbound {
	sess, err := m.registry.Get(ctx, callID)
	if err != nil {
		return nil
	}

	sess.Lock()
	if sess.Terminated {
		reason := sess.TerminationReason
		sess.Unlock()
		return []types.Outbound{terminatedOut(reason)}
	}
	sess.Unlock()

	m.log.Append(ctx, callID, "call ended by client")
	m.registry.Remove(ctx, callID)
	return []types.Outbound{{Event: "call_ended", Data: types.CallEndedData{OK: true}}}
}

// recordViolation increments both escalation counters atomically with the
// log append and builds the violation notification. Caller holds the
// session lock.
func (m *Monitor) recordViolation(ctx context.Context, sess *types.Session, v types.Violation) types.Outbound {
	sess.Warnings++
	sess.Violations++
	m.log.Append(ctx, sess.CallID, describe(v))

	data := types.ViolationData{
		Type:     v.Type,
		Detail:   v.Detail,
		Warnings: sess.Warnings,
	}
	if v.Kind == types.KindVoiceMismatch {
		sim := v.Sim
		data.Sim = &sim
		data.Detail = ""
	}
	return types.Outbound{Event: "violation", Data: data}
}

// checkLimit transitions the session to terminated once the violation
// count reaches the warning limit. Caller holds the session lock; the
// report and notification side effects run later, outside it.
func (m *Monitor) checkLimit(ctx context.Context, sess *types.Session, reason string) bool {
	if sess.Violations < m.detector.Limits().WarningLimit {
		return false
	}
	sess.Terminated = true
	sess.TerminationReason = reason
	m.log.Append(ctx, sess.CallID, fmt.Sprintf("terminated due to %s", reason))
	return true
}

// finalize runs the best-effort termination side effects: render the
// report artifacts from a copied log slice and alert the notifiers.
// Failures here are logged and never block the lifecycle transition.
func (m *Monitor) finalize(ctx context.Context, callID types.CallID, reason string) {
	if m.reports != nil {
		entries, err := m.log.Entries(ctx, callID)
		if err == nil {
			if path, err := m.reports.RenderText(callID, entries, reason); err != nil {
				slog.Error("text report failed", "call_id", string(callID), "error", err)
			} else {
				m.log.Append(ctx, callID, fmt.Sprintf("report generated: %s", path))
			}
			if path, err := m.reports.RenderPDF(callID, entries, reason); err != nil {
				slog.Error("pdf report failed", "call_id", string(callID), "error", err)
			} else {
				m.log.Append(ctx, callID, fmt.Sprintf("pdf report generated: %s", path))
			}
		}
	}
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, callID, fmt.Sprintf("call %s terminated: %s", callID, reason)); err != nil {
			slog.Warn("termination notify failed", "call_id", string(callID), "error", err)
		}
	}
}

// describe renders a violation as its audit log line.
func describe(v types.Violation) string {
	switch v.Kind {
	case types.KindIntruder:
		return fmt.Sprintf("intruder %s", v.Detail)
	case types.KindVoiceMismatch:
		return fmt.Sprintf("voice_mismatch %s", v.Detail)
	case types.KindClientReported:
		return fmt.Sprintf("client_alert: %s detail=%s", v.Type, v.Detail)
	default:
		return string(v.Kind)
	}
}

func terminatedOut(reason string) types.Outbound {
	return types.Outbound{Event: "terminated", Data: types.TerminatedData{Msg: reason}}
}

func errOut(code, msg string) types.Outbound {
	return types.Outbound{Event: "error", Data: types.ErrorData{Code: code, Msg: msg}}
}
