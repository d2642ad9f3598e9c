// internal/ws/protocol.go
package ws

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeError describes a client message that could not be decoded.
type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func badRequest(message string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message}
}

// Inbound message kinds. Every frame is a JSON object with a "type" field
// selecting one of these shapes.
type StartCall struct {
	Type     string `json:"type"`
	CallID   string `json:"call_id"`
	UserName string `json:"user_name"`
}

type Frame struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Image  string `json:"image"`
}

type AudioChunk struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Audio  string `json:"audio"`
}

type ClientAlert struct {
	Type      string `json:"type"`
	CallID    string `json:"call_id"`
	AlertType string `json:"alert_type"`
	Detail    string `json:"detail"`
}

type Transcript struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Text   string `json:"text"`
}

type EndCall struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
}

// DecodeClientMessage parses one inbound frame into its typed message.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid JSON frame")
	}

	switch envelope.Type {
	case "start_call":
		var msg StartCall
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid start_call frame")
		}
		return msg, nil
	case "frame":
		var msg Frame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid frame message")
		}
		return msg, nil
	case "audio_chunk":
		var msg AudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_chunk frame")
		}
		return msg, nil
	case "client_alert":
		var msg ClientAlert
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid client_alert frame")
		}
		return msg, nil
	case "transcript":
		var msg Transcript
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid transcript frame")
		}
		return msg, nil
	case "end_call":
		var msg EndCall
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid end_call frame")
		}
		return msg, nil
	case "":
		return nil, badRequest("type is required")
	default:
		return nil, &DecodeError{Code: "unknown_type", Message: fmt.Sprintf("unknown message type %q", envelope.Type)}
	}
}

// DecodeMedia decodes a base64 media payload, tolerating a data-URL
// prefix ("data:image/jpeg;base64,...").
func DecodeMedia(s string) ([]byte, error) {
	if i := strings.IndexByte(s, ','); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}
	return raw, nil
}
