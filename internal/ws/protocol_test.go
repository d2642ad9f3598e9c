// internal/ws/protocol_test.go
package ws

import (
	"encoding/base64"
	"testing"
)

func TestDecodeClientMessage(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"start_call","call_id":"c1","user_name":"alice"}`))
	if err != nil {
		t.Fatal(err)
	}
	start, ok := msg.(StartCall)
	if !ok || start.CallID != "c1" || start.UserName != "alice" {
		t.Fatalf("unexpected message %#v", msg)
	}

	msg, err = DecodeClientMessage([]byte(`{"type":"client_alert","call_id":"c1","alert_type":"tab_switch","detail":"devtools"}`))
	if err != nil {
		t.Fatal(err)
	}
	alert, ok := msg.(ClientAlert)
	if !ok || alert.AlertType != "tab_switch" || alert.Detail != "devtools" {
		t.Fatalf("unexpected message %#v", msg)
	}

	msg, err = DecodeClientMessage([]byte(`{"type":"end_call","call_id":"c1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := msg.(EndCall); !ok {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestDecodeClientMessageErrors(t *testing.T) {
	cases := []struct {
		name string
		data string
		code string
	}{
		{"invalid json", `{not json`, "bad_request"},
		{"missing type", `{"call_id":"c1"}`, "bad_request"},
		{"unknown type", `{"type":"selfie"}`, "unknown_type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tc.data))
			if err == nil {
				t.Fatal("expected error")
			}
			decodeErr, ok := err.(*DecodeError)
			if !ok {
				t.Fatalf("expected DecodeError, got %T", err)
			}
			if decodeErr.Code != tc.code {
				t.Errorf("expected code %q, got %q", tc.code, decodeErr.Code)
			}
		})
	}
}

func TestDecodeMedia(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0x01, 0x02}
	encoded := base64.StdEncoding.EncodeToString(payload)

	raw, err := DecodeMedia(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(payload) {
		t.Error("plain base64 round trip failed")
	}

	// Data-URL prefix is tolerated.
	raw, err = DecodeMedia("data:image/jpeg;base64," + encoded)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(payload) {
		t.Error("data-URL round trip failed")
	}

	if _, err := DecodeMedia("!!not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
