package gateway

import "encoding/json"

// frame is the wire shape for every message exchanged over the WebSocket
// control channel: a client sends {type:"request", id, method, params} and
// receives either {type:"response", id, ok, payload} / {..., ok:false,
// error} or an unsolicited {type:"event", event, payload} pushed by a
// session's turn activity. Grounded on the teacher's
// internal/gateway/ws_control_plane.go wsFrame, trimmed to the fields this
// runtime's dialect actually uses.
type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Event   string          `json:"event,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload any             `json:"payload,omitempty"`
	Error   *frameError     `json:"error,omitempty"`
}

type frameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func okFrame(id string, payload any) frame {
	ok := true
	return frame{Type: "response", ID: id, OK: &ok, Payload: payload}
}

func errFrame(id, code, message string) frame {
	ok := false
	return frame{Type: "response", ID: id, OK: &ok, Error: &frameError{Code: code, Message: message}}
}

func eventFrame(event string, payload any) frame {
	return frame{Type: "event", Event: event, Payload: payload}
}
