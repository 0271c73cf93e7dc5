package notifyws

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// EventName identifies both an inbound frame kind and the listener bucket it is dispatched to.
type EventName string

const (
	EventNotification     EventName = "notification"
	EventUnreadCount      EventName = "unread_count_update"
	EventConnectionStatus EventName = "connection_status"
)

// Outbound kinds the transport emits on its own.
const (
	KindPing           = "ping"
	KindPong           = "pong"
	KindGetUnreadCount = "get_unread_count"
)

type (
	// Envelope is the decoded shape of every inbound frame: {"type": ..., "data": ...}.
	Envelope struct {
		Type EventName
		Data json.RawMessage
	}

	// OutboundMessage is sent as {"type": Type, "data": Data}. A nil Data is sent as {}.
	OutboundMessage struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}

	// Notification is the record carried by a "notification" frame. Raw keeps the exact payload
	// received from the server so consumers can read fields this struct does not model.
	Notification struct {
		ID        string          `json:"id"`
		Title     string          `json:"title"`
		Message   string          `json:"message"`
		Type      string          `json:"type,omitempty"`
		Priority  string          `json:"priority,omitempty"`
		Read      bool            `json:"read,omitempty"`
		CreatedAt string          `json:"created_at,omitempty"`
		Raw       json.RawMessage `json:"-"`
	}

	// ConnectionStatus is the payload of "connection_status" events. Error is only set when the
	// transport gave up and will not retry on its own.
	ConnectionStatus struct {
		Connected bool `json:"connected"`
		Error     bool `json:"error,omitempty"`
	}
)

func newControlMessage(kind string) OutboundMessage {
	return OutboundMessage{Type: kind, Data: struct{}{}}
}

func (m OutboundMessage) encode() ([]byte, error) {
	if m.Type == "" {
		return nil, errors.Wrap(ErrInvalidMessage, "missing type")
	}
	if m.Data == nil {
		m.Data = struct{}{}
	}
	bts, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidMessage, "cannot encode %q: %s", m.Type, err)
	}
	return bts, nil
}

func decodeEnvelope(bts []byte) (Envelope, error) {
	if !gjson.ValidBytes(bts) {
		return Envelope{}, errors.Wrap(ErrMalformedFrame, "invalid json")
	}

	root := gjson.ParseBytes(bts)
	if !root.IsObject() {
		return Envelope{}, errors.Wrap(ErrMalformedFrame, "frame is not an object")
	}

	kind := root.Get("type")
	if kind.Type != gjson.String || kind.Str == "" {
		return Envelope{}, errors.Wrap(ErrMalformedFrame, "missing type")
	}

	env := Envelope{Type: EventName(kind.Str)}
	if data := root.Get("data"); data.Exists() {
		env.Data = json.RawMessage(data.Raw)
	}

	return env, nil
}

func decodeNotification(raw json.RawMessage) (Notification, error) {
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return Notification{}, errors.Wrap(ErrMalformedFrame, "notification payload is not an object")
	}

	return Notification{
		ID:        r.Get("id").String(),
		Title:     r.Get("title").String(),
		Message:   r.Get("message").String(),
		Type:      r.Get("type").String(),
		Priority:  r.Get("priority").String(),
		Read:      r.Get("read").Bool(),
		CreatedAt: r.Get("created_at").String(),
		Raw:       raw,
	}, nil
}

// decodeUnreadCount accepts either a bare number or an object with a "count" field. The count must
// be a non-negative integer.
func decodeUnreadCount(raw json.RawMessage) (int, error) {
	r := gjson.ParseBytes(raw)
	if r.IsObject() {
		r = r.Get("count")
	}

	if n, ok := unreadCount(r); ok {
		return n, nil
	}

	return 0, errors.Wrapf(ErrMalformedFrame, "unread count payload %q", string(raw))
}

func unreadCount(r gjson.Result) (int, bool) {
	if r.Type != gjson.Number || r.Num < 0 || r.Num != math.Trunc(r.Num) || r.Num > math.MaxInt32 {
		return 0, false
	}
	return int(r.Num), true
}

func decodeConnectionStatus(raw json.RawMessage) (ConnectionStatus, error) {
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return ConnectionStatus{}, errors.Wrap(ErrMalformedFrame, "connection status payload is not an object")
	}

	return ConnectionStatus{
		Connected: r.Get("connected").Bool(),
		Error:     r.Get("error").Bool(),
	}, nil
}
