package websocket

import (
	"strconv"

	"github.com/aretw0/weft/pkg/correlation"
	"github.com/aretw0/weft/pkg/domain"
)

// Frame kinds.
const (
	KindRequest  = "request"
	KindResponse = "response"
	KindAck      = "ack"
	KindReset    = "reset"
)

// ContentText marks a frame whose payload travels as plain text in Text.
const ContentText = "text/plain"

// Frame is the JSON envelope exchanged over a connection. Token carries the
// 8-byte correlation token of the request a response answers, so a peer may
// answer with ids of its own.
type Frame struct {
	Kind          string        `json:"kind"`
	ID            int64         `json:"id"`
	Token         []byte        `json:"token,omitempty"`
	Operation     string        `json:"operation,omitempty"`
	ResourcePath  string        `json:"resource_path,omitempty"`
	SessionID     string        `json:"session_id,omitempty"`
	ContentFormat string        `json:"content_format,omitempty"`
	Payload       *domain.Value `json:"payload,omitempty"`
	Text          string        `json:"text,omitempty"`
	Fault         *FaultFrame   `json:"fault,omitempty"`
}

// FaultFrame is the wire form of a fault.
type FaultFrame struct {
	Name    string        `json:"name"`
	Payload *domain.Value `json:"payload,omitempty"`
}

// EncodeFrame renders msg. Requests without a token get one derived from
// their id.
func EncodeFrame(msg *domain.Message) Frame {
	f := Frame{
		Kind:         KindRequest,
		ID:           msg.ID(),
		Token:        msg.Token(),
		Operation:    msg.Operation(),
		ResourcePath: msg.ResourcePath(),
		SessionID:    msg.SessionID(),
	}
	switch {
	case msg.IsAck():
		f.Kind = KindAck
	case msg.IsResponse():
		f.Kind = KindResponse
	}
	if f.Kind == KindRequest && len(f.Token) == 0 {
		f.Token = correlation.EncodeToken(msg.ID())
	}
	if p := msg.Payload(); p != nil && !p.IsEmpty() {
		f.Payload = p
	}
	if fault := msg.Fault(); fault != nil {
		f.Fault = &FaultFrame{Name: fault.Name, Payload: fault.Payload}
		f.Payload = nil
	}
	return f
}

// DecodeFrame rebuilds the message carried by f. Plain text payloads are
// coerced with ParseText against declared, which may be nil.
func DecodeFrame(f Frame, declared domain.Type) *domain.Message {
	fields := domain.MessageFields{
		ID:           f.ID,
		Operation:    f.Operation,
		ResourcePath: f.ResourcePath,
		Payload:      f.Payload,
		SessionID:    f.SessionID,
		Token:        f.Token,
		Ack:          f.Kind == KindAck,
		Response:     f.Kind == KindResponse,
	}
	if f.ContentFormat == ContentText {
		fields.Payload = ParseText(f.Text, declared)
	}
	if f.Fault != nil {
		fields.Fault = domain.NewFault(f.Fault.Name, f.Fault.Payload)
		fields.Payload = fields.Fault.Payload
	}
	return domain.NewMessage(fields)
}

// ParseText coerces a plain text payload. The first candidate the declared
// type accepts wins, in order: the string itself, a boolean spelled "0" or
// "1", an int, a long, a double and the raw bytes. When nothing fits, the
// string is returned and type checking reports the mismatch. A nil type
// accepts the string.
func ParseText(s string, declared domain.Type) *domain.Value {
	candidates := []*domain.Value{domain.NewString(s)}
	switch s {
	case "0":
		candidates = append(candidates, domain.NewBool(false))
	case "1":
		candidates = append(candidates, domain.NewBool(true))
	}
	if i, err := strconv.ParseInt(s, 10, 32); err == nil {
		candidates = append(candidates, domain.NewInt(int(i)))
	}
	if l, err := strconv.ParseInt(s, 10, 64); err == nil {
		candidates = append(candidates, domain.NewLong(l))
	}
	if d, err := strconv.ParseFloat(s, 64); err == nil {
		candidates = append(candidates, domain.NewDouble(d))
	}
	candidates = append(candidates, domain.NewBytes([]byte(s)))

	for _, v := range candidates {
		if domain.CheckType(declared, v) == nil {
			return v
		}
	}
	return candidates[0]
}
