package domain

import "sync/atomic"

var lastMessageID atomic.Int64

// NextMessageID returns a fresh process-wide request id.
func NextMessageID() int64 {
	return lastMessageID.Add(1)
}

// Message is the envelope exchanged over channels. It is immutable once built;
// the With* methods return modified copies.
//
// A response carries the id of the request it answers. An ack is an empty
// response confirming delivery of a one-way request.
type Message struct {
	id           int64
	operation    string
	resourcePath string
	payload      *Value
	fault        *Fault
	sessionID    string
	token        []byte
	ack          bool
	response     bool
}

// MessageFields is the exploded form of a Message, used by transports to
// rebuild messages read from the wire.
type MessageFields struct {
	ID           int64
	Operation    string
	ResourcePath string
	Payload      *Value
	Fault        *Fault
	SessionID    string
	Token        []byte
	Ack          bool
	Response     bool
}

// NewMessage builds a message from its fields.
func NewMessage(f MessageFields) *Message {
	if f.Payload == nil {
		f.Payload = NewValue()
	}
	return &Message{
		id:           f.ID,
		operation:    f.Operation,
		resourcePath: f.ResourcePath,
		payload:      f.Payload,
		fault:        f.Fault,
		sessionID:    f.SessionID,
		token:        append([]byte(nil), f.Token...),
		ack:          f.Ack,
		response:     f.Response || f.Ack,
	}
}

// NewRequest creates a request with a fresh id.
func NewRequest(operation, resourcePath string, payload *Value) *Message {
	return NewMessage(MessageFields{
		ID:           NextMessageID(),
		Operation:    operation,
		ResourcePath: resourcePath,
		Payload:      payload,
	})
}

// NewResponse creates the successful reply to req.
func NewResponse(req *Message, payload *Value) *Message {
	return req.reply(payload, nil, false)
}

// NewFaultResponse creates a fault reply to req.
func NewFaultResponse(req *Message, fault *Fault) *Message {
	return req.reply(fault.Payload, fault, false)
}

// NewAck creates the empty acknowledgement of a one-way request.
func NewAck(req *Message) *Message {
	return req.reply(nil, nil, true)
}

func (m *Message) reply(payload *Value, fault *Fault, ack bool) *Message {
	return NewMessage(MessageFields{
		ID:           m.id,
		Operation:    m.operation,
		ResourcePath: m.resourcePath,
		Payload:      payload,
		Fault:        fault,
		SessionID:    m.sessionID,
		Token:        m.token,
		Ack:          ack,
		Response:     true,
	})
}

func (m *Message) ID() int64            { return m.id }
func (m *Message) Operation() string    { return m.operation }
func (m *Message) ResourcePath() string { return m.resourcePath }
func (m *Message) Payload() *Value      { return m.payload }
func (m *Message) Fault() *Fault        { return m.fault }
func (m *Message) IsFault() bool        { return m.fault != nil }
func (m *Message) SessionID() string    { return m.sessionID }
func (m *Message) IsAck() bool          { return m.ack }
func (m *Message) IsResponse() bool     { return m.response }

// Token returns the out-of-band correlation token, if any.
func (m *Message) Token() []byte {
	return append([]byte(nil), m.token...)
}

// Fields explodes the message.
func (m *Message) Fields() MessageFields {
	return MessageFields{
		ID:           m.id,
		Operation:    m.operation,
		ResourcePath: m.resourcePath,
		Payload:      m.payload,
		Fault:        m.fault,
		SessionID:    m.sessionID,
		Token:        m.Token(),
		Ack:          m.ack,
		Response:     m.response,
	}
}

// WithSessionID returns a copy of m addressed to the given session.
func (m *Message) WithSessionID(id string) *Message {
	f := m.Fields()
	f.SessionID = id
	return NewMessage(f)
}

// WithToken returns a copy of m carrying the given correlation token.
func (m *Message) WithToken(token []byte) *Message {
	f := m.Fields()
	f.Token = token
	return NewMessage(f)
}
