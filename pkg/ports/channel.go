package ports

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// Channel is a bidirectional transport endpoint.
//
// Inbound, the interpreter answers a request on the channel it arrived on.
// Outbound, communication processes send a request and wait for the matching
// reply or ack. Responses are matched to requests by id, or by the correlation
// token when the transport rewrites ids.
type Channel interface {
	// Send writes a message. Transport failures are returned as errors and become
	// IOException faults in the calling process.
	Send(ctx context.Context, msg *domain.Message) error

	// RecvResponseFor blocks until the reply to req arrives or ctx is done.
	RecvResponseFor(ctx context.Context, req *domain.Message) (*domain.Message, error)

	// RecvAckFor blocks until the delivery acknowledgement for a one-way req
	// arrives or ctx is done. A fault reply is returned as is.
	RecvAckFor(ctx context.Context, req *domain.Message) (*domain.Message, error)

	// Release hands the channel back to its transport. It is called exactly
	// once per use, whatever the outcome.
	Release() error

	// ParentInputPort names the input port the channel was accepted on, if any.
	ParentInputPort() string

	// ParentOutputPort names the output port the channel was opened from, if any.
	ParentOutputPort() string
}

// OutputPort opens channels towards a remote service.
type OutputPort interface {
	// Name identifies the port in diagnostics.
	Name() string

	// ResourcePath is stamped on every request sent through the port.
	ResourcePath() string

	// Channel returns a channel ready for one exchange.
	Channel(ctx context.Context) (Channel, error)
}

// Receiver accepts inbound messages. The interpreter implements it; transports
// call it for every request they read and answer through ch.
type Receiver interface {
	Deliver(ctx context.Context, msg *domain.Message, ch Channel) error
}
