package domain

// OperationKind distinguishes one-way from request-response operations.
type OperationKind string

const (
	OneWay          OperationKind = "one_way"
	RequestResponse OperationKind = "request_response"
)

// Operation describes an operation exposed by an input port or invoked through
// an output port. Types may be nil, in which case no check is performed.
type Operation struct {
	Name     string
	Kind     OperationKind
	Request  Type
	Response Type
	Faults   map[string]Type
}

// NewOneWay describes a one-way operation.
func NewOneWay(name string, request Type) Operation {
	return Operation{Name: name, Kind: OneWay, Request: request}
}

// NewRequestResponse describes a request-response operation.
func NewRequestResponse(name string, request, response Type, faults map[string]Type) Operation {
	return Operation{Name: name, Kind: RequestResponse, Request: request, Response: response, Faults: faults}
}

// FaultType returns the declared type for a fault name.
// The second result is false when the fault is not declared at all.
func (o Operation) FaultType(name string) (Type, bool) {
	t, ok := o.Faults[name]
	return t, ok
}
