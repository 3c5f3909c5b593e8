package net

// RPCResponse captures both a response and a potential error. A nil Response
// closes the connection without a reply.
type RPCResponse struct {
	Response *Message
	Error    error
}

// RPC encapsulates an inbound message and provides a response mechanism.
type RPC struct {
	Message    *Message
	RemoteAddr string
	RespChan   chan<- RPCResponse
}

// Respond is used to respond with a response, error or both.
func (r *RPC) Respond(resp *Message, err error) {
	r.RespChan <- RPCResponse{resp, err}
}
