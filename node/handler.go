package node

import "mccloud/chain"

// UserPayloadHandler is the single extension point the core leaves open
// for whatever an application wants to do with accepted user data; the
// core never inspects Payload.Bytes itself. The console's "share" command
// and any future user-facing surface are callers of Node.Submit, not
// implementers of this interface — this interface is for observing what
// lands in the bucket, not for producing it.
type UserPayloadHandler interface {
	Handle(chain.Payload)
}

// NopHandler discards every payload. It is the default when no
// application-level handler is supplied.
type NopHandler struct{}

func (NopHandler) Handle(chain.Payload) {}
