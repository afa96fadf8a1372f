// Package transport implements the per-peer framed, encrypted session:
// length-prefixed frames, a plaintext Greeting handshake, ECDH-derived
// session keys, and AES-256-CTR confidentiality.
package transport

import (
	"mccloud/chain"

	"github.com/ethereum/go-ethereum/rlp"
)

// Kind tags a Message variant on the wire, the way devp2p tags its
// message codes ahead of an RLP body.
type Kind byte

const (
	KindGreeting Kind = iota
	KindAllKnown
	KindAnnounce
	KindRemove
	KindHighestBlock
	KindRequestBlocks
	KindBlocks
	KindShare
	KindPlay
	KindAddBlock
)

// Greeting is the plaintext handshake message: identity key, ephemeral
// session key, and whether the sender is a thin observer.
type Greeting struct {
	ID     chain.PublicKey
	Shared chain.PublicKey
	Thin   bool
}

// AllKnown carries the sender's full membership set.
type AllKnown struct {
	Members []chain.PublicKey
}

// Announce tells peers a public key joined the overlay.
type Announce struct {
	ID chain.PublicKey
}

// Remove tells peers a public key left the overlay.
type Remove struct {
	ID chain.PublicKey
}

// HighestBlock advertises the sender's chain tip for catch-up.
type HighestBlock struct {
	Hash  []byte
	Count uint64
}

// RequestBlocks asks the peer for the range (From, To].
type RequestBlocks struct {
	From []byte
	To   []byte
}

// Blocks answers a RequestBlocks with the walked range.
type Blocks struct {
	Items []*chain.Block
}

// Share submits a user payload for inclusion in the next block.
type Share struct {
	Payload chain.Payload
}

// Play carries one participant's tournament draw.
type Play struct {
	Draw chain.GameDraw
}

// AddBlock propagates a freshly minted or accepted block.
type AddBlock struct {
	Block *chain.Block
}

// Message is a decoded frame body: a Kind tag plus the matching payload
// pointer. Exactly one of the typed fields is non-nil, selected by Kind.
type Message struct {
	Kind Kind

	Greeting      *Greeting
	AllKnown      *AllKnown
	Announce      *Announce
	Remove        *Remove
	HighestBlock  *HighestBlock
	RequestBlocks *RequestBlocks
	Blocks        *Blocks
	Share         *Share
	Play          *Play
	AddBlock      *AddBlock
}

// wireMessage is the RLP shape actually put on the wire: a kind byte and
// the RLP encoding of whichever payload matches it, itself RLP-encoded as
// a byte string so framing stays self-describing regardless of payload
// shape.
type wireMessage struct {
	Kind Kind
	Body []byte
}

func encodePayload(kind Kind, payload interface{}) ([]byte, error) {
	body, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(wireMessage{Kind: kind, Body: body})
}

// EncodeMessage serializes m to the self-describing body placed inside a
// transport frame.
func EncodeMessage(m *Message) ([]byte, error) {
	switch m.Kind {
	case KindGreeting:
		return encodePayload(m.Kind, m.Greeting)
	case KindAllKnown:
		return encodePayload(m.Kind, m.AllKnown)
	case KindAnnounce:
		return encodePayload(m.Kind, m.Announce)
	case KindRemove:
		return encodePayload(m.Kind, m.Remove)
	case KindHighestBlock:
		return encodePayload(m.Kind, m.HighestBlock)
	case KindRequestBlocks:
		return encodePayload(m.Kind, m.RequestBlocks)
	case KindBlocks:
		return encodePayload(m.Kind, m.Blocks)
	case KindShare:
		return encodePayload(m.Kind, m.Share)
	case KindPlay:
		return encodePayload(m.Kind, m.Play)
	case KindAddBlock:
		return encodePayload(m.Kind, m.AddBlock)
	default:
		return nil, errUnknownKind
	}
}

// DecodeMessage reverses EncodeMessage.
func DecodeMessage(data []byte) (*Message, error) {
	var w wireMessage
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return nil, err
	}
	m := &Message{Kind: w.Kind}
	var err error
	switch w.Kind {
	case KindGreeting:
		m.Greeting = new(Greeting)
		err = rlp.DecodeBytes(w.Body, m.Greeting)
	case KindAllKnown:
		m.AllKnown = new(AllKnown)
		err = rlp.DecodeBytes(w.Body, m.AllKnown)
	case KindAnnounce:
		m.Announce = new(Announce)
		err = rlp.DecodeBytes(w.Body, m.Announce)
	case KindRemove:
		m.Remove = new(Remove)
		err = rlp.DecodeBytes(w.Body, m.Remove)
	case KindHighestBlock:
		m.HighestBlock = new(HighestBlock)
		err = rlp.DecodeBytes(w.Body, m.HighestBlock)
	case KindRequestBlocks:
		m.RequestBlocks = new(RequestBlocks)
		err = rlp.DecodeBytes(w.Body, m.RequestBlocks)
	case KindBlocks:
		m.Blocks = new(Blocks)
		err = rlp.DecodeBytes(w.Body, m.Blocks)
	case KindShare:
		m.Share = new(Share)
		err = rlp.DecodeBytes(w.Body, m.Share)
	case KindPlay:
		m.Play = new(Play)
		err = rlp.DecodeBytes(w.Body, m.Play)
	case KindAddBlock:
		m.AddBlock = new(AddBlock)
		err = rlp.DecodeBytes(w.Body, m.AddBlock)
	default:
		return nil, errUnknownKind
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
