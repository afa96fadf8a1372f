package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"mccloud/key"
)

var (
	errUnknownKind  = errors.New("transport: unknown message kind")
	errFrameTooLong = errors.New("transport: frame exceeds the maximum accepted length")
)

// maxFrameLength bounds a single frame body so a corrupt or hostile length
// prefix cannot force an unbounded allocation.
const maxFrameLength = 64 << 20

// zeroIV is the all-zero counter-mode IV both directions of a session use.
// This reuses keystream across every frame on a session; it is an inherited
// protocol weakness kept intentionally, not an oversight. See the
// cryptography note in the package-level design notes.
var zeroIV = make([]byte, aes.BlockSize)

// Session is one established, encrypted connection to a peer.
type Session struct {
	conn net.Conn

	writeMu sync.Mutex
	key     [32]byte

	RemoteAddr string
	PeerID     []byte
	Thin       bool
}

// Handshake performs the plaintext Greeting exchange and derives the
// session key via ECDH between the two ephemeral keys. It does not
// register the session anywhere; callers do that on success.
func Handshake(conn net.Conn, identity *key.Key, thin bool) (*Session, error) {
	ephemeral, err := key.Generate()
	if err != nil {
		return nil, err
	}

	s := &Session{conn: conn, RemoteAddr: conn.RemoteAddr().String()}

	out := &Message{Kind: KindGreeting, Greeting: &Greeting{
		ID:     identity.Public(),
		Shared: ephemeral.Public(),
		Thin:   thin,
	}}
	// Send concurrently with the read so unbuffered connections, where a
	// write blocks until the peer reads, cannot deadlock the exchange.
	writeErr := make(chan error, 1)
	go func() { writeErr <- s.writePlain(out) }()

	in, err := s.readPlain()
	if err != nil {
		return nil, err
	}
	if err := <-writeErr; err != nil {
		return nil, err
	}
	if in.Kind != KindGreeting || in.Greeting == nil {
		return nil, errors.New("transport: handshake expected a Greeting")
	}

	secret, err := ephemeral.SharedSecret(in.Greeting.Shared)
	if err != nil {
		return nil, err
	}
	s.key = secret
	s.PeerID = in.Greeting.ID
	s.Thin = in.Greeting.Thin
	return s, nil
}

func (s *Session) newStream() (cipher.Stream, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewCTR(block, zeroIV), nil
}

// writePlain sends m as a plaintext frame. Only the handshake's Greeting uses
// this; every later frame is encrypted.
func (s *Session) writePlain(m *Message) error {
	body, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	return s.writeFrame(body)
}

func (s *Session) readPlain() (*Message, error) {
	body, err := s.readFrame()
	if err != nil {
		return nil, err
	}
	return DecodeMessage(body)
}

// WriteAES encrypts and sends m.
func (s *Session) WriteAES(m *Message) error {
	body, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	stream, err := s.newStream()
	if err != nil {
		return err
	}
	cipherText := make([]byte, len(body))
	stream.XORKeyStream(cipherText, body)
	return s.writeFrame(cipherText)
}

// ReadAES reads, decrypts and decodes the next frame.
func (s *Session) ReadAES() (*Message, error) {
	cipherText, err := s.readFrame()
	if err != nil {
		return nil, err
	}
	stream, err := s.newStream()
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(cipherText))
	stream.XORKeyStream(plain, cipherText)
	return DecodeMessage(plain)
}

func (s *Session) writeFrame(body []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := s.conn.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := s.conn.Write(body)
	return err
}

func (s *Session) readFrame() ([]byte, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(s.conn, lenPrefix[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenPrefix[:])
	if length > maxFrameLength {
		return nil, errFrameTooLong
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(s.conn, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Shutdown half-closes the write side so the peer's reader observes a
// clean EOF. The read side stays open: our own reader loop exits only once
// the peer closes its end of the connection.
func (s *Session) Shutdown() error {
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return s.conn.Close()
}

// IsCleanDisconnect reports whether err represents an ordinary peer
// disconnect that should not be logged as a failure.
func IsCleanDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return strings.Contains(err.Error(), "broken pipe") || strings.Contains(err.Error(), "connection reset")
}
