package transport

import (
	"net"
	"testing"

	"mccloud/chain"
	"mccloud/key"
)

func TestHandshakeDerivesMatchingSessionKeys(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientID, err := key.Generate()
	if err != nil {
		t.Fatalf("key.Generate: %v", err)
	}
	serverID, err := key.Generate()
	if err != nil {
		t.Fatalf("key.Generate: %v", err)
	}

	type result struct {
		session *Session
		err     error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		s, err := Handshake(clientConn, clientID, false)
		clientCh <- result{s, err}
	}()
	go func() {
		s, err := Handshake(serverConn, serverID, true)
		serverCh <- result{s, err}
	}()

	clientResult := <-clientCh
	serverResult := <-serverCh
	if clientResult.err != nil {
		t.Fatalf("client handshake: %v", clientResult.err)
	}
	if serverResult.err != nil {
		t.Fatalf("server handshake: %v", serverResult.err)
	}

	if clientResult.session.key != serverResult.session.key {
		t.Fatalf("derived session keys differ")
	}
	if serverResult.session.Thin {
		t.Fatalf("server-observed client greeting lost thin=false, or flags swapped")
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientID, _ := key.Generate()
	serverID, _ := key.Generate()

	type result struct {
		session *Session
		err     error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)
	go func() {
		s, err := Handshake(clientConn, clientID, false)
		clientCh <- result{s, err}
	}()
	go func() {
		s, err := Handshake(serverConn, serverID, false)
		serverCh <- result{s, err}
	}()
	client := (<-clientCh).session
	server := (<-serverCh).session
	if client == nil || server == nil {
		t.Fatalf("handshake failed")
	}

	msg := &Message{Kind: KindShare, Share: &Share{Payload: chain.Payload{Bytes: []byte("hi")}}}

	done := make(chan error, 1)
	go func() { done <- client.WriteAES(msg) }()
	got, err := server.ReadAES()
	if err != nil {
		t.Fatalf("ReadAES: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteAES: %v", err)
	}
	if got.Kind != KindShare || got.Share == nil {
		t.Fatalf("decoded message has wrong shape: %+v", got)
	}
	if string(got.Share.Payload.Bytes) != "hi" {
		t.Fatalf("payload = %q, want %q", got.Share.Payload.Bytes, "hi")
	}
}
