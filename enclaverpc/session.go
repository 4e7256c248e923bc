// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package enclaverpc

import (
	"bytes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/cloister-foundation/cloister/lib/codec"
	"github.com/cloister-foundation/cloister/lib/identity"
)

// sessionDomain is the signature domain for handshake transcript
// signatures. Bumped whenever the handshake shape changes.
const sessionDomain = "cloister/session/v1"

// handshakeVersion is carried in the hello messages so incompatible
// peers fail fast instead of producing garbage.
const handshakeVersion = 1

// maxRecordSize bounds a single encrypted record. Larger payloads
// must be split at the application level.
const maxRecordSize = 1 << 20

// ErrServerIdentityMismatch is returned by Dial when the server
// proves a different identity than the one the client pinned.
var ErrServerIdentityMismatch = errors.New("enclaverpc: server identity does not match pinned key")

// SessionInfo describes the authenticated session a call arrived
// over. A nil *SessionInfo means there is no authenticated session;
// the struct is never synthesized for local or anonymous calls.
type SessionInfo struct {
	// PeerIdentity is the Ed25519 key the peer proved possession of
	// during the handshake.
	PeerIdentity ed25519.PublicKey
	// AuthenticatedAt is when the handshake completed.
	AuthenticatedAt time.Time
}

// PeerFingerprint returns the short hex fingerprint of the peer key,
// for logs.
func (s *SessionInfo) PeerFingerprint() string {
	return identity.Fingerprint(s.PeerIdentity)
}

// Handshake wire messages. These travel as plaintext CBOR before keys
// exist (clientHello, serverHello) or as the first encrypted client
// record (clientAuth, so a passive observer never sees the client
// identity).

type clientHello struct {
	Version   int    `cbor:"v"`
	Ephemeral []byte `cbor:"eph"`
}

type serverHello struct {
	Version   int    `cbor:"v"`
	Ephemeral []byte `cbor:"eph"`
	Identity  []byte `cbor:"id"`
	Signature []byte `cbor:"sig"`
}

type clientAuth struct {
	// Identity is empty for anonymous clients, in which case
	// Signature is empty too.
	Identity  []byte `cbor:"id,omitempty"`
	Signature []byte `cbor:"sig,omitempty"`
}

// transcript binds a signature to this specific key exchange. The
// role prefix stops a signature produced by one side from being
// replayed as the other side's.
func transcript(role string, clientEphemeral, serverEphemeral []byte) []byte {
	message := make([]byte, 0, len(role)+1+len(clientEphemeral)+len(serverEphemeral))
	message = append(message, role...)
	message = append(message, '|')
	message = append(message, clientEphemeral...)
	message = append(message, serverEphemeral...)
	return message
}

// deriveKeys expands the ECDH shared secret into one 32-byte
// ChaCha20-Poly1305 key per direction. Both ephemerals are mixed into
// the info string so the keys are bound to this exchange.
func deriveKeys(shared, clientEphemeral, serverEphemeral []byte) (clientToServer, serverToClient []byte, err error) {
	info := make([]byte, 0, len(sessionDomain)+5+len(clientEphemeral)+len(serverEphemeral))
	info = append(info, sessionDomain...)
	info = append(info, " keys"...)
	info = append(info, clientEphemeral...)
	info = append(info, serverEphemeral...)

	expand := hkdf.New(sha256.New, shared, nil, info)
	keys := make([]byte, 2*chacha20poly1305.KeySize)
	if _, err := io.ReadFull(expand, keys); err != nil {
		return nil, nil, fmt.Errorf("deriving session keys: %w", err)
	}
	return keys[:chacha20poly1305.KeySize], keys[chacha20poly1305.KeySize:], nil
}

// secureChannel is an established session: CBOR records, each sealed
// with a per-direction key and a counter nonce. Counters start at
// zero and never repeat within a session because each direction has
// its own key.
type secureChannel struct {
	conn net.Conn
	enc  *codec.Encoder
	dec  *codec.Decoder

	seal        cipher.AEAD
	open        cipher.AEAD
	sealCounter uint64
	openCounter uint64

	writeMu sync.Mutex
}

func newSecureChannel(conn net.Conn, enc *codec.Encoder, dec *codec.Decoder, sendKey, recvKey []byte) (*secureChannel, error) {
	seal, err := chacha20poly1305.New(sendKey)
	if err != nil {
		return nil, fmt.Errorf("initializing send cipher: %w", err)
	}
	open, err := chacha20poly1305.New(recvKey)
	if err != nil {
		return nil, fmt.Errorf("initializing receive cipher: %w", err)
	}
	return &secureChannel{conn: conn, enc: enc, dec: dec, seal: seal, open: open}, nil
}

func counterNonce(counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.LittleEndian.PutUint64(nonce, counter)
	return nonce
}

// writeRaw seals plaintext into the next record on the wire.
func (ch *secureChannel) writeRaw(plaintext []byte) error {
	if len(plaintext) > maxRecordSize {
		return fmt.Errorf("record of %d bytes exceeds %d byte limit", len(plaintext), maxRecordSize)
	}
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	ciphertext := ch.seal.Seal(nil, counterNonce(ch.sealCounter), plaintext, nil)
	ch.sealCounter++
	if err := ch.enc.Encode(ciphertext); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// readRaw reads and opens the next record. A record that fails
// authentication poisons the channel; the caller must close it.
func (ch *secureChannel) readRaw() ([]byte, error) {
	var ciphertext []byte
	if err := ch.dec.Decode(&ciphertext); err != nil {
		return nil, err
	}
	if len(ciphertext) > maxRecordSize+ch.open.Overhead() {
		return nil, fmt.Errorf("record of %d bytes exceeds %d byte limit", len(ciphertext), maxRecordSize)
	}
	plaintext, err := ch.open.Open(nil, counterNonce(ch.openCounter), ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("opening record %d: %w", ch.openCounter, err)
	}
	ch.openCounter++
	return plaintext, nil
}

func (ch *secureChannel) writeMessage(msg *Message) error {
	plaintext, err := codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return ch.writeRaw(plaintext)
}

func (ch *secureChannel) readMessage() (*Message, error) {
	plaintext, err := ch.readRaw()
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := codec.Unmarshal(plaintext, &msg); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return &msg, nil
}

// serverHandshake runs the responder side. On success the returned
// SessionInfo identifies the client, or is nil if the client chose to
// stay anonymous.
func serverHandshake(conn net.Conn, id *identity.Identity) (*secureChannel, *SessionInfo, error) {
	enc := codec.NewEncoder(conn)
	dec := codec.NewDecoder(conn)

	var hello clientHello
	if err := dec.Decode(&hello); err != nil {
		return nil, nil, fmt.Errorf("reading client hello: %w", err)
	}
	if hello.Version != handshakeVersion {
		return nil, nil, fmt.Errorf("unsupported handshake version %d", hello.Version)
	}

	ephemeral, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating ephemeral key: %w", err)
	}
	clientEphemeral, err := ecdh.X25519().NewPublicKey(hello.Ephemeral)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing client ephemeral: %w", err)
	}
	shared, err := ephemeral.ECDH(clientEphemeral)
	if err != nil {
		return nil, nil, fmt.Errorf("key agreement: %w", err)
	}

	serverEphemeral := ephemeral.PublicKey().Bytes()
	reply := serverHello{
		Version:   handshakeVersion,
		Ephemeral: serverEphemeral,
		Identity:  id.Public(),
		Signature: id.Sign(sessionDomain, transcript("server", hello.Ephemeral, serverEphemeral)),
	}
	if err := enc.Encode(&reply); err != nil {
		return nil, nil, fmt.Errorf("writing server hello: %w", err)
	}

	clientKey, serverKey, err := deriveKeys(shared, hello.Ephemeral, serverEphemeral)
	if err != nil {
		return nil, nil, err
	}
	channel, err := newSecureChannel(conn, enc, dec, serverKey, clientKey)
	if err != nil {
		return nil, nil, err
	}

	raw, err := channel.readRaw()
	if err != nil {
		return nil, nil, fmt.Errorf("reading client auth: %w", err)
	}
	var auth clientAuth
	if err := codec.Unmarshal(raw, &auth); err != nil {
		return nil, nil, fmt.Errorf("decoding client auth: %w", err)
	}
	if len(auth.Identity) == 0 {
		// Anonymous client. The channel is still encrypted, but no
		// SessionInfo exists for it.
		return channel, nil, nil
	}
	if len(auth.Identity) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("client identity is %d bytes, want %d", len(auth.Identity), ed25519.PublicKeySize)
	}
	if !identity.Verify(auth.Identity, sessionDomain, transcript("client", hello.Ephemeral, serverEphemeral), auth.Signature) {
		return nil, nil, errors.New("client transcript signature invalid")
	}
	info := &SessionInfo{
		PeerIdentity:    ed25519.PublicKey(bytes.Clone(auth.Identity)),
		AuthenticatedAt: time.Now(),
	}
	return channel, info, nil
}

// clientHandshake runs the initiator side. A nil id connects
// anonymously. Returns the server's proven identity alongside the
// channel.
func clientHandshake(conn net.Conn, id *identity.Identity) (*secureChannel, ed25519.PublicKey, error) {
	enc := codec.NewEncoder(conn)
	dec := codec.NewDecoder(conn)

	ephemeral, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating ephemeral key: %w", err)
	}
	clientEphemeral := ephemeral.PublicKey().Bytes()
	if err := enc.Encode(&clientHello{Version: handshakeVersion, Ephemeral: clientEphemeral}); err != nil {
		return nil, nil, fmt.Errorf("writing client hello: %w", err)
	}

	var reply serverHello
	if err := dec.Decode(&reply); err != nil {
		return nil, nil, fmt.Errorf("reading server hello: %w", err)
	}
	if reply.Version != handshakeVersion {
		return nil, nil, fmt.Errorf("unsupported handshake version %d", reply.Version)
	}
	if len(reply.Identity) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("server identity is %d bytes, want %d", len(reply.Identity), ed25519.PublicKeySize)
	}
	if !identity.Verify(reply.Identity, sessionDomain, transcript("server", clientEphemeral, reply.Ephemeral), reply.Signature) {
		return nil, nil, errors.New("server transcript signature invalid")
	}

	serverEphemeral, err := ecdh.X25519().NewPublicKey(reply.Ephemeral)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing server ephemeral: %w", err)
	}
	shared, err := ephemeral.ECDH(serverEphemeral)
	if err != nil {
		return nil, nil, fmt.Errorf("key agreement: %w", err)
	}

	clientKey, serverKey, err := deriveKeys(shared, clientEphemeral, reply.Ephemeral)
	if err != nil {
		return nil, nil, err
	}
	channel, err := newSecureChannel(conn, enc, dec, clientKey, serverKey)
	if err != nil {
		return nil, nil, err
	}

	var auth clientAuth
	if id != nil {
		auth.Identity = id.Public()
		auth.Signature = id.Sign(sessionDomain, transcript("client", clientEphemeral, reply.Ephemeral))
	}
	raw, err := codec.Marshal(&auth)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding client auth: %w", err)
	}
	if err := channel.writeRaw(raw); err != nil {
		return nil, nil, fmt.Errorf("writing client auth: %w", err)
	}

	return channel, ed25519.PublicKey(bytes.Clone(reply.Identity)), nil
}
