// Package key implements node identity: secp256k1 keypair generation and
// file persistence, ECDSA signing/verification, and ECDH shared-secret
// derivation for session encryption.
package key

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io/ioutil"
	"os"

	"mccloud/chain"

	"github.com/btcsuite/btcd/btcec"
	"github.com/ethereum/go-ethereum/log"
)

var (
	errInvalidPublicKey = errors.New("key: invalid public key encoding")
	errPEMBlockNotFound = errors.New("key: no EC PRIVATE KEY block found in file")
)

const pemBlockType = "EC PRIVATE KEY"

// Key wraps a secp256k1 keypair.
type Key struct {
	priv *btcec.PrivateKey
}

// Generate returns a fresh random keypair.
func Generate() (*Key, error) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}
	return &Key{priv: priv}, nil
}

// LoadOrCreate reads a SEC1 DER-encoded private key from path, generating
// and persisting a fresh one if the file does not exist yet. This mirrors
// the original reference's Key::load, which auto-provisions an identity on
// first run rather than failing.
func LoadOrCreate(path string) (*Key, error) {
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		k, genErr := Generate()
		if genErr != nil {
			return nil, genErr
		}
		if saveErr := k.Save(path); saveErr != nil {
			return nil, saveErr
		}
		log.Info("generated new node key", "path", path)
		return k, nil
	}
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemBlockType {
		return nil, errPEMBlockNotFound
	}
	ecPriv, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), ecPriv.D.Bytes())
	log.Info("loaded node key", "path", path)
	return &Key{priv: priv}, nil
}

// Save writes the key to path as a SEC1 DER-encoded PEM file. SEC1/PEM is
// used for persistence rather than RLP or any other pack codec: it is the
// standard, tool-readable on-disk form for an EC private key and nothing in
// the examples offers a third-party SEC1 codec to reach for instead.
func (k *Key) Save(path string) error {
	ecPriv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: btcec.S256(),
			X:     k.priv.PubKey().X,
			Y:     k.priv.PubKey().Y,
		},
		D: k.priv.D,
	}
	der, err := x509.MarshalECPrivateKey(ecPriv)
	if err != nil {
		return err
	}
	block := &pem.Block{Type: pemBlockType, Bytes: der}
	return ioutil.WriteFile(path, pem.EncodeToMemory(block), 0600)
}

// Public returns the SEC1 uncompressed-point encoding of the public key:
// 0x04 || X || Y, 65 bytes. This is the PublicKey used throughout chain,
// store, tournament and transport as node identity.
func (k *Key) Public() chain.PublicKey {
	return chain.PublicKey(k.priv.PubKey().SerializeUncompressed())
}

// Sign signs data (whatever bytes the caller passes; this package performs
// no internal hashing, matching the original reference's EcdsaSig::sign,
// which signs exactly what it is given). Callers that need to sign
// structured data are responsible for hashing it first.
func (k *Key) Sign(data []byte) (chain.Signature, error) {
	sig, err := k.priv.Sign(data)
	if err != nil {
		return nil, err
	}
	return chain.Signature(sig.Serialize()), nil
}

// Verify checks sig against data under pub. It satisfies chain.Verifier.
func (k *Key) Verify(data []byte, pub chain.PublicKey, sig chain.Signature) bool {
	return Verify(data, pub, sig)
}

// Verify is the package-level form, usable without holding a Key.
func Verify(data []byte, pub chain.PublicKey, sig chain.Signature) bool {
	pubKey, err := btcec.ParsePubKey(pub, btcec.S256())
	if err != nil {
		return false
	}
	parsed, err := btcec.ParseSignature(sig, btcec.S256())
	if err != nil {
		return false
	}
	return parsed.Verify(data, pubKey)
}

// SharedSecret derives the ECDH shared secret with peer's public key: the
// X coordinate of priv.D * peerPub, matching the tcp_peer.go reference's
// curve.ScalarMult(x, y, priv.D.Bytes()) pattern. The result is reduced to
// 32 bytes for direct use as an AES-256 key.
func (k *Key) SharedSecret(peer chain.PublicKey) ([32]byte, error) {
	var secret [32]byte
	peerPub, err := btcec.ParsePubKey(peer, btcec.S256())
	if err != nil {
		return secret, errInvalidPublicKey
	}
	x, _ := btcec.S256().ScalarMult(peerPub.X, peerPub.Y, k.priv.D.Bytes())
	xb := x.Bytes()
	if len(xb) > 32 {
		xb = xb[len(xb)-32:]
	}
	copy(secret[32-len(xb):], xb)
	return secret, nil
}

// Equal reports whether two keys share the same private scalar.
func (k *Key) Equal(o *Key) bool {
	return k.priv.D.Cmp(o.priv.D) == 0
}
