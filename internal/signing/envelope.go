package signing

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

var (
	// ErrBadSignature means an envelope's signature does not verify.
	ErrBadSignature = errors.New("signing: bad signature")
	// ErrAccountNotAllowed means the signer is not on the allow list.
	ErrAccountNotAllowed = errors.New("signing: account not allowed")
)

// Guarantee is one account's signature over an envelope.
type Guarantee struct {
	// Hex compressed public key of the signer.
	Account string `json:"account"`
	// Account the envelope is addressed to; empty means any.
	Target     string `json:"target,omitempty"`
	IssuedUnix int64  `json:"issued_unix"`
	// DER-encoded ECDSA signature.
	Signature []byte `json:"signature"`
}

// Envelope carries a payload with the caller's guarantee and, on responses,
// the server's counter-guarantee. Payload bytes are signed as-is and travel
// base64-encoded, so whitespace and escaping survive a JSON round trip.
type Envelope struct {
	Payload   []byte     `json:"payload"`
	Guarantee Guarantee  `json:"guarantee"`
	Guarantor *Guarantee `json:"guarantor,omitempty"`
}

const (
	ownedDomain     = "ipnis/owned/v1"
	guarantorDomain = "ipnis/guarantor/v1"
)

func ownedDigest(g Guarantee, payload []byte) []byte {
	return digest(ownedDomain, []byte(g.Account), []byte(g.Target), unix(g.IssuedUnix), payload)
}

// guarantorDigest binds the response payload to the request signature.
func guarantorDigest(g Guarantee, request Guarantee, payload []byte) []byte {
	return digest(guarantorDomain, []byte(g.Account), []byte(g.Target), unix(g.IssuedUnix), request.Signature, payload)
}

func digest(domain string, parts ...[]byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return h.Sum(nil)
}

func unix(t int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(t))
	return b[:]
}
