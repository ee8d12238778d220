package signing

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// DefaultMaxSkew bounds how far a guarantee's issue time may be from now.
const DefaultMaxSkew = 5 * time.Minute

// Signer signs and verifies envelopes for one account.
type Signer interface {
	// Account returns the primary account of this signer.
	Account() string
	// SignOwned wraps payload in an envelope addressed to target.
	SignOwned(target string, payload []byte) (Envelope, error)
	// SignAsGuarantor countersigns a response to req.
	SignAsGuarantor(req Envelope, payload []byte) (Envelope, error)
	// Verify checks a request envelope addressed to this signer.
	Verify(env Envelope) error
	// VerifyResponse checks that resp countersigns req.
	VerifyResponse(req, resp Envelope) error
}

// KeySigner is a Signer backed by a local Key.
type KeySigner struct {
	key     *Key
	allowed map[string]bool
	// MaxSkew is the accepted clock difference; 0 disables the check.
	MaxSkew time.Duration
	now     func() time.Time
}

var _ Signer = (*KeySigner)(nil)

// NewSigner returns a signer for key. If allowed is non-empty, Verify and
// VerifyResponse accept only those accounts.
func NewSigner(key *Key, allowed []string) *KeySigner {
	s := &KeySigner{key: key, MaxSkew: DefaultMaxSkew, now: time.Now}
	if len(allowed) > 0 {
		s.allowed = make(map[string]bool, len(allowed))
		for _, a := range allowed {
			s.allowed[a] = true
		}
	}
	return s
}

func (s *KeySigner) Account() string { return s.key.Account() }

func (s *KeySigner) SignOwned(target string, payload []byte) (Envelope, error) {
	g := Guarantee{Account: s.Account(), Target: target, IssuedUnix: s.now().Unix()}
	g.Signature = ecdsa.Sign(s.key.priv, ownedDigest(g, payload)).Serialize()
	return Envelope{Payload: append([]byte(nil), payload...), Guarantee: g}, nil
}

func (s *KeySigner) SignAsGuarantor(req Envelope, payload []byte) (Envelope, error) {
	g := Guarantee{Account: s.Account(), Target: req.Guarantee.Account, IssuedUnix: s.now().Unix()}
	g.Signature = ecdsa.Sign(s.key.priv, guarantorDigest(g, req.Guarantee, payload)).Serialize()
	return Envelope{
		Payload:   append([]byte(nil), payload...),
		Guarantee: req.Guarantee,
		Guarantor: &g,
	}, nil
}

func (s *KeySigner) Verify(env Envelope) error {
	g := env.Guarantee
	if g.Target != "" && g.Target != s.Account() {
		return fmt.Errorf("%w: addressed to %s", ErrBadSignature, g.Target)
	}
	if err := s.checkAccount(g.Account); err != nil {
		return err
	}
	if err := s.checkSkew(g.IssuedUnix); err != nil {
		return err
	}
	return check(g, ownedDigest(g, env.Payload))
}

func (s *KeySigner) VerifyResponse(req, resp Envelope) error {
	g := resp.Guarantor
	if g == nil {
		return fmt.Errorf("%w: response is not countersigned", ErrBadSignature)
	}
	if string(resp.Guarantee.Signature) != string(req.Guarantee.Signature) {
		return fmt.Errorf("%w: response answers a different request", ErrBadSignature)
	}
	if g.Target != req.Guarantee.Account {
		return fmt.Errorf("%w: response addressed to %s", ErrBadSignature, g.Target)
	}
	if req.Guarantee.Target != "" && g.Account != req.Guarantee.Target {
		return fmt.Errorf("%w: countersigned by %s", ErrBadSignature, g.Account)
	}
	if err := s.checkAccount(g.Account); err != nil {
		return err
	}
	return check(*g, guarantorDigest(*g, req.Guarantee, resp.Payload))
}

func (s *KeySigner) checkAccount(account string) error {
	if s.allowed != nil && !s.allowed[account] {
		return fmt.Errorf("%w: %s", ErrAccountNotAllowed, account)
	}
	return nil
}

func (s *KeySigner) checkSkew(issued int64) error {
	if s.MaxSkew <= 0 {
		return nil
	}
	d := s.now().Sub(time.Unix(issued, 0))
	if d < 0 {
		d = -d
	}
	if d > s.MaxSkew {
		return fmt.Errorf("%w: issued %s away from now", ErrBadSignature, d.Truncate(time.Second))
	}
	return nil
}

func check(g Guarantee, hash []byte) error {
	pub, err := parseAccount(g.Account)
	if err != nil {
		return fmt.Errorf("%w: account: %v", ErrBadSignature, err)
	}
	sig, err := ecdsa.ParseDERSignature(g.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !sig.Verify(hash, pub) {
		return ErrBadSignature
	}
	return nil
}
