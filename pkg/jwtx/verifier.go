package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrMissingKID  = errors.New("jwtx: missing kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrNoActiveKey = errors.New("jwtx: no active signing key")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrWrongUse     = errors.New("jwtx: token_use mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Verifier checks a compact JWT and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// VerifyOptions pins the claims a token must carry. Zero fields are not
// checked.
type VerifyOptions struct {
	Issuer   string
	Audience []string // any one must be present
	Use      string   // token_use
	Leeway   time.Duration
}

type rs256Verifier struct {
	keys   *KeySet
	opts   VerifyOptions
	parser *jwt.Parser

	// reload is called once for a kid missing from keys and reports
	// whether it is known afterwards.
	reload func(kid string) bool
}

// NewVerifierRS256 verifies RS256 tokens against the public keys in keys.
func NewVerifierRS256(keys *KeySet, opts VerifyOptions) Verifier {
	return newRS256Verifier(keys, opts)
}

func newRS256Verifier(keys *KeySet, opts VerifyOptions) *rs256Verifier {
	return &rs256Verifier{
		keys: keys,
		opts: opts,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithLeeway(opts.Leeway),
		),
	}
}

func (v *rs256Verifier) Verify(raw string) (Claims, error) {
	var claims Claims
	if _, err := v.parser.ParseWithClaims(raw, &claims, v.keyFor); err != nil {
		return Claims{}, wrapParseError(err)
	}

	checks := []func() error{
		func() error { return claims.ValidateIssuer(v.opts.Issuer) },
		func() error { return claims.ValidateAudience(v.opts.Audience) },
		func() error { return claims.ValidateUse(v.opts.Use) },
		func() error { return claims.ValidateExpiryWithLeeway(v.opts.Leeway) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return Claims{}, err
		}
	}
	return claims, nil
}

func (v *rs256Verifier) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, ErrMissingKID
	}

	pub, err := v.keys.Get(kid)
	if errors.Is(err, ErrNoKey) && v.reload != nil && v.reload(kid) {
		pub, err = v.keys.Get(kid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
	}
	return pub, nil
}

// parseErrors maps golang-jwt failures onto this package's sentinels.
var parseErrors = []struct{ from, to error }{
	{jwt.ErrTokenExpired, ErrExpired},
	{jwt.ErrTokenNotValidYet, ErrNotYetValid},
	{jwt.ErrTokenSignatureInvalid, ErrInvalidSig},
	{jwt.ErrTokenMalformed, ErrMalformed},
}

func wrapParseError(err error) error {
	if errors.Is(err, ErrUnknownKID) || errors.Is(err, ErrMissingKID) {
		return err
	}
	for _, pe := range parseErrors {
		if errors.Is(err, pe.from) {
			return fmt.Errorf("%w: %w", pe.to, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrInvalidClaim, err)
}
