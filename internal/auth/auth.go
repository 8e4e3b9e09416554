// Package auth resolves an HTTP caller's identity and security mode (spec
// §6.4). Session tokens are Ed25519 JWTs verified the way markcallen's
// internal/auth/jwt.go verifies BridgeClaims; the admin credential is a
// separate header compared in constant time, with no auto-promotion
// (spec §9 open question, resolved).
package auth

import (
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/pyhostd/pyhostd/internal/protocol"
)

const (
	HeaderSessionToken = "Authorization" // "Bearer <jwt>"
	HeaderAPIKey       = "X-API-Key"
	HeaderAdminKey     = "X-Admin-Key"
)

var (
	ErrUnauthenticated = errors.New("auth: no valid credential presented")
	ErrInvalidToken    = errors.New("auth: session token invalid")
)

// SessionClaims are the JWT claims required for pyhostd session access.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// Identity is the resolved caller: a user id and whether ADMIN mode applies.
type Identity struct {
	UserID string
	Mode   protocol.SecurityMode
}

// Verifier resolves credentials to an Identity.
type Verifier struct {
	Audience string
	Keys     map[string]ed25519.PublicKey // issuer -> public key
	APIKeys  map[string]string            // api key -> user id
	AdminKey string
}

// NewVerifier builds a Verifier. Keys/APIKeys may be nil/empty if unused.
func NewVerifier(audience string, keys map[string]ed25519.PublicKey, apiKeys map[string]string, adminKey string) *Verifier {
	if keys == nil {
		keys = map[string]ed25519.PublicKey{}
	}
	if apiKeys == nil {
		apiKeys = map[string]string{}
	}
	return &Verifier{Audience: audience, Keys: keys, APIKeys: apiKeys, AdminKey: adminKey}
}

// Resolve extracts and verifies a credential from the request, then gates
// ADMIN mode strictly on a separately-presented, constant-time-compared
// admin key (spec §6.4, §9: never auto-promoted from the session claim).
func (v *Verifier) Resolve(r *http.Request) (Identity, error) {
	userID, err := v.resolveUser(r)
	if err != nil {
		return Identity{}, err
	}

	mode := protocol.ModeRestricted
	if v.isAdmin(r) {
		mode = protocol.ModeAdmin
	}
	return Identity{UserID: userID, Mode: mode}, nil
}

func (v *Verifier) resolveUser(r *http.Request) (string, error) {
	if apiKey := r.Header.Get(HeaderAPIKey); apiKey != "" {
		if userID, ok := v.APIKeys[apiKey]; ok {
			return userID, nil
		}
		return "", ErrUnauthenticated
	}

	bearer := r.Header.Get(HeaderSessionToken)
	if len(bearer) > 7 && bearer[:7] == "Bearer " {
		claims, err := v.verifyToken(bearer[7:])
		if err != nil {
			return "", err
		}
		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return "", ErrInvalidToken
		}
		return sub, nil
	}

	return "", ErrUnauthenticated
}

func (v *Verifier) verifyToken(tokenString string) (*SessionClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithAudience(v.Audience),
	)

	claims := &SessionClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer == "" {
			return nil, errors.New("missing issuer")
		}
		key, ok := v.Keys[issuer]
		if !ok {
			return nil, fmt.Errorf("unknown issuer: %s", issuer)
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// isAdmin does a constant-time comparison of the presented admin header
// against the configured admin key. An empty configured key never matches.
func (v *Verifier) isAdmin(r *http.Request) bool {
	if v.AdminKey == "" {
		return false
	}
	presented := r.Header.Get(HeaderAdminKey)
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(v.AdminKey)) == 1
}

// MintSessionToken is a test/operator helper mirroring markcallen's
// JWTIssuer.Mint, producing an Ed25519-signed session token.
func MintSessionToken(key ed25519.PrivateKey, issuer, audience, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return tok.SignedString(key)
}
