package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"clavionx/backend/internal/platform/clock"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired or signed for another use.
	ErrInvalidToken = errors.New("invalid token")
)

const (
	useAccess    = "access"
	useTwoFactor = "two_factor"
)

// AccessClaims holds JWT claims for the admin API access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Use       string `json:"use"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

// ChallengeClaims holds JWT claims for the ticket handed out while a login waits for its second factor.
// The ticket proves the password step passed; it grants nothing else.
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Use string `json:"use"`
}

// TokenProvider issues and validates JWTs using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	ticketTTL  time.Duration
	clk        clock.Clock
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on parse.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, ticketTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		ticketTTL:  ticketTTL,
		clk:        clock.System{},
	}
}

// WithClock makes the provider stamp and check expiry with clk.
func (p *TokenProvider) WithClock(clk clock.Clock) *TokenProvider {
	p.clk = clock.OrSystem(clk)
	return p
}

func (p *TokenProvider) registered(subject string, now, expiresAt time.Time) (jwt.RegisteredClaims, error) {
	jti, err := generateJTI()
	if err != nil {
		return jwt.RegisteredClaims{}, err
	}
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}, nil
}

// IssueAccess issues a short-lived access JWT bound to sessionID.
func (p *TokenProvider) IssueAccess(sessionID, userID, role string) (token string, expiresAt time.Time, err error) {
	now := p.clk.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	rc, err := p.registered(userID, now, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	token, err = p.sign(AccessClaims{RegisteredClaims: rc, Use: useAccess, SessionID: sessionID, Role: role})
	return token, expiresAt, err
}

// IssueChallengeTicket issues the pending-login ticket for userID.
func (p *TokenProvider) IssueChallengeTicket(userID string) (token string, expiresAt time.Time, err error) {
	now := p.clk.Now().UTC()
	expiresAt = now.Add(p.ticketTTL)
	rc, err := p.registered(userID, now, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	token, err = p.sign(ChallengeClaims{RegisteredClaims: rc, Use: useTwoFactor})
	return token, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

func (p *TokenProvider) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.clk.Now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// ValidateAccess parses and validates an access token (signature, exp, iss, aud, use).
func (p *TokenProvider) ValidateAccess(tokenString string) (sessionID, userID, role string, err error) {
	var claims AccessClaims
	if err := p.parse(tokenString, &claims); err != nil {
		return "", "", "", err
	}
	if claims.Use != useAccess || claims.SessionID == "" {
		return "", "", "", ErrInvalidToken
	}
	return claims.SessionID, claims.Subject, claims.Role, nil
}

// ValidateChallengeTicket parses a pending-login ticket and returns the user it was issued for.
func (p *TokenProvider) ValidateChallengeTicket(tokenString string) (userID string, err error) {
	var claims ChallengeClaims
	if err := p.parse(tokenString, &claims); err != nil {
		return "", err
	}
	if claims.Use != useTwoFactor || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

