package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrNoSigningKey = errors.New("activation signing key is not configured")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// ActivationClaims are the claims carried by a signed activation token. The
// desktop client verifies them offline with the public key.
type ActivationClaims struct {
	LicenseID  string `json:"sub"`
	JTI        string `json:"jti"`
	Type       string `json:"typ"`
	MachineID  string `json:"machine_id"`
	TrialStart int64  `json:"trial_start,omitempty"`
}

// Signer issues RS256 activation tokens. A Signer without a private key
// fails closed: every Sign call returns ErrNoSigningKey.
type Signer struct {
	key    *rsa.PrivateKey
	issuer string
}

// NewSigner parses a PEM-encoded RSA private key. An empty PEM yields a
// signer that refuses to sign rather than an error at construction, so the
// server can boot for surfaces that never issue tokens.
func NewSigner(privateKeyPEM, issuer string) (*Signer, error) {
	s := &Signer{issuer: issuer}
	if privateKeyPEM == "" {
		return s, nil
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse activation signing key: %w", err)
	}
	s.key = key
	return s, nil
}

// Ready reports whether the signer holds a private key.
func (s *Signer) Ready() bool {
	return s != nil && s.key != nil
}

// SignActivation issues an activation token for one license/machine binding.
func (s *Signer) SignActivation(lk *models.LicenseKey, jti, machineIDHash string, issuedAt time.Time) (string, error) {
	if !s.Ready() {
		return "", ErrNoSigningKey
	}

	claims := jwt.MapClaims{
		"iss":        s.issuer,
		"sub":        lk.ID.String(),
		"jti":        jti,
		"typ":        lk.Type,
		"machine_id": machineIDHash,
		"iat":        issuedAt.Unix(),
	}
	if lk.TrialStart != nil {
		claims["trial_start"] = lk.TrialStart.Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.key)
}

// VerifyActivation validates a token against the signer's public key and
// returns its claims. Used by tests and by relying parties that hold the
// full key pair.
func (s *Signer) VerifyActivation(tokenString string) (*ActivationClaims, error) {
	if !s.Ready() {
		return nil, ErrNoSigningKey
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return &s.key.PublicKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	out := &ActivationClaims{}
	out.LicenseID, _ = claims["sub"].(string)
	out.JTI, _ = claims["jti"].(string)
	out.Type, _ = claims["typ"].(string)
	out.MachineID, _ = claims["machine_id"].(string)
	if ts, ok := claims["trial_start"].(float64); ok {
		out.TrialStart = int64(ts)
	}
	return out, nil
}

// SessionSigner issues HS256 customer session tokens. It deliberately uses a
// separate secret from the activation key pair so the two credential domains
// cannot be confused.
type SessionSigner struct {
	secret []byte
	expiry time.Duration
}

func NewSessionSigner(secret string, expiry time.Duration) *SessionSigner {
	return &SessionSigner{secret: []byte(secret), expiry: expiry}
}

// SignSession issues a portal session token for a customer.
func (s *SessionSigner) SignSession(customer *models.Customer) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSigningKey
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   customer.ID.String(),
		"email": customer.Email,
		"role":  customer.Role,
		"iat":   now.Unix(),
		"exp":   now.Add(s.expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifySession validates a session token and returns the customer ID and role.
func (s *SessionSigner) VerifySession(tokenString string) (uuid.UUID, string, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	return id, role, nil
}
