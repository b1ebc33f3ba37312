package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "gatehouse"

const (
	defaultAccessTTL   = 15 * time.Minute
	defaultRefreshTTL  = 14 * 24 * time.Hour
	defaultRecoveryTTL = 10 * time.Minute
)

var (
	// ErrInvalidToken indicates a malformed token, a bad signature or a token
	// signed for a different purpose.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired is distinguished from ErrInvalidToken only for access
	// tokens, so clients can be offered "please refresh" semantics.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims carried by access and refresh tokens. Roles and permissions are a
// snapshot taken at issuance, not a live view: membership changes become
// visible on the next issuance.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	FullName    string   `json:"full_name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// recoveryClaims is the single-purpose payload of a password-recovery token.
// It embeds only the target email.
type recoveryClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenPair bundles a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenService signs and verifies the three token kinds, each with its own
// secret and lifetime. Per-purpose secrets are a defense-in-depth boundary:
// compromise of the recovery secret cannot mint session tokens, and vice
// versa.
type TokenService struct {
	accessSecret   []byte
	refreshSecret  []byte
	recoverySecret []byte

	accessTTL   time.Duration
	refreshTTL  time.Duration
	recoveryTTL time.Duration

	now func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(t *TokenService) { t.accessTTL = ttl }
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(t *TokenService) { t.refreshTTL = ttl }
}

// WithRecoveryTTL overrides the recovery token lifetime.
func WithRecoveryTTL(ttl time.Duration) TokenOption {
	return func(t *TokenService) { t.recoveryTTL = ttl }
}

// WithTokenClock overrides the time source used for issuance and validation.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(t *TokenService) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokenService constructs a TokenService. All three secrets are required
// and must be pairwise distinct.
func NewTokenService(accessSecret, refreshSecret, recoverySecret string, opts ...TokenOption) (*TokenService, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	recoverySecret = strings.TrimSpace(recoverySecret)
	if accessSecret == "" || refreshSecret == "" || recoverySecret == "" {
		return nil, errors.New("auth: access, refresh and recovery secrets are required")
	}
	if accessSecret == refreshSecret || accessSecret == recoverySecret || refreshSecret == recoverySecret {
		return nil, errors.New("auth: signing secrets must be distinct")
	}
	t := &TokenService{
		accessSecret:   []byte(accessSecret),
		refreshSecret:  []byte(refreshSecret),
		recoverySecret: []byte(recoverySecret),
		accessTTL:      defaultAccessTTL,
		refreshTTL:     defaultRefreshTTL,
		recoveryTTL:    defaultRecoveryTTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// IssueTokens signs an access/refresh pair from the same profile snapshot,
// using distinct secrets and lifetimes.
func (t *TokenService) IssueTokens(profile Profile) (TokenPair, error) {
	access, accessExp, err := t.sign(profile, t.accessSecret, t.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExp, err := t.sign(profile, t.refreshSecret, t.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (t *TokenService) sign(profile Profile, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if profile.ID == "" {
		return "", time.Time{}, errors.New("profile id is required")
	}
	now := t.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Email:       profile.Email,
		FullName:    profile.FullName,
		Roles:       profile.Roles,
		Permissions: profile.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   profile.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccess decodes a token against the access secret.
func (t *TokenService) VerifyAccess(token string) (*Claims, error) {
	return t.verify(token, t.accessSecret)
}

// VerifyRefresh decodes a token against the refresh secret. Matching the
// presented token against the stored server-side hash is the caller's job.
func (t *TokenService) VerifyRefresh(token string) (*Claims, error) {
	return t.verify(token, t.refreshSecret)
}

// verify fails closed: malformed input, wrong secret and bad issuer all
// collapse to ErrInvalidToken; only expiry is reported separately.
func (t *TokenService) verify(token string, secret []byte) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueRecoveryToken signs a short-lived, single-purpose token embedding only
// the target email.
func (t *TokenService) IssueRecoveryToken(email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", errors.New("email is required")
	}
	now := t.now().UTC()
	claims := recoveryClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.recoveryTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.recoverySecret)
	if err != nil {
		return "", fmt.Errorf("sign recovery token: %w", err)
	}
	return signed, nil
}

// DecodeRecoveryToken returns the email embedded in a recovery token. Every
// failure mode collapses to ErrInvalidToken so the recovery flow cannot be
// used as an oracle for malformed vs expired vs never-issued tokens.
func (t *TokenService) DecodeRecoveryToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &recoveryClaims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.recoverySecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*recoveryClaims)
	if !ok || !parsed.Valid || claims.Email == "" {
		return "", ErrInvalidToken
	}
	return claims.Email, nil
}

// HashRefreshToken computes the server-side hash stored against the user.
// SHA-256 rather than bcrypt: refresh tokens exceed bcrypt's 72-byte input
// limit, and the hashed value is high-entropy already.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RefreshTokenMatches compares a presented refresh token against a stored
// hash in constant time.
func RefreshTokenMatches(storedHash, token string) bool {
	presented := HashRefreshToken(token)
	if len(storedHash) != len(presented) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(presented)) == 1
}
