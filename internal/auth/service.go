package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// Identical category and message for unknown email and wrong password so
	// the login surface cannot be used to enumerate accounts.
	errBadCredentials = fmt.Errorf("%w: credentials are not valid", ErrUnauthorized)
	errInactiveUser   = fmt.Errorf("%w: user is inactive", ErrUnauthorized)
	errAccessDenied   = fmt.Errorf("%w: access denied", ErrForbidden)
)

// Service orchestrates the principal lifecycle: registration, login, OAuth
// provision-or-login, refresh rotation, logout and password recovery. It is
// constructed with its collaborators as interfaces so tests can substitute
// them.
type Service struct {
	users  UserStore
	roles  RoleStore
	tokens *TokenService
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(users UserStore, roles RoleStore, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if users == nil || roles == nil {
		return nil, errors.New("auth: user and role stores are required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	s := &Service{users: users, roles: roles, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterInput describes a registration request. Provider is non-empty when
// the principal is provisioned through an external identity provider, in
// which case no password is stored.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Roles    []string
	Provider string
}

// Session is what a successful authentication yields: the user projection and
// a fresh token pair.
type Session struct {
	User   Profile   `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// Register creates a principal, assigns the requested roles (default USER),
// and opens a session. Unknown role names fail with ErrNotFound; a duplicate
// email surfaces as ErrConflict from the store.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	fromProvider := strings.TrimSpace(in.Provider) != ""
	if !fromProvider && in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	roleNames := in.Roles
	if len(roleNames) == 0 {
		roleNames = []string{RoleUser}
	}
	rolesToAdd := make([]Role, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := s.roles.FindByName(ctx, NormalizeRoleName(name))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: role %q", ErrNotFound, name)
			}
			return nil, err
		}
		rolesToAdd = append(rolesToAdd, *role)
	}

	user := &User{
		Email:    email,
		FullName: strings.TrimSpace(in.FullName),
		IsActive: true,
		Roles:    rolesToAdd,
	}
	if fromProvider {
		provider := strings.TrimSpace(in.Provider)
		user.Provider = &provider
	} else {
		digest, err := HashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordDigest = &digest
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.openSession(ctx, user)
}

// Login authenticates local credentials and opens a session. Unknown email
// and wrong password fail identically; inactive principals are rejected.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if user.PasswordDigest == nil || VerifyPassword(*user.PasswordDigest, password) != nil {
		return nil, errBadCredentials
	}
	if !user.IsActive {
		return nil, errInactiveUser
	}
	return s.openSession(ctx, user)
}

// ExternalProfile is the verified identity an external provider yields after
// its own handshake. The service never talks to the provider directly.
type ExternalProfile struct {
	Provider string
	Subject  string
	Email    string
	FullName string
	Picture  string
}

// OAuthLogin provisions a principal for an external identity on first sight
// and logs it in on every subsequent one. Idempotent: two calls for the same
// identity never create two principals.
func (s *Service) OAuthLogin(ctx context.Context, profile ExternalProfile) (*Session, error) {
	email := NormalizeEmail(profile.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: external profile has no email", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.Register(ctx, RegisterInput{
				Email:    email,
				FullName: profile.FullName,
				Provider: profile.Provider,
			})
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, errInactiveUser
	}
	return s.openSession(ctx, user)
}

// Refresh rotates the refresh token: the presented token must match the
// stored hash, after which a brand-new pair is issued and the hash
// overwritten. The old refresh token becomes permanently unusable. Concurrent
// attempts with the same token race at-most-one-wins; the loser fails with
// ErrForbidden.
func (s *Service) Refresh(ctx context.Context, userID, refreshToken string) (*Session, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errAccessDenied
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, errInactiveUser
	}
	if user.RefreshTokenHash == nil || !RefreshTokenMatches(*user.RefreshTokenHash, refreshToken) {
		return nil, errAccessDenied
	}
	return s.openSession(ctx, user)
}

// Logout clears the stored refresh-token hash. Logging out twice is not an
// error.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.users.SetRefreshTokenHash(ctx, userID, nil)
}

// RecoverPassword issues a password-recovery token for an active principal.
// Unknown email and inactive principal fail with the same category as login,
// revealing nothing more than the login surface already does.
func (s *Service) RecoverPassword(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", errBadCredentials
		}
		return "", err
	}
	if !user.IsActive {
		return "", errInactiveUser
	}
	return s.tokens.IssueRecoveryToken(user.Email)
}

// ResetPassword consumes a recovery token, updates the password digest and
// clears the refresh-token hash, forcing re-login everywhere.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	email, err := s.tokens.DecodeRecoveryToken(token)
	if err != nil {
		return fmt.Errorf("%w: recovery token is not valid", ErrUnauthorized)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: recovery token is not valid", ErrUnauthorized)
		}
		return err
	}
	if !user.IsActive {
		return errInactiveUser
	}
	digest, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.SetPasswordDigest(ctx, user.ID, digest); err != nil {
		return err
	}
	return s.users.SetRefreshTokenHash(ctx, user.ID, nil)
}

// openSession computes the effective authorization set, issues a token pair
// and stores the hash of the new refresh token against the user.
func (s *Service) openSession(ctx context.Context, user *User) (*Session, error) {
	profile := NewProfile(user)
	pair, err := s.tokens.IssueTokens(profile)
	if err != nil {
		return nil, err
	}
	hash := HashRefreshToken(pair.RefreshToken)
	if err := s.users.SetRefreshTokenHash(ctx, user.ID, &hash); err != nil {
		return nil, err
	}
	return &Session{User: profile, Tokens: pair}, nil
}
