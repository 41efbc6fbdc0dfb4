package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenService mints and verifies the signed compact tokens used by the
// orchestrator. Access tokens carry an open string-keyed claim map; refresh
// tokens carry no identity at all; their linkage lives in the persisted
// refresh-token row, which is also the only place revocation is enforced.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService signing with the given secret.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	s := &TokenService{
		secret:     []byte(secret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccess signs an access token carrying the caller-supplied claims
// verbatim plus a fresh unique id, issued-at and expiry. The claim map is an
// open contract: callers populate userId/username/userType/organizationId/
// organizationName/clientAppId/user_metadata as appropriate per principal.
func (s *TokenService) IssueAccess(claims map[string]any) (string, error) {
	now := s.now().UTC()
	payload := make(jwt.MapClaims, len(claims)+3)
	for k, v := range claims {
		payload[k] = v
	}
	payload["jti"] = uuid.NewString()
	payload["iat"] = jwt.NewNumericDate(now)
	payload["exp"] = jwt.NewNumericDate(now.Add(s.accessTTL))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// IssueRefresh signs an opaque refresh token: same compact format, empty
// claims. The embedded expiry is advisory only; the refresh-token ledger row
// is authoritative.
func (s *TokenService) IssueRefresh() (string, error) {
	now := s.now().UTC()
	payload := jwt.MapClaims{
		"jti": uuid.NewString(),
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(s.refreshTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// ParseAndVerify checks the signature and embedded expiry and returns the
// claim map. Any structural, signature or expiry failure collapses to
// ErrInvalidToken. Revocation is not checked here.
func (s *TokenService) ParseAndVerify(token string) (map[string]any, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return map[string]any(claims), nil
}

// AccessTTL returns the configured access-token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// AccessTTLSeconds is the access lifetime as surfaced in token responses.
func (s *TokenService) AccessTTLSeconds() int64 {
	return int64(s.accessTTL / time.Second)
}

// RefreshTTLSeconds is the refresh lifetime as surfaced in token responses.
func (s *TokenService) RefreshTTLSeconds() int64 {
	return int64(s.refreshTTL / time.Second)
}
