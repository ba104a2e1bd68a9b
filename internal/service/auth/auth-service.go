package auth

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"

	"StayDesk/entity"
	"StayDesk/internal/lib/sl"
)

// ErrInvalidToken is returned for any credential that does not resolve to
// a verified identity. Fatal to the connection; the client reconnects with
// a fresh token.
var ErrInvalidToken = errors.New("invalid token")

// Repository looks identities up in persistent storage.
type Repository interface {
	GetIdentity(id string) (*entity.Identity, error)
}

// identityClaims is the claim set the external identity subsystem signs.
type identityClaims struct {
	DisplayName string `json:"name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Service resolves session credentials to verified identities. Token
// issuance stays with the external identity subsystem; this side only
// verifies the HMAC signature and claims.
type Service struct {
	secret     []byte
	repository Repository
	log        *slog.Logger
}

func NewAuthService(secret string, logger *slog.Logger) *Service {
	return &Service{
		secret: []byte(secret),
		log:    logger.With(sl.Module("auth-service")),
	}
}

func (s *Service) SetRepository(repository Repository) {
	s.repository = repository
}

// Authenticate verifies the token and returns the identity it names. The
// identity record in storage wins over stale claims when both exist.
func (s *Service) Authenticate(token string) (*entity.Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	var claims identityClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrInvalidToken
	}

	identity := &entity.Identity{
		ID:          subject,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	}

	if s.repository != nil {
		stored, err := s.repository.GetIdentity(subject)
		if err != nil {
			s.log.Warn("identity lookup failed, using token claims", sl.Err(err))
		} else if stored != nil {
			identity = stored
		}
	}

	if identity.Role == "" {
		identity.Role = entity.UserRole
	}

	return identity, nil
}
