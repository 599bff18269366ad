package appviewstub

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"skyprefs/pkg/middleware"
)

const (
	scopeAccess  = "com.atproto.access"
	scopeRefresh = "com.atproto.refresh"

	errExpiredToken = "ExpiredToken"
	errInvalidToken = "InvalidToken"
)

type tokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func (s *Server) mint(did, scope string, ttl time.Duration) (string, string, error) {
	now := s.clock.Now()
	jti := uuid.NewString()
	claims := tokenClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   did,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", "", err
	}
	s.tokensIssued.WithLabelValues(scope).Inc()
	return signed, jti, nil
}

// issue mints a fresh access/refresh pair for did.
func (s *Server) issue(did string) (access, refresh string, err error) {
	access, _, err = s.mint(did, scopeAccess, s.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, _, err = s.mint(did, scopeRefresh, s.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *Server) parse(token string) (*tokenClaims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

// validator checks tokens of one scope. Refresh tokens are single use.
func (s *Server) validator(scope string) middleware.TokenValidator {
	return func(token string) (string, string, error) {
		claims, err := s.parse(token)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errExpiredToken, errors.New("Token has expired")
		}
		if err != nil {
			return "", errInvalidToken, errors.New("Token could not be verified")
		}
		if claims.Scope != scope {
			return "", errInvalidToken, errors.New("Bad token scope")
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.accounts[claims.Subject]; !ok {
			return "", errInvalidToken, errors.New("Account not found")
		}
		if scope == scopeRefresh {
			if _, used := s.revoked[claims.ID]; used {
				return "", errExpiredToken, errors.New("Token has been revoked")
			}
			s.revoked[claims.ID] = struct{}{}
		}
		return claims.Subject, "", nil
	}
}
