package session

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"skyprefs/pkg/clients/bsky"
)

var ErrInvalidAccount = errors.New("session: invalid account")

// Account is a persisted signed-in account.
type Account struct {
	Service         string `yaml:"service" json:"service"`
	DID             string `yaml:"did" json:"did"`
	Handle          string `yaml:"handle" json:"handle"`
	Email           string `yaml:"email,omitempty" json:"email,omitempty"`
	EmailConfirmed  bool   `yaml:"emailConfirmed,omitempty" json:"emailConfirmed,omitempty"`
	EmailAuthFactor bool   `yaml:"emailAuthFactor,omitempty" json:"emailAuthFactor,omitempty"`
	RefreshJwt      string `yaml:"refreshJwt,omitempty" json:"refreshJwt,omitempty"`
	AccessJwt       string `yaml:"accessJwt,omitempty" json:"accessJwt,omitempty"`
	PdsURL          string `yaml:"pdsUrl,omitempty" json:"pdsUrl,omitempty"`
	Active          *bool  `yaml:"active,omitempty" json:"active,omitempty"`
	Status          string `yaml:"status,omitempty" json:"status,omitempty"`
}

// ToSession converts a stored account into session data. Tokens must be
// JWTs when present; they are decoded but not verified.
func (a Account) ToSession() (bsky.Session, error) {
	if !strings.HasPrefix(a.DID, "did:") {
		return bsky.Session{}, fmt.Errorf("%w: did %q", ErrInvalidAccount, a.DID)
	}
	if a.PdsURL != "" {
		u, err := url.Parse(a.PdsURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return bsky.Session{}, fmt.Errorf("%w: pds url %q", ErrInvalidAccount, a.PdsURL)
		}
	}
	for name, tok := range map[string]string{"access": a.AccessJwt, "refresh": a.RefreshJwt} {
		if tok == "" {
			continue
		}
		if _, err := tokenExpiry(tok); err != nil {
			return bsky.Session{}, fmt.Errorf("%w: %s token: %v", ErrInvalidAccount, name, err)
		}
	}

	active := true
	if a.Active != nil {
		active = *a.Active
	}
	return bsky.Session{
		AccessJwt:       a.AccessJwt,
		RefreshJwt:      a.RefreshJwt,
		DID:             a.DID,
		Handle:          a.Handle,
		Email:           a.Email,
		EmailConfirmed:  a.EmailConfirmed,
		EmailAuthFactor: a.EmailAuthFactor,
		Active:          active,
		Status:          a.Status,
	}, nil
}

// tokenExpiry returns the exp claim of tok, zero when absent.
func tokenExpiry(tok string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, err
	}
	return exp.Time, nil
}
