package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried in tokens.
const (
	RoleTeacher      = "teacher"
	RoleStudent      = "student"
	RoleUnrestricted = "unrestricted"
)

// Token types.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
	TypeGrant   = "grant"
)

var (
	ErrWrongType      = errors.New("wrong token type")
	ErrIssuerMismatch = errors.New("issuer mismatch")
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Claims represents JWT payload. Subject is the device id.
type Claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	Type    string `json:"typ"`
	jwt.RegisteredClaims
}

// Issue issues signed access and refresh tokens for a device.
func Issue(subject, role, issuer, key string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(accessTTL)
	refreshExp := now.Add(refreshTTL)

	accessToken, err := sign(newClaims(subject, role, TypeAccess, issuer, now, accessExp), key)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := sign(newClaims(subject, role, TypeRefresh, issuer, now, refreshExp), key)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Refresh exchanges a refresh token for a new pair.
func Refresh(refreshToken, issuer, key string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	claims, err := Parse(refreshToken, key, issuer)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Type != TypeRefresh {
		return TokenPair{}, ErrWrongType
	}
	return Issue(claims.Subject, claims.Role, issuer, key, accessTTL, refreshTTL)
}

// Grant is an operator-issued permission for one device to run in
// unrestricted mode.
type Grant struct {
	ID        string    `json:"grant_id"`
	DeviceID  string    `json:"device_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueGrant signs an unrestricted-mode grant for deviceID.
func IssueGrant(deviceID, issuer, key string, ttl time.Duration) (Grant, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := newClaims(deviceID, RoleUnrestricted, TypeGrant, issuer, now, exp)
	claims.ID = uuid.NewString()
	token, err := sign(claims, key)
	if err != nil {
		return Grant{}, err
	}
	return Grant{ID: claims.ID, DeviceID: deviceID, Token: token, ExpiresAt: exp}, nil
}

// ParseGrant validates a grant token and returns its claims.
func ParseGrant(tokenStr, key, issuer string) (Claims, error) {
	claims, err := Parse(tokenStr, key, issuer)
	if err != nil {
		return Claims{}, err
	}
	if claims.Type != TypeGrant || claims.Role != RoleUnrestricted || claims.ID == "" {
		return Claims{}, ErrWrongType
	}
	return claims, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, ErrIssuerMismatch
	}
	return *claims, nil
}

func newClaims(subject, role, typ, issuer string, now, exp time.Time) Claims {
	return Claims{
		Subject: subject,
		Role:    role,
		Type:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
}

func sign(c Claims, key string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(key))
}
