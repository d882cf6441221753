package web

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// ErrInvalidCredentials is returned by Login for any rejected attempt.
var ErrInvalidCredentials = errors.New("web: invalid credentials")

const issuer = "gridadmin"

// Claims holds the JWT claims for an authenticated admin session.
type Claims struct {
	Actor world.PlayerID `json:"actor"`
	jwt.RegisteredClaims
}

// AuthService issues and checks bearer tokens bound to an acting player.
type AuthService struct {
	jwtKey   []byte
	expiry   time.Duration
	passHash []byte
}

// NewAuthService creates an auth service. If jwtSecret is empty, a random
// 32-byte key is generated and tokens do not survive a restart. passHash is
// the bcrypt hash checked by Login; when empty, Login always fails and
// tokens must be minted offline with Issue.
func NewAuthService(jwtSecret string, expirySeconds int, passHash string) *AuthService {
	var key []byte
	if jwtSecret != "" {
		key = []byte(jwtSecret)
	} else {
		key = make([]byte, 32)
		rand.Read(key)
	}
	expiry := 24 * time.Hour
	if expirySeconds > 0 {
		expiry = time.Duration(expirySeconds) * time.Second
	}
	a := &AuthService{jwtKey: key, expiry: expiry}
	if passHash != "" {
		a.passHash = []byte(passHash)
	}
	return a
}

// Login checks password against the admin hash and issues a token for actor.
func (a *AuthService) Login(actor world.PlayerID, password string) (string, error) {
	if len(a.passHash) == 0 {
		return "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(a.passHash, []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return a.Issue(actor)
}

// Issue signs a token for actor.
func (a *AuthService) Issue(actor world.PlayerID) (string, error) {
	now := time.Now()
	claims := Claims{
		Actor: actor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(int64(actor), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtKey)
}

// ValidateToken parses and validates a JWT token string.
func (a *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtKey, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// RefreshToken creates a new token with a fresh expiry for an existing valid token.
func (a *AuthService) RefreshToken(tokenStr string) (string, error) {
	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.expiry))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtKey)
}

// GenerateSecret generates a random hex-encoded secret suitable for jwt_secret.
func GenerateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashPassword returns the bcrypt hash to store in admin_pass_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
