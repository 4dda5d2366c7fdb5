// Package auth issues and verifies the session tokens that identify players
// on websocket connects, and hashes account passwords.
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL is how long a session token stays valid; 0 means no expiry.
	tokenTTL time.Duration
)

// Init generates a fresh ed25519 key pair for this process and reads
// SESSION_TOKEN_TTL (a Go duration, "never"/empty for no expiry). Tokens do
// not survive a restart, which is acceptable: clients transparently get a
// new ephemeral identity.
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("generate session key pair: %w", err)
	}
	return parseTokenTTL()
}

// InitFromPath loads a persistent ed25519 key pair from disk, so sessions
// survive restarts in multi-node deployments.
func InitFromPath(privatePath, publicPath string) error {
	priv, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}
	pub, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	privateKey = ed25519.PrivateKey(priv)
	publicKey = ed25519.PublicKey(pub)
	return parseTokenTTL()
}

func parseTokenTTL() error {
	raw := os.Getenv("SESSION_TOKEN_TTL")
	if raw == "" || raw == "never" || raw == "0" {
		tokenTTL = 0
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse SESSION_TOKEN_TTL: %w", err)
	}
	tokenTTL = d
	return nil
}

// CreateToken signs a session token with "sub" = playerID.
func CreateToken(playerID string) (string, error) {
	claims := jwt.MapClaims{"sub": playerID}
	if tokenTTL > 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifyToken checks the signature and returns the player id from "sub".
func VerifyToken(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid session token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid session claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("session token missing sub")
	}
	return sub, nil
}
