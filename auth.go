package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtExpiry        = 24 * time.Hour
	bcryptCost       = 12
	minPasswordLen   = 4
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
)

// Auth guards the admin surface: metrics API and debug commands
type Auth struct {
	db        *DB
	jwtSecret []byte

	// Rate limiting for login attempts (IP -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates an Auth handler. If adminPassword is non-empty its bcrypt
// hash replaces the stored one; otherwise the previously stored hash is used.
// Returns nil (auth disabled) when no password was ever configured.
func NewAuth(db *DB, adminPassword string) (*Auth, error) {
	if adminPassword != "" {
		if len(adminPassword) < minPasswordLen {
			return nil, fmt.Errorf("admin password must be at least %d characters", minPasswordLen)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		if err := db.SetSetting("admin_hash", string(hash)); err != nil {
			return nil, fmt.Errorf("store admin hash: %w", err)
		}
	}
	if db.GetSetting("admin_hash") == "" {
		return nil, nil
	}
	return &Auth{
		db:        db,
		jwtSecret: loadOrCreateSecret(db),
		rateMap:   make(map[string]*rateEntry),
	}, nil
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	// Generate a new secret
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Printf("warning: could not persist JWT secret: %v", err)
		}
	}
	return secret
}

// Login verifies the admin password and returns a JWT
func (a *Auth) Login(password, ip string) (string, error) {
	if !a.checkRate(ip) {
		return "", fmt.Errorf("too many login attempts, try again later")
	}

	hash := a.db.GetSetting("admin_hash")
	if hash == "" {
		return "", fmt.Errorf("invalid password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid password")
	}

	claims := jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(jwtExpiry).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// ValidateToken checks a JWT and its admin role claim
func (a *Auth) ValidateToken(tokenStr string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("invalid token")
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return fmt.Errorf("invalid token claims")
	}
	return nil
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}
