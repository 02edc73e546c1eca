package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carry the caller's resolved capability: role plus the set of
// tenants the caller staffs. Staff tenant IDs are resolved once at login
// so per-request permission checks never hit the database.
type Claims struct {
	UserID    uuid.UUID   `json:"user_id"`
	Role      string      `json:"role"`
	TenantIDs []uuid.UUID `json:"tenant_ids,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the caller has full access.
func (c *Claims) IsAdmin() bool { return c.Role == "ADMIN" }

// IsCashier reports whether the caller may confirm cash payments.
// Admins implicitly hold the cashier capability.
func (c *Claims) IsCashier() bool { return c.Role == "CASHIER" || c.IsAdmin() }

// StaffOf reports whether the caller may operate on the given tenant's
// orders and menu. Admins staff every tenant.
func (c *Claims) StaffOf(tenantID uuid.UUID) bool {
	if c.IsAdmin() {
		return true
	}
	for _, id := range c.TenantIDs {
		if id == tenantID {
			return true
		}
	}
	return false
}

func GenerateToken(secret string, userID uuid.UUID, role string, tenantIDs []uuid.UUID) (string, error) {
	claims := Claims{
		UserID:    userID,
		Role:      role,
		TenantIDs: tenantIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func GenerateRefreshToken(secret string, userID uuid.UUID) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
