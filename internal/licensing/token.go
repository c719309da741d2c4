package licensing

import (
	"fmt"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang-jwt/jwt/v5"
)

// graceTokenTTL bounds how long a cached validation survives the license
// server being unreachable across restarts.
const graceTokenTTL = 24 * time.Hour

// Claims bind a validated license to the machine it was validated on.
type Claims struct {
	Machine    string `json:"machine"`
	LicenseKey string `json:"license_key"`
	Tier       int    `json:"tier"`
	jwt.RegisteredClaims
}

// MachineID fetches a stable identifier for license binding.
func MachineID() (string, error) {
	return machineid.ID()
}

// IssueGraceToken signs a machine-bound token after a successful online
// validation. The secret stays local; the token only shortcuts the login
// screen, never the server-side checks once connectivity returns.
func IssueGraceToken(secret, licenseKey string, tier int) (string, error) {
	mid, err := MachineID()
	if err != nil {
		return "", fmt.Errorf("machine id: %w", err)
	}
	claims := Claims{
		Machine:    mid,
		LicenseKey: licenseKey,
		Tier:       tier,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(graceTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyGraceToken checks signature, expiry and machine binding, returning
// the embedded claims when the token is still good on this machine.
func VerifyGraceToken(secret, token string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	mid, err := MachineID()
	if err != nil {
		return nil, fmt.Errorf("machine id: %w", err)
	}
	if claims.Machine != mid {
		return nil, fmt.Errorf("license machine mismatch")
	}
	return claims, nil
}
