package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fleet-track/internal/fleet/model"
)

type mintClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken mints an HS256 session token compatible with Verifier.
// Token issuance belongs to the auth service in production; this exists for
// development and tests.
func GenerateToken(secret, userID string, role model.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := mintClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// TokenHandler issues development tokens. Mounted only outside production.
func TokenHandler(secret string, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "only POST method allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			UserID string `json:"user_id"`
			Role   string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if req.UserID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		if req.Role == "" {
			req.Role = string(model.RoleDriver)
		}
		role, err := model.ParseRole(req.Role)
		if err != nil {
			http.Error(w, "unknown role", http.StatusBadRequest)
			return
		}

		token, err := GenerateToken(secret, req.UserID, role, ttl)
		if err != nil {
			http.Error(w, "failed to generate token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	}
}
