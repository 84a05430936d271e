package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-workshop-api/internal/utils"
)

// Locals keys populated by JWTProtected.
const (
	LocalUserID           = "user_id"
	LocalUserRole         = "user_role"
	LocalUserCapabilities = "user_capabilities"
)

// Claims is the token body issued by the course platform. Caps grants workshop
// capabilities on top of those implied by the role.
type Claims struct {
	UserID interface{} `json:"user_id,omitempty"`
	Role   interface{} `json:"role,omitempty"`
	Roles  interface{} `json:"roles,omitempty"`
	Caps   []string    `json:"caps,omitempty"`
	jwt.RegisteredClaims
}

// JWTProtected returns a middleware that validates HMAC signed bearer tokens.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))

	return func(c *fiber.Ctx) error {
		authorization := c.Get(fiber.HeaderAuthorization)
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), bearer) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims := &Claims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		userID, err := claims.userID()
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token subject")
		}

		c.Locals(LocalUserID, userID)
		if role := claims.role(); role != "" {
			c.Locals(LocalUserRole, role)
		}
		if len(claims.Caps) > 0 {
			c.Locals(LocalUserCapabilities, claims.Caps)
		}

		return c.Next()
	}
}

func (c *Claims) userID() (uint, error) {
	if c.Subject != "" {
		return normalizeUserID(c.Subject)
	}
	if c.UserID != nil {
		return normalizeUserID(c.UserID)
	}
	return 0, fmt.Errorf("missing subject")
}

func (c *Claims) role() string {
	if role := normalizeRole(c.Role); role != "" {
		return role
	}
	return normalizeRole(c.Roles)
}

func normalizeUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v <= 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil || parsed == 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type")
	}
}

func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				if role := strings.ToLower(strings.TrimSpace(str)); role != "" {
					return role
				}
			}
		}
	}
	return ""
}
