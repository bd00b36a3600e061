package control

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Role defines the access level of a caller.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleReadOnly Role = "readonly"
)

// Auth modes.
const (
	AuthNone   = "none"
	AuthAPIKey = "api-key"
	AuthJWT    = "jwt"
)

var roleLevel = map[Role]int{
	RoleReadOnly: 1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode      string          // "api-key", "jwt", "none"
	APIKey    string          // from env CONTROL_API_KEY, grants admin
	Roles     map[string]Role // additional api-key → role mapping
	JWTSecret []byte          // HS256 secret for "jwt" mode
}

// Claims are the JWT claims accepted by the control API.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for role. Used by operators to mint panel
// credentials.
func SignToken(secret []byte, subject string, role Role, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: string(role), RegisteredClaims: claims})
	return token.SignedString(secret)
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

// NewAuthMiddleware returns a Fiber middleware that validates the Authorization header.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Mode == AuthNone || cfg.Mode == "" {
			c.Locals("role", RoleAdmin)
			c.Locals("caller", "anonymous")
			return c.Next()
		}

		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")

		if cfg.Mode == AuthJWT {
			claims, err := parseToken(cfg.JWTSecret, token)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("path", path).
					Str("method", c.Method()).
					Msg("unauthorized request: invalid token")
				return problemResponse(c, fiber.StatusUnauthorized,
					"invalid_token", "Unauthorized",
					"Invalid or expired token")
			}
			c.Locals("role", Role(claims.Role))
			c.Locals("caller", claims.Subject)
			return c.Next()
		}

		if cfg.APIKey != "" && token == cfg.APIKey {
			c.Locals("role", RoleAdmin)
			c.Locals("caller", "api-key")
			return c.Next()
		}

		if role, ok := cfg.Roles[token]; ok {
			c.Locals("role", role)
			c.Locals("caller", "api-key:"+string(role))
			return c.Next()
		}

		logger.Warn().
			Str("path", path).
			Str("method", c.Method()).
			Msg("unauthorized request: invalid API key")

		return problemResponse(c, fiber.StatusUnauthorized,
			"invalid_api_key", "Unauthorized",
			"Invalid API key")
	}
}

func parseToken(secret []byte, raw string) (*Claims, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if _, ok := roleLevel[Role(claims.Role)]; !ok {
		return nil, errors.New("unknown role claim " + claims.Role)
	}
	return claims, nil
}

// requireRole returns a middleware that enforces a minimum role level.
func requireRole(minRole Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !hasRole(c, minRole) {
			return problemResponse(c, fiber.StatusForbidden,
				"insufficient_role", "Forbidden",
				"Insufficient permissions for this operation")
		}
		return c.Next()
	}
}

func hasRole(c *fiber.Ctx, minRole Role) bool {
	role, _ := c.Locals("role").(Role)
	return roleLevel[role] >= roleLevel[minRole]
}

func callerOf(c *fiber.Ctx) string {
	if caller, ok := c.Locals("caller").(string); ok && caller != "" {
		return caller
	}
	return "unknown"
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
