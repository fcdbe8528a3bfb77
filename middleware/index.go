package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cinema_booking/constants"
	"cinema_booking/model"
	"cinema_booking/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	LocalCustomerID = "customerId"
	LocalStaff      = "staff"
)

func bearerToken(c *fiber.Ctx) string {
	if token := c.Cookies("access_token"); token != "" {
		return token
	}
	auth := c.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func parseClaims(tokenString string, secret []byte) (model.TokenClaim, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return model.TokenClaim{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return model.TokenClaim{}, errors.New("invalid claims")
	}

	var out model.TokenClaim
	if id, ok := claims["customerId"].(float64); ok && id > 0 {
		out.CustomerId = uint(id)
	}
	if id, ok := claims["accountId"].(float64); ok && id > 0 {
		out.AccountId = uint(id)
	}
	out.Username, _ = claims["username"].(string)
	out.Role, _ = claims["role"].(string)
	if out.CustomerId == 0 && out.Role == "" {
		return model.TokenClaim{}, errors.New("token carries no identity")
	}
	return out, nil
}

func setLocals(c *fiber.Ctx, claim model.TokenClaim) {
	c.Locals(LocalCustomerID, claim.CustomerId)
	c.Locals(LocalStaff, claim.Role == constants.ROLE_STAFF || claim.Role == constants.ROLE_ADMIN)
}

// Protected rejects requests without a valid access token.
func Protected(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.MISSING_TOKEN, nil)
		}
		claim, err := parseClaims(token, key)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.INVALID_TOKEN, nil)
		}
		setLocals(c, claim)
		return c.Next()
	}
}

// OptionalJWT treats a missing or bad token as a guest.
func OptionalJWT(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		c.Locals(LocalCustomerID, uint(0))
		c.Locals(LocalStaff, false)
		if token := bearerToken(c); token != "" {
			if claim, err := parseClaims(token, key); err == nil {
				setLocals(c, claim)
			}
		}
		return c.Next()
	}
}

// RequireStaff must run after Protected.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if staff, _ := c.Locals(LocalStaff).(bool); !staff {
			return utils.ErrorResponse(c, fiber.StatusForbidden, constants.NOT_STAFF, nil)
		}
		return c.Next()
	}
}

// RequireCustomer rejects staff-only tokens on customer routes.
func RequireCustomer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, _ := c.Locals(LocalCustomerID).(uint)
		staff, _ := c.Locals(LocalStaff).(bool)
		if id == 0 && !staff {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.MISSING_TOKEN, nil)
		}
		return c.Next()
	}
}

func GenerateAccessToken(secret string, claim model.TokenClaim, ttl time.Duration) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims["customerId"] = claim.CustomerId
	claims["accountId"] = claim.AccountId
	claims["username"] = claim.Username
	claims["role"] = claim.Role
	claims["exp"] = time.Now().Add(ttl).Unix()

	return token.SignedString([]byte(secret))
}
