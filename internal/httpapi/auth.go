package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"routine-planner/internal/model"
)

const (
	HeaderActorID    = "X-Actor-ID"
	HeaderActorRole  = "X-Actor-Role"
	HeaderCronSecret = "X-Cron-Secret"

	contextActorKey = "actor"
	tokenIssuer     = "routine-planner"
)

var (
	errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "actor not authenticated")
	errCronSecret   = echo.NewHTTPError(http.StatusUnauthorized, "invalid cron secret")
)

// Claims carries the actor identity: the subject is the user id.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for actor, valid for ttl.
func GenerateToken(secret string, actor model.Actor, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	if actor.ID == "" || !actor.Role.Valid() {
		return "", errors.Errorf("invalid actor %q with role %q", actor.ID, actor.Role)
	}
	now := time.Now()
	claims := &Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return signed, nil
}

func parseToken(secret, raw string) (model.Actor, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return model.Actor{}, err
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return model.Actor{}, errors.New("token has no usable subject or role")
	}
	return model.Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// authMiddleware resolves the calling actor and stores it in the echo context.
func authMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var actor model.Actor
			if secret != "" {
				raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
				if !ok || raw == "" {
					return errUnauthorized
				}
				parsed, err := parseToken(secret, strings.TrimSpace(raw))
				if err != nil {
					return errUnauthorized.WithInternal(err)
				}
				actor = parsed
			} else {
				actor = model.Actor{
					ID:   strings.TrimSpace(c.Request().Header.Get(HeaderActorID)),
					Role: model.Role(strings.ToLower(strings.TrimSpace(c.Request().Header.Get(HeaderActorRole)))),
				}
				if actor.ID == "" || !actor.Role.Valid() {
					return errUnauthorized
				}
			}
			c.Set(contextActorKey, actor)
			return next(c)
		}
	}
}

func actorFrom(c echo.Context) (model.Actor, error) {
	if actor, ok := c.Get(contextActorKey).(model.Actor); ok {
		return actor, nil
	}
	return model.Actor{}, errUnauthorized
}

// cronMiddleware guards the job entrypoints. An empty secret leaves them open.
func cronMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return next(c)
			}
			got := c.Request().Header.Get(HeaderCronSecret)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return errCronSecret
			}
			return next(c)
		}
	}
}
