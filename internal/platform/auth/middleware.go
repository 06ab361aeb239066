package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Claims struct {
	jwt.RegisteredClaims
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
	// TTL of issued tokens. Zero issues tokens without an expiry, matching
	// interactive sessions.
	TTL time.Duration
	// Skipper lets public routes through without a token.
	Skipper func(c echo.Context) bool
}

// IssueToken signs an HS256 token for subject.
func IssueToken(cfg JWTConfig, subject string, now time.Time) (string, error) {
	if len(cfg.SigningKey) == 0 {
		return "", fmt.Errorf("jwt signing key is not configured")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  subject,
			Issuer:   cfg.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if cfg.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(cfg.TTL))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.SigningKey)
}

// JWTMiddleware accepts a bearer token issued by IssueToken and attaches an
// authenticated Session built from its claims.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256"}),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}

			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid || claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			sess := &Session{
				ID:            claims.ID,
				Subject:       claims.Subject,
				Authenticated: true,
			}
			if claims.IssuedAt != nil {
				sess.CreatedAt = claims.IssuedAt.Time
			}
			c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), sess)))
			return next(c)
		}
	}
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

const DefaultCookieName = "abg_session"

// SessionMiddleware loads the cookie session, or starts a new one, and saves
// it after the handler so that a successful login sticks. Anonymous sessions
// that never authenticate are not stored.
func SessionMiddleware(store *SessionStore, cfg CookieConfig) echo.MiddlewareFunc {
	if cfg.Name == "" {
		cfg.Name = DefaultCookieName
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var sess *Session
			known := false
			if cookie, err := c.Cookie(cfg.Name); err == nil && cookie.Value != "" {
				sess, known = store.Get(cookie.Value)
			}
			if !known {
				sess = store.New()
				c.SetCookie(&http.Cookie{
					Name:     cfg.Name,
					Value:    sess.ID,
					Path:     "/",
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), sess)))
			err := next(c)
			if known || sess.Authenticated {
				store.Save(sess)
			}
			return err
		}
	}
}

// RequireAuthenticated rejects requests whose session has not passed the
// gate. With a loginPath it redirects browsers there; otherwise it answers 401.
func RequireAuthenticated(loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := SessionFromContext(c.Request().Context())
			if sess == nil || !sess.Authenticated {
				if loginPath != "" {
					return c.Redirect(http.StatusSeeOther, loginPath)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, ErrUnauthenticated.Error())
			}
			return next(c)
		}
	}
}

// SubjectFromContext returns the authenticated subject, or "".
func SubjectFromContext(c echo.Context) string {
	sess := SessionFromContext(c.Request().Context())
	if sess == nil || !sess.Authenticated {
		return ""
	}
	return sess.Subject
}
