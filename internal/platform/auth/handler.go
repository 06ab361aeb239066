package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/respirasense/abg/internal/platform/web"
)

// Handler serves the login form and the token endpoint.
type Handler struct {
	gate   *Gate
	jwt    *JWTConfig
	now    func() time.Time
	logger zerolog.Logger
}

// NewHandler creates a Handler. A nil jwtCfg disables the token endpoint.
func NewHandler(gate *Gate, jwtCfg *JWTConfig, logger zerolog.Logger) *Handler {
	return &Handler{gate: gate, jwt: jwtCfg, now: time.Now, logger: logger}
}

// RegisterRoutes mounts the form routes on e and, when api is non-nil and
// tokens are enabled, the token endpoint on api.
func (h *Handler) RegisterRoutes(e *echo.Echo, api *echo.Group) {
	e.GET("/login", h.LoginPage)
	e.POST("/login", h.Login)
	if api != nil && h.jwt != nil {
		api.POST("/login", h.IssueToken)
	}
}

type loginView struct {
	Email string
}

func (h *Handler) LoginPage(c echo.Context) error {
	if SubjectFromContext(c) != "" {
		return c.Redirect(http.StatusSeeOther, "/analyze")
	}
	return c.Render(http.StatusOK, "login.html", &web.Page{Title: "Login", Data: loginView{}})
}

func (h *Handler) Login(c echo.Context) error {
	email := c.FormValue("email")
	password := c.FormValue("password")

	sess := SessionFromContext(c.Request().Context())
	if err := h.gate.Login(sess, email, password); err != nil {
		h.logger.Warn().Str("email", email).Msg("login rejected")
		page := &web.Page{Title: "Login", Data: loginView{Email: email}}
		page.Add(web.FlashError, "Invalid email or password")
		return c.Render(http.StatusUnauthorized, "login.html", page)
	}

	h.logger.Info().Str("email", email).Msg("login succeeded")
	return c.Redirect(http.StatusSeeOther, "/analyze?welcome=1")
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// IssueToken exchanges the configured credential pair for a bearer token.
func (h *Handler) IssueToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if !h.gate.Check(req.Email, req.Password) {
		h.logger.Warn().Str("email", req.Email).Msg("token request rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, ErrAuthentication.Error())
	}

	token, err := IssueToken(*h.jwt, req.Email, h.now())
	if err != nil {
		h.logger.Error().Err(err).Msg("sign token")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.jwt.TTL.Seconds()),
	})
}
