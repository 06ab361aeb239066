package abg

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/respirasense/abg/internal/platform/auth"
	"github.com/respirasense/abg/internal/platform/classifier"
	"github.com/respirasense/abg/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the form pages on e behind the login redirect and,
// when api is non-nil, the JSON endpoints on api. The caller protects api.
func (h *Handler) RegisterRoutes(e *echo.Echo, api *echo.Group) {
	requireLogin := auth.RequireAuthenticated("/login")
	e.GET("/", h.Home)
	e.GET("/analyze", h.AnalyzePage, requireLogin)
	e.POST("/analyze", h.SubmitAnalysis, requireLogin)
	e.GET("/records", h.RecordsPage, requireLogin)

	if api != nil {
		api.POST("/analyses", h.CreateAnalysis)
		api.GET("/records", h.ListRecords)
		api.GET("/guidance", h.GetGuidance)
	}
}

// CreateAnalysis analyses a JSON sample. Omitted readings take the form
// defaults; the patient name is required.
func (h *Handler) CreateAnalysis(c echo.Context) error {
	sample := DefaultSample()
	if err := c.Bind(&sample); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	res, err := h.svc.Analyze(ctx, auth.SessionFromContext(ctx), sample)
	if err != nil {
		return analysisError(c, res, err)
	}
	return c.JSON(http.StatusCreated, res)
}

type persistenceFailure struct {
	Error  string  `json:"error"`
	Result *Result `json:"result"`
}

func analysisError(c echo.Context, res *Result, err error) error {
	var verr *ValidationError
	var ierr *InferenceError
	var perr *PersistenceError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Message)
	case errors.Is(err, auth.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.As(err, &ierr):
		if errors.Is(err, classifier.ErrUpstream) {
			return echo.NewHTTPError(http.StatusBadGateway, "inference endpoint unavailable")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "classification failed")
	case errors.As(err, &perr):
		return c.JSON(http.StatusInternalServerError, persistenceFailure{
			Error:  "result was computed but could not be saved",
			Result: res,
		})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) ListRecords(c echo.Context) error {
	p := pagination.FromContext(c)
	records, total, err := h.svc.Records(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read results log")
	}
	if records == nil {
		records = []Record{}
	}
	resp := pagination.NewResponse(records, total, p.Limit, p.Offset)
	resp.Links = p.Links("/api/v1/records", total)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetGuidance(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]Guidance{
		"normal":   GuidanceFor(StatusNormal),
		"abnormal": GuidanceFor(StatusAbnormal),
	})
}
