package abg

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/respirasense/abg/internal/platform/auth"
	"github.com/respirasense/abg/internal/platform/classifier"
	"github.com/respirasense/abg/internal/platform/web"
	"github.com/respirasense/abg/pkg/pagination"
)

type fieldView struct {
	Name  string
	Label string
	Value string
	Step  string
}

type resultView struct {
	Status       Status
	Normal       bool
	Summary      string
	Symptoms     []string
	Actions      []string
	Flags        []string
	Confirmation string
	SaveError    string
}

type analyzeView struct {
	Welcome     bool
	PatientName string
	Fields      []fieldView
	Result      *resultView
}

func newAnalyzeView(s Sample) *analyzeView {
	v := &analyzeView{PatientName: s.PatientName}
	for _, p := range Parameters {
		v.Fields = append(v.Fields, fieldView{
			Name:  p.Field,
			Label: p.Label,
			Value: p.Format(p.Value(s)),
			Step:  p.Step,
		})
	}
	return v
}

func newResultView(res *Result) *resultView {
	return &resultView{
		Status:       res.Status,
		Normal:       res.Status == StatusNormal,
		Summary:      res.Guidance.Summary,
		Symptoms:     res.Guidance.Symptoms,
		Actions:      res.Guidance.Actions,
		Flags:        res.Plausibility.Flagged(),
		Confirmation: res.Confirmation,
	}
}

// Home sends visitors to the form or to the login page.
func (h *Handler) Home(c echo.Context) error {
	if auth.SubjectFromContext(c) != "" {
		return c.Redirect(http.StatusSeeOther, "/analyze")
	}
	return c.Redirect(http.StatusSeeOther, "/login")
}

func (h *Handler) AnalyzePage(c echo.Context) error {
	view := newAnalyzeView(DefaultSample())
	page := &web.Page{Title: "Analyze", Authenticated: true, Data: view}
	if c.QueryParam("welcome") == "1" {
		view.Welcome = true
		page.Add(web.FlashSuccess, "Login successful!")
	}
	return c.Render(http.StatusOK, "analyze.html", page)
}

func (h *Handler) SubmitAnalysis(c echo.Context) error {
	sample, err := parseSampleForm(c)
	view := newAnalyzeView(sample)
	page := &web.Page{Title: "Analyze", Authenticated: true, Data: view}
	if err != nil {
		page.Add(web.FlashWarning, "⚠️ "+err.Error())
		return c.Render(http.StatusUnprocessableEntity, "analyze.html", page)
	}

	ctx := c.Request().Context()
	res, err := h.svc.Analyze(ctx, auth.SessionFromContext(ctx), sample)

	var verr *ValidationError
	var perr *PersistenceError
	switch {
	case err == nil:
		view.Result = newResultView(res)
		return c.Render(http.StatusOK, "analyze.html", page)
	case errors.As(err, &verr):
		page.Add(web.FlashWarning, "⚠️ "+verr.Message)
		return c.Render(http.StatusUnprocessableEntity, "analyze.html", page)
	case errors.Is(err, auth.ErrUnauthenticated):
		return c.Redirect(http.StatusSeeOther, "/login")
	case errors.As(err, &perr):
		view.Result = newResultView(res)
		view.Result.SaveError = perr.Err.Error()
		return c.Render(http.StatusInternalServerError, "analyze.html", page)
	default:
		status := http.StatusInternalServerError
		if errors.Is(err, classifier.ErrUpstream) {
			status = http.StatusBadGateway
		}
		page.Add(web.FlashError, "Classification failed. Nothing was saved.")
		return c.Render(status, "analyze.html", page)
	}
}

// parseSampleForm reads the intake form. Readings that are missing or not
// numbers keep their default and produce a ValidationError.
func parseSampleForm(c echo.Context) (Sample, error) {
	s := DefaultSample()
	s.PatientName = c.FormValue("patient_name")

	var firstErr error
	for i, p := range Parameters {
		raw := strings.TrimSpace(c.FormValue(p.Field))
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			if firstErr == nil {
				firstErr = &ValidationError{
					Field:   p.Field,
					Message: fmt.Sprintf("%s must be a number.", classifier.FeatureNames[i]),
				}
			}
			continue
		}
		p.Set(&s, v)
	}
	return s, firstErr
}

type recordsView struct {
	Records    []Record
	Total      int
	Limit      int
	From       int
	To         int
	HasPrev    bool
	HasNext    bool
	PrevOffset int
	NextOffset int
}

func (h *Handler) RecordsPage(c echo.Context) error {
	p := pagination.FromContext(c)
	records, total, err := h.svc.Records(c.Request().Context(), p.Limit, p.Offset)
	page := &web.Page{Title: "Records", Authenticated: true}
	if err != nil {
		page.Add(web.FlashError, "The results log could not be read.")
		page.Data = &recordsView{}
		return c.Render(http.StatusInternalServerError, "records.html", page)
	}

	page.Data = &recordsView{
		Records:    records,
		Total:      total,
		Limit:      p.Limit,
		From:       p.Offset + 1,
		To:         p.Offset + len(records),
		HasPrev:    p.HasPrevious(),
		HasNext:    p.HasNext(total),
		PrevOffset: p.PreviousOffset(),
		NextOffset: p.NextOffset(),
	}
	return c.Render(http.StatusOK, "records.html", page)
}
