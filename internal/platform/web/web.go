// Package web renders the server-side HTML pages of the ABG workbench.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

const (
	AppTitle = "RespiraSence-ABG"
	Tagline  = "AI-Powered Blood Gas Interpretation for Modern Medicine"
	Footer   = "Developed by Nuhansa Herath - BEng(Hons) in Biomedical Engineering Final Year Project - London Metropolitan University"
)

//go:embed templates/*.html
var templateFS embed.FS

type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
	FlashWarning FlashKind = "warning"
	FlashInfo    FlashKind = "info"
)

// Flash is a coloured message panel.
type Flash struct {
	Kind    FlashKind
	Message string
}

// Page is the data passed to every template. Data carries the page-specific
// view model.
type Page struct {
	Title         string
	Authenticated bool
	Flashes       []Flash
	Data          interface{}
}

func (p *Page) Add(kind FlashKind, msg string) {
	p.Flashes = append(p.Flashes, Flash{Kind: kind, Message: msg})
}

// Renderer implements echo.Renderer over the embedded templates. Each page
// template is parsed together with the shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

var pageNames = []string{"login.html", "analyze.html", "records.html"}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"appTitle": func() string { return AppTitle },
		"tagline":  func() string { return Tagline },
		"footer":   func() string { return Footer },
	}
	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// MustRenderer panics if the embedded templates do not parse.
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}
