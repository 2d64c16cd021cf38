package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFiles embed.FS

// ParseTemplates parses every page of the universal login UI
func ParseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFiles, "templates/*.html")
}

// render executes name into a buffer first so a template failure can still
// produce a clean 500.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.Err(err).Str("template", name).Msg("failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type errorPageData struct {
	Status      int
	Code        string
	Description string
}

// renderError shows error.html with the status of err.
func (s *Server) renderError(w http.ResponseWriter, err error) {
	httpErr, ok := apperrors.AsHTTPError(err)
	if !ok {
		log.Err(err).Msg("unhandled error")
		httpErr = apperrors.New(http.StatusInternalServerError, apperrors.CodeServerError, "Internal server error")
	}
	s.render(w, httpErr.Status, "error.html", errorPageData{
		Status:      httpErr.Status,
		Code:        httpErr.Code,
		Description: httpErr.Description,
	})
}
