package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/respirasense/abg/internal/platform/auth"
)

// AuditEntry records who touched patient data, when, from where and how.
type AuditEntry struct {
	Subject    string
	Action     string // read, analyze
	Resource   string // analysis, records, guidance
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries in addition to the structured log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every access to the analysis form, the results log and the
// JSON API as a "phi_access" event. Patient names are never logged.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)
			if err != nil {
				// Write the error response first so the audited status is final.
				c.Error(err)
			}

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
				Subject:    auth.SubjectFromContext(c),
				Action:     auditAction(req.Method),
				Resource:   auditResource(path),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("subject", entry.Subject).
				Str("resource", entry.Resource).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	switch {
	case path == "/analyze", path == "/records":
		return true
	case path == "/api/v1/login":
		return false
	default:
		return strings.HasPrefix(path, "/api/v1/")
	}
}

func auditAction(method string) string {
	if method == http.MethodPost {
		return "analyze"
	}
	return "read"
}

// auditResource names the resource from the last path segment:
//   - /analyze, /api/v1/analyses -> analysis
//   - /records, /api/v1/records  -> records
func auditResource(path string) string {
	seg := path[strings.LastIndex(path, "/")+1:]
	switch seg {
	case "analyze", "analyses":
		return "analysis"
	case "":
		return "unknown"
	default:
		return seg
	}
}
