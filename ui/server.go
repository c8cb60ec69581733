package ui

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tablefix/app"
	"tablefix/domain/modifier"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html static/*
var embeddedFiles embed.FS

// SessionCookie carries the browser's session ID
const SessionCookie = "tablefix_session"

// Server is the browser UI
type Server struct {
	router    *gin.Engine
	service   *app.ModifierService
	templates *template.Template
	logger    *slog.Logger
	maxUpload int64
}

// NewServer creates the gin engine, parses the embedded templates and
// registers routes
func NewServer(service *app.ModifierService, maxUpload int64, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:    gin.New(),
		service:   service,
		logger:    logger.With("component", "UI"),
		maxUpload: maxUpload,
	}

	if err := s.parseTemplates(); err != nil {
		return nil, err
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) parseTemplates() error {
	funcMap := template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.UTC().Format("2006-01-02 15:04:05")
		},
		"actionLabel": actionLabel,
		"fmtFloat": func(f float64) string {
			return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", f), "0"), ".")
		},
	}

	templatesFS, err := fs.Sub(embeddedFiles, "templates")
	if err != nil {
		return fmt.Errorf("failed to create templates filesystem: %w", err)
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "*.html")
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	s.templates = tmpl
	s.logger.Debug("templates parsed", "templates", tmpl.DefinedTemplates())
	return nil
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.POST("/upload", s.handleUpload)
	s.router.POST("/run", s.handleRun)

	s.router.GET("/download", s.handleDownloadCSV)
	s.router.GET("/download.xlsx", s.handleDownloadXLSX)

	s.router.GET("/log", s.handleLog)
	s.router.GET("/report", s.handleReport)
	s.router.GET("/report.md", s.handleReportMarkdown)

	s.router.POST("/archive", s.handleArchive)
	s.router.GET("/healthz", s.handleHealth)
}

// Handler exposes the router for an http.Server or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func actionLabel(action string) string {
	switch action {
	case modifier.ActionRemoveDuplicates:
		return "Remove duplicates"
	case modifier.ActionApplyRules:
		return "Apply rules"
	case modifier.ActionAddOrDeleteRows:
		return "Add or delete rows"
	default:
		return action
	}
}
