package ui

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"html/template"
	"net/http"

	"tablefix/adapters/excel"
	"tablefix/internal/errors"
	"tablefix/internal/report"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// loadPage fills the page from the caller's session. A missing session or
// an empty one leaves just the upload form.
func (s *Server) loadPage(c *gin.Context, page *pageData) {
	ctx := c.Request.Context()
	id := sessionID(c)

	snap, err := s.service.Snapshot(ctx, id)
	if err != nil {
		return
	}
	page.setTable(snap.FileName, snap.Table)
	page.Log = snap.Log

	if profile, err := s.service.Profile(ctx, id); err == nil {
		page.Profile = profile
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	page := s.newPage()
	s.loadPage(c, page)
	s.renderTemplate(c, http.StatusOK, "index.html", page)
}

func (s *Server) handleUpload(c *gin.Context) {
	// multipart framing gets some headroom; the service enforces the exact limit
	limit := s.maxUpload + 1<<20
	tooLarge := errors.TooLarge(fmt.Sprintf("file exceeds the %d MB upload limit", s.maxUpload/(1024*1024)))
	if c.Request.ContentLength > limit {
		s.renderError(c, tooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			s.renderError(c, tooLarge)
			return
		}
		s.logger.Warn("upload without file", "error", err)
		s.renderError(c, errors.InvalidInput("No file uploaded"))
		return
	}
	defer file.Close()

	snap, err := s.service.Upload(c.Request.Context(), sessionID(c), header.Filename, file)
	if err != nil {
		s.renderError(c, err)
		return
	}

	setSessionCookie(c, snap.SessionID)
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleRun(c *gin.Context) {
	operation := c.PostForm("operation")
	params := c.PostForm("params")

	page := s.newPage()
	page.Operation = operation
	page.Params = params

	_, err := s.service.Run(c.Request.Context(), sessionID(c), operation, params)
	s.loadPage(c, page)
	if err != nil {
		page.Error = err.Error()
		s.renderTemplate(c, errors.HTTPStatus(err), "index.html", page)
		return
	}
	page.Notice = fmt.Sprintf("%s applied.", actionLabel(operation))
	s.renderTemplate(c, http.StatusOK, "index.html", page)
}

func (s *Server) handleDownloadCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.service.ExportCSV(c.Request.Context(), sessionID(c), &buf); err != nil {
		s.renderError(c, err)
		return
	}
	attachment(c, excel.CSVFileName)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) handleDownloadXLSX(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.service.ExportXLSX(c.Request.Context(), sessionID(c), &buf); err != nil {
		s.renderError(c, err)
		return
	}
	attachment(c, excel.XLSXFileName)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *Server) handleLog(c *gin.Context) {
	entries, err := s.service.Log(c.Request.Context(), sessionID(c))
	if err != nil {
		c.JSON(errors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleReport(c *gin.Context) {
	md, err := s.service.Report(c.Request.Context(), sessionID(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	s.renderTemplate(c, http.StatusOK, "report.html", gin.H{
		"Body": template.HTML(report.HTML(md)),
	})
}

func (s *Server) handleReportMarkdown(c *gin.Context) {
	md, err := s.service.Report(c.Request.Context(), sessionID(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	attachment(c, report.FileName)
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", md)
}

func (s *Server) handleArchive(c *gin.Context) {
	page := s.newPage()
	res, err := s.service.Archive(c.Request.Context(), sessionID(c))
	s.loadPage(c, page)
	if err != nil {
		page.Error = err.Error()
		s.renderTemplate(c, errors.HTTPStatus(err), "index.html", page)
		return
	}
	page.Notice = fmt.Sprintf("Export archived to %s", res.Location)
	s.renderTemplate(c, http.StatusOK, "index.html", page)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// renderError shows the index page with an error banner
func (s *Server) renderError(c *gin.Context, err error) {
	page := s.newPage()
	s.loadPage(c, page)
	page.Error = err.Error()
	s.renderTemplate(c, errors.HTTPStatus(err), "index.html", page)
}

func attachment(c *gin.Context, name string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
}
