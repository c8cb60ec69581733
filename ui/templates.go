package ui

import (
	"bytes"
	"net/http"

	"tablefix/domain/modifier"
	"tablefix/domain/table"
	"tablefix/internal/profiling"

	"github.com/gin-gonic/gin"
)

// maxPreviewRows caps how many rows the page renders
const maxPreviewRows = 500

// Example parameters shown in the operation form
const (
	rulesExample = `[{"column": "Column1", "condition": "greater_than", "value": 10}]`
	opsExample   = `[{"action": "add", "row_data": {"Column1": 30, "Column2": "d"}}, {"action": "delete", "index": 0}]`
)

type pageData struct {
	FileName  string
	Columns   []string
	Rows      [][]string
	TotalRows int
	Truncated bool

	Profile []profiling.ColumnProfile
	Log     []modifier.LogEntry

	Operation string
	Params    string
	Error     string
	Notice    string

	ArchiveEnabled bool
	RulesExample   string
	OpsExample     string
}

func (s *Server) newPage() *pageData {
	return &pageData{
		Operation:      modifier.ActionRemoveDuplicates,
		ArchiveEnabled: s.service.ArchiveEnabled(),
		RulesExample:   rulesExample,
		OpsExample:     opsExample,
	}
}

func (p *pageData) setTable(fileName string, t *table.Table) {
	p.FileName = fileName
	p.Columns = t.Columns
	p.TotalRows = t.Len()

	n := t.Len()
	if n > maxPreviewRows {
		n = maxPreviewRows
		p.Truncated = true
	}
	p.Rows = make([][]string, n)
	for i := 0; i < n; i++ {
		cells := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = t.Rows[i].Get(c).Text()
		}
		p.Rows[i] = cells
	}
}

// renderTemplate executes a template into a buffer first so a failure can
// still produce a clean 500
func (s *Server) renderTemplate(c *gin.Context, status int, templateName string, data interface{}) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, templateName, data); err != nil {
		s.logger.Error("template rendering failed", "template", templateName, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Template rendering failed"})
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}
