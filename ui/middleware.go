package ui

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
)

// setupMiddleware configures Gin middleware
func (s *Server) setupMiddleware() {
	if gin.Mode() != gin.TestMode {
		s.router.Use(gin.Logger())
	}
	s.router.Use(gin.Recovery())

	staticFS, err := fs.Sub(embeddedFiles, "static")
	if err != nil {
		s.logger.Error("static filesystem unavailable", "error", err)
		return
	}
	s.router.StaticFS("/static", http.FS(staticFS))
}

// sessionID reads the session cookie, empty when absent
func sessionID(c *gin.Context) string {
	id, err := c.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return id
}

func setSessionCookie(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, id, 0, "/", "", false, true)
}
