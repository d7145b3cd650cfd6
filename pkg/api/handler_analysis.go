package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tenderlens/tenderlens/pkg/export"
	"github.com/tenderlens/tenderlens/pkg/services"
)

// createAnalysisHandler handles POST /api/analyze. The multipart form
// carries the documents under "files" and an optional "model" field.
func (s *Server) createAnalysisHandler(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid multipart form: %v", err)})
		return
	}

	files := form.File["files"]
	uploads := make([]services.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("read upload %q: %v", fh.Filename, err)})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("read upload %q: %v", fh.Filename, err)})
			return
		}
		uploads = append(uploads, services.Upload{Filename: fh.Filename, Data: data})
	}

	model := c.PostForm("model")
	detail, err := s.svc.Create(c.Request.Context(), uploads, model)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, detail)
}

// getAnalysisHandler handles GET /api/analyze/:id.
func (s *Server) getAnalysisHandler(c *gin.Context) {
	detail, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// listAnalysesHandler handles GET /api/analyses?limit&offset.
func (s *Server) listAnalysesHandler(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	summaries, err := s.svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": summaries})
}

// cancelHandler handles POST /api/analyze/:id/cancel.
func (s *Server) cancelHandler(c *gin.Context) {
	if err := s.svc.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteHandler handles DELETE /api/analyze/:id.
func (s *Server) deleteHandler(c *gin.Context) {
	if err := s.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// exportHandler handles GET /api/analyze/:id/export?format=pdf|docx.
func (s *Server) exportHandler(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", "pdf"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rendered, err := s.svc.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rendered.Filename))
	c.Data(http.StatusOK, rendered.MediaType, rendered.Data)
}

// documentContentHandler handles
// GET /api/analyze/:id/documents/:filename/content.
func (s *Server) documentContentHandler(c *gin.Context) {
	doc, err := s.svc.DocumentContent(c.Request.Context(), c.Param("id"), c.Param("filename"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"filename":   doc.Filename,
		"content":    doc.Content,
		"page_count": doc.Pages,
		"doc_type":   doc.Type,
	})
}
