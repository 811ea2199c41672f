package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hachimB/student-assistant/internal/app"
	"github.com/hachimB/student-assistant/internal/chunker"
	"github.com/hachimB/student-assistant/internal/loader"
	"github.com/hachimB/student-assistant/internal/pkg/pdfextract"
	"github.com/hachimB/student-assistant/internal/transport/http/response"
)

const maxUploadSize = 20 << 20 // 20 MB

type DocumentHandler struct {
	ingestService *app.IngestService
	docsDir       string
}

func NewDocumentHandler(ingestService *app.IngestService, docsDir string) *DocumentHandler {
	return &DocumentHandler{ingestService: ingestService, docsDir: docsDir}
}

// Upload accepts a multipart form with "file" (PDF, txt or markdown) and an
// optional "title", extracts the text and ingests it into the index.
func (h *DocumentHandler) Upload(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > maxUploadSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large (max 20MB)")
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
		if title == "" {
			title = "Untitled"
		}
	}
	category := strings.TrimSpace(c.PostForm("category"))
	if category != "" && !loader.ValidCategory(category) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unknown category")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	var result *app.IngestResult
	switch ext := strings.ToLower(filepath.Ext(file.Filename)); ext {
	case ".pdf":
		pages, extractErr := pdfextract.ExtractPages(f)
		if extractErr != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to extract text from PDF: "+extractErr.Error())
			return
		}
		result, err = h.ingestService.IngestPages(c.Request.Context(), file.Filename, title, category, pages)
	case ".txt", ".md":
		raw, readErr := io.ReadAll(io.LimitReader(f, maxUploadSize))
		if readErr != nil {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
			return
		}
		result, err = h.ingestService.IngestContent(c.Request.Context(), file.Filename, title, category, string(raw))
	default:
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only PDF, txt and markdown files are allowed")
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, chunker.ErrEmptyDocument):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "document contains no extractable text")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingest failed: "+err.Error())
		}
		return
	}

	response.OK(c, result)
}

func (h *DocumentHandler) List(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.ingestService.ListDocuments()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}

	response.OK(c, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docID := strings.TrimSpace(c.Param("id"))
	if docID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	if err := h.ingestService.DeleteDocument(c.Request.Context(), docID); err != nil {
		switch {
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_document_id": docID})
}

// Reingest walks the configured documents directory and ingests every
// supported file it finds. Re-running it over unchanged files is a no-op
// thanks to content-derived document and chunk identifiers.
func (h *DocumentHandler) Reingest(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	report, err := h.ingestService.IngestDir(c.Request.Context(), h.docsDir)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "reingest failed: "+err.Error())
		return
	}

	response.OK(c, report)
}

// Categories returns the document taxonomy the index is organized by.
func (h *DocumentHandler) Categories(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	response.OK(c, gin.H{"categories": loader.Categories()})
}
