package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/emicklei/go-restful/v3"

	"github.com/trevnoctilla/toolprobe/internal/artifact/service"
	model "github.com/trevnoctilla/toolprobe/pkg/artifact"
)

// ArtifactHandler serves stored captures
type ArtifactHandler struct {
	service *service.ArtifactService
}

// NewArtifactHandler creates a new ArtifactHandler
func NewArtifactHandler(service *service.ArtifactService) *ArtifactHandler {
	return &ArtifactHandler{service: service}
}

// ListArtifacts handles GET /runs/{run}/artifacts
func (h *ArtifactHandler) ListArtifacts(req *restful.Request, resp *restful.Response) {
	runID := req.PathParameter("run")
	stats, err := h.service.List(req.Request.Context(), runID)
	if err != nil {
		writeArtifactError(resp, http.StatusInternalServerError, "INTERNAL_ERROR", fmt.Sprintf("Error listing artifacts: %v", err))
		return
	}
	resp.WriteAsJson(stats)
}

// GetArtifact handles GET /artifacts/{id}
func (h *ArtifactHandler) GetArtifact(req *restful.Request, resp *restful.Response) {
	id := req.PathParameter("id")
	if id == "" {
		writeArtifactError(resp, http.StatusBadRequest, "INVALID_REQUEST", "Artifact id is required")
		return
	}

	content, err := h.service.Get(req.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeArtifactError(resp, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		writeArtifactError(resp, http.StatusInternalServerError, "INTERNAL_ERROR", fmt.Sprintf("Error getting artifact: %v", err))
		return
	}
	defer content.Reader.Close()

	resp.Header().Set("Content-Type", content.MimeType)
	resp.Header().Set("Content-Length", fmt.Sprintf("%d", content.Size))
	if _, err := io.Copy(resp, content.Reader); err != nil {
		writeArtifactError(resp, http.StatusInternalServerError, "INTERNAL_ERROR", fmt.Sprintf("Error copying artifact: %v", err))
	}
}

// ReclaimArtifacts handles POST /artifacts?operation=reclaim
func (h *ArtifactHandler) ReclaimArtifacts(req *restful.Request, resp *restful.Response) {
	if op := req.QueryParameter("operation"); op != "reclaim" {
		writeArtifactError(resp, http.StatusBadRequest, "INVALID_REQUEST", "Invalid operation")
		return
	}
	result, err := h.service.Reclaim(req.Request.Context())
	if err != nil {
		writeArtifactError(resp, http.StatusInternalServerError, "INTERNAL_ERROR", fmt.Sprintf("Error reclaiming artifacts: %v", err))
		return
	}
	resp.WriteAsJson(result)
}

func writeArtifactError(resp *restful.Response, statusCode int, code, message string) {
	resp.WriteHeaderAndJson(statusCode, model.Error{Code: code, Message: message}, restful.MIME_JSON)
}
