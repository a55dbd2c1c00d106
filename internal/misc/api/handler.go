package api

import (
	"net/http"

	"github.com/emicklei/go-restful/v3"

	"github.com/trevnoctilla/toolprobe/internal/misc/service"
)

// MiscHandler handles miscellaneous operations
type MiscHandler struct {
	service *service.MiscService
}

// NewMiscHandler creates a new MiscHandler
func NewMiscHandler(service *service.MiscService) *MiscHandler {
	return &MiscHandler{service: service}
}

// GetVersion handles GET /version request
func (h *MiscHandler) GetVersion(req *restful.Request, resp *restful.Response) {
	resp.WriteHeaderAndJson(http.StatusOK, h.service.GetVersion(), restful.MIME_JSON)
}

// Healthz handles GET /healthz
func (h *MiscHandler) Healthz(req *restful.Request, resp *restful.Response) {
	resp.WriteHeaderAndJson(http.StatusOK, map[string]string{"status": "ok"}, restful.MIME_JSON)
}
