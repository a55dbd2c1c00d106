package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/emicklei/go-restful/v3"

	"github.com/trevnoctilla/toolprobe/internal/run/service"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

var log = logger.New()

// StartRequest is the body of POST /runs; an empty ToolID starts every tool
type StartRequest struct {
	ToolID string `json:"toolId,omitempty"`
}

// Error is the JSON error body
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunHandler handles HTTP requests for tool runs
type RunHandler struct {
	service *service.RunService
	feed    http.Handler
}

// NewRunHandler creates a new RunHandler; feed serves the websocket stream
func NewRunHandler(service *service.RunService, feed http.Handler) *RunHandler {
	return &RunHandler{service: service, feed: feed}
}

// ListTools handles GET /tools
func (h *RunHandler) ListTools(req *restful.Request, resp *restful.Response) {
	resp.WriteAsJson(h.service.Tools())
}

// ListRuns handles GET /runs
func (h *RunHandler) ListRuns(req *restful.Request, resp *restful.Response) {
	resp.WriteAsJson(h.service.Runs())
}

// GetRun handles GET /runs/{tool}
func (h *RunHandler) GetRun(req *restful.Request, resp *restful.Response) {
	toolID := req.PathParameter("tool")
	run, err := h.service.Latest(toolID)
	if err != nil {
		writeRunError(resp, err)
		return
	}
	resp.WriteAsJson(run)
}

// StartRuns handles POST /runs
func (h *RunHandler) StartRuns(req *restful.Request, resp *restful.Response) {
	var body StartRequest
	if req.Request.ContentLength > 0 {
		if err := req.ReadEntity(&body); err != nil {
			resp.WriteHeaderAndJson(http.StatusBadRequest, Error{Code: "INVALID_REQUEST", Message: fmt.Sprintf("Invalid request body: %v", err)}, restful.MIME_JSON)
			return
		}
	}
	if body.ToolID == "" {
		body.ToolID = req.QueryParameter("tool")
	}

	if body.ToolID == "" {
		runs := h.service.StartAll()
		log.Info("Started %d runs", len(runs))
		resp.WriteHeaderAndJson(http.StatusAccepted, runs, restful.MIME_JSON)
		return
	}

	run, err := h.service.Start(body.ToolID)
	if err != nil {
		writeRunError(resp, err)
		return
	}
	resp.WriteHeaderAndJson(http.StatusAccepted, []probe.TestRun{run}, restful.MIME_JSON)
}

// Feed handles GET /feed by upgrading to a websocket
func (h *RunHandler) Feed(req *restful.Request, resp *restful.Response) {
	h.feed.ServeHTTP(resp.ResponseWriter, req.Request)
}

func writeRunError(resp *restful.Response, err error) {
	switch {
	case errors.Is(err, service.ErrToolNotFound):
		resp.WriteHeaderAndJson(http.StatusNotFound, Error{Code: "NOT_FOUND", Message: err.Error()}, restful.MIME_JSON)
	case errors.Is(err, service.ErrRunInProgress):
		resp.WriteHeaderAndJson(http.StatusConflict, Error{Code: "CONFLICT", Message: err.Error()}, restful.MIME_JSON)
	case errors.Is(err, service.ErrClosed):
		resp.WriteHeaderAndJson(http.StatusServiceUnavailable, Error{Code: "UNAVAILABLE", Message: err.Error()}, restful.MIME_JSON)
	default:
		log.Error("Run request failed: %v", err)
		resp.WriteHeaderAndJson(http.StatusInternalServerError, Error{Code: "INTERNAL_ERROR", Message: err.Error()}, restful.MIME_JSON)
	}
}
