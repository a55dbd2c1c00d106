package api

import (
	"github.com/emicklei/go-restful/v3"

	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// RegisterRoutes registers the run routes
func RegisterRoutes(ws *restful.WebService, handler *RunHandler) {
	ws.Route(ws.GET("/tools").To(handler.ListTools).
		Doc("list catalog tools").
		Returns(200, "OK", []probe.Tool{}))

	ws.Route(ws.GET("/runs").To(handler.ListRuns).
		Doc("latest run of every tool").
		Returns(200, "OK", []probe.TestRun{}))

	ws.Route(ws.GET("/runs/{tool}").To(handler.GetRun).
		Doc("latest run of one tool").
		Param(ws.PathParameter("tool", "tool identifier").DataType("string")).
		Returns(200, "OK", probe.TestRun{}).
		Returns(404, "Not Found", Error{}))

	ws.Route(ws.POST("/runs").To(handler.StartRuns).
		Doc("start runs").
		Reads(StartRequest{}).
		Param(ws.QueryParameter("tool", "tool identifier; omit to run the whole catalog").DataType("string")).
		Returns(202, "Accepted", []probe.TestRun{}).
		Returns(404, "Not Found", Error{}).
		Returns(409, "Conflict", Error{}))

	ws.Route(ws.GET("/feed").To(handler.Feed).
		Doc("websocket stream of run snapshots"))
}
