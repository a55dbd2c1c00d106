package api

import (
	"github.com/emicklei/go-restful/v3"

	model "github.com/trevnoctilla/toolprobe/pkg/artifact"
)

// RegisterRoutes registers the artifact routes
func RegisterRoutes(ws *restful.WebService, handler *ArtifactHandler) {
	ws.Route(ws.GET("/runs/{run}/artifacts").To(handler.ListArtifacts).
		Doc("list captures stored for a run").
		Param(ws.PathParameter("run", "run identifier").DataType("string")).
		Returns(200, "OK", []model.Stat{}).
		Returns(500, "Internal Server Error", model.Error{}))

	ws.Route(ws.GET("/artifacts/{id:*}").To(handler.GetArtifact).
		Doc("get a capture").
		Param(ws.PathParameter("id", "artifact identifier, run/name").DataType("string")).
		Notes("Markdown captures are served as text/markdown, screenshots as image/png.").
		Returns(200, "OK", nil).
		Returns(400, "Bad Request", model.Error{}).
		Returns(404, "Not Found", model.Error{}).
		Returns(500, "Internal Server Error", model.Error{}))

	ws.Route(ws.POST("/artifacts").To(handler.ReclaimArtifacts).
		Doc("reclaim old captures").
		Param(ws.QueryParameter("operation", "operation to perform (reclaim)").DataType("string").Required(true)).
		Returns(200, "OK", model.ReclaimResult{}).
		Returns(400, "Bad Request", model.Error{}).
		Returns(500, "Internal Server Error", model.Error{}))
}
