package api

import (
	"github.com/emicklei/go-restful/v3"

	"github.com/trevnoctilla/toolprobe/internal/misc/model"
)

// RegisterRoutes registers the miscellaneous routes
func RegisterRoutes(ws *restful.WebService, handler *MiscHandler) {
	ws.Route(ws.GET("/version").To(handler.GetVersion).
		Doc("get server version information").
		Returns(200, "OK", model.VersionInfo{}))

	ws.Route(ws.GET("/healthz").To(handler.Healthz).
		Doc("liveness probe").
		Returns(200, "OK", nil))
}
