package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	restful "github.com/emicklei/go-restful/v3"
	"github.com/spf13/cobra"

	artifactApi "github.com/trevnoctilla/toolprobe/internal/artifact/api"
	"github.com/trevnoctilla/toolprobe/internal/common"
	"github.com/trevnoctilla/toolprobe/internal/cron"
	miscApi "github.com/trevnoctilla/toolprobe/internal/misc/api"
	miscService "github.com/trevnoctilla/toolprobe/internal/misc/service"
	runApi "github.com/trevnoctilla/toolprobe/internal/run/api"
	"github.com/trevnoctilla/toolprobe/pkg/format"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run API and live feed, running the catalog on schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(logger.New())
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port")
	serveCmd.Flags().String("schedule", "", "cron spec for running the whole catalog")
	_ = v().BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = v().BindPFlag("schedule.runs", serveCmd.Flags().Lookup("schedule"))
	rootCmd.AddCommand(serveCmd)
}

func serve(log *logger.Logger) error {
	ctx := context.Background()
	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	cfg := a.cfg

	log.Info("Artifacts kept for %s under %s",
		common.FormatDurationConcise(cfg.Schedule.ArtifactMaxAge), cfg.Artifact.Dir)

	cronManager := cron.NewManager(log, cron.Schedule{
		Runs:            cfg.Schedule.Runs,
		ArtifactReclaim: cfg.Schedule.ArtifactReclaim,
	}, a.runs, a.artifacts)
	if err := cronManager.Start(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	defer cronManager.Stop()

	// Initialize API handlers
	runHandler := runApi.NewRunHandler(a.runs, a.hub)
	artifactHandler := artifactApi.NewArtifactHandler(a.artifacts)
	miscHandler := miscApi.NewMiscHandler(miscService.New(a.driver.Name(), len(a.catalog.Tools)))

	container := restful.NewContainer()
	ws := new(restful.WebService)
	ws.Path("/api/v1").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	runApi.RegisterRoutes(ws, runHandler)
	artifactApi.RegisterRoutes(ws, artifactHandler)
	miscApi.RegisterRoutes(ws, miscHandler)
	container.Add(ws)

	endpoints := make([]format.APIEndpoint, 0, len(ws.Routes()))
	for _, route := range ws.Routes() {
		endpoints = append(endpoints, format.APIEndpoint{
			Method:      route.Method,
			Path:        route.Path,
			Description: route.Doc,
		})
	}
	format.LogAPIEndpoints(log, endpoints)

	cors := restful.CrossOriginResourceSharing{
		AllowedHeaders: []string{"Content-Type", "Accept"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedDomains: []string{"*"},
		Container:      container,
	}
	container.Filter(cors.Filter)
	container.Filter(requestLogger(log))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting server on %s", addr)
	log.Info("Accessible URLs:")
	for _, u := range common.AccessibleURLs(cfg.Server.Port) {
		log.Info("  %s", u)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{
		Addr:    addr,
		Handler: container,
	}
	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
	case err := <-errChan:
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}
	log.Info("Server exited properly")
	return nil
}

func requestLogger(log *logger.Logger) restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		url := req.Request.URL.Path
		if req.Request.URL.RawQuery != "" {
			url += "?" + req.Request.URL.RawQuery
		}
		log.Info("%s %s %s", req.Request.Method, url, req.Request.Proto)

		if log.IsDebugEnabled() && len(req.Request.Header) > 0 {
			headers := make([]string, 0, len(req.Request.Header))
			for name, values := range req.Request.Header {
				headers = append(headers, fmt.Sprintf("%s: %s", name, values[0]))
			}
			log.Debug("Headers: %s", strings.Join(headers, ", "))
		}

		chain.ProcessFilter(req, resp)
		log.Debug("Response status: %d", resp.StatusCode())
	}
}
