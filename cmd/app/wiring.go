package main

import (
	"context"
	"fmt"

	"github.com/trevnoctilla/toolprobe/config"
	artifactService "github.com/trevnoctilla/toolprobe/internal/artifact/service"
	"github.com/trevnoctilla/toolprobe/internal/feed"
	"github.com/trevnoctilla/toolprobe/internal/fixture"
	"github.com/trevnoctilla/toolprobe/internal/notify"
	"github.com/trevnoctilla/toolprobe/internal/result"
	runService "github.com/trevnoctilla/toolprobe/internal/run/service"
	"github.com/trevnoctilla/toolprobe/internal/runtime/docker"
	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/internal/target/cdpdriver"
	"github.com/trevnoctilla/toolprobe/internal/target/pwdriver"
	"github.com/trevnoctilla/toolprobe/internal/tracker"
	"github.com/trevnoctilla/toolprobe/pkg/format"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
)

// app holds the process-wide collaborators shared by serve and run
type app struct {
	cfg       *config.Config
	catalog   *config.Catalog
	driver    target.Driver
	launcher  *docker.Launcher
	artifacts *artifactService.ArtifactService
	hub       *feed.Hub
	runs      *runService.RunService
	log       *logger.Logger
}

func newApp(ctx context.Context, log *logger.Logger) (*app, error) {
	cfg := config.GetInstance()
	a := &app{cfg: cfg, log: log}

	catalog, err := config.LoadCatalog(cfg.Catalog.Path, cfg.Catalog.BaseURL)
	if err != nil {
		return nil, err
	}
	a.catalog = catalog
	log.Info("Loaded %d tools", len(catalog.Tools))

	a.artifacts, err = artifactService.New(cfg.Artifact.Dir, cfg.Schedule.ArtifactMaxAge)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact service: %w", err)
	}

	if a.driver, err = a.buildDriver(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	notifier, err := buildNotifier(cfg.Notify)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.hub = feed.NewHub(tracker.NewInMemoryRunTracker())
	a.runs = runService.New(catalog, runService.Options{
		Driver:      a.driver,
		Fixtures:    fixture.NewSource(cfg.Fixture.BaseDir, cfg.Fixture.TempDir),
		Artifacts:   a.artifacts,
		Feed:        a.hub,
		Notifier:    notifier,
		Concurrency: cfg.Catalog.Concurrency,
	})
	return a, nil
}

func (a *app) buildDriver(ctx context.Context) (target.Driver, error) {
	b := a.cfg.Browser
	endpoint := b.Endpoint

	if b.Launch && endpoint == "" {
		if b.Driver != "playwright" {
			return nil, fmt.Errorf("launching a browser container requires the playwright driver")
		}
		launcher, err := docker.NewLauncher(a.cfg.Docker.Host, b.Image, b.PlaywrightVersion)
		if err != nil {
			return nil, err
		}
		a.launcher = launcher
		if endpoint, err = launcher.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to launch browser container: %w", err)
		}
	}

	a.log.Info("%s", format.FormatDriver(b.Driver, endpoint))
	switch b.Driver {
	case "chromedp":
		return cdpdriver.New(cdpdriver.Options{
			RemoteURL:         endpoint,
			Headless:          b.Headless,
			NavigationTimeout: b.NavigationTimeout,
			ActionTimeout:     b.ActionTimeout,
			ViewportWidth:     b.ViewportWidth,
			ViewportHeight:    b.ViewportHeight,
			UserAgent:         b.UserAgent,
		}), nil
	default:
		d, err := pwdriver.New(pwdriver.Options{
			Endpoint:          endpoint,
			Headless:          b.Headless,
			ConnectRetries:    b.ConnectRetries,
			RetryDelay:        b.RetryDelay,
			NavigationTimeout: b.NavigationTimeout,
			ActionTimeout:     b.ActionTimeout,
			ViewportWidth:     b.ViewportWidth,
			ViewportHeight:    b.ViewportHeight,
			UserAgent:         b.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// buildNotifier sends through every configured transport and falls back to
// the log when none is set
func buildNotifier(cfg config.NotifyConfig) (result.Notifier, error) {
	var senders notify.Multi
	if cfg.SMTP.Host != "" && len(cfg.Recipients) > 0 {
		senders = append(senders, notify.NewMailSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		}))
	}
	if len(cfg.ChatURLs) > 0 {
		senders = append(senders, notify.NewChatSender(cfg.ChatURLs...))
	}
	if len(senders) == 0 {
		senders = append(senders, notify.LogSender{})
	}

	renderer, err := notify.NewRenderer(notify.Templates{
		Subject: cfg.Subject,
		Text:    cfg.TextBody,
		HTML:    cfg.HTMLBody,
	})
	if err != nil {
		return nil, err
	}
	return notify.NewDispatcher(renderer, senders, cfg.Recipients), nil
}

// close releases everything newApp acquired, in reverse order
func (a *app) close(ctx context.Context) {
	if a.runs != nil {
		a.runs.Close()
	}
	if a.driver != nil {
		if err := a.driver.Close(); err != nil {
			a.log.Warn("Failed to close %s driver: %v", a.driver.Name(), err)
		}
	}
	if a.launcher != nil {
		if err := a.launcher.Stop(ctx); err != nil {
			a.log.Warn("%v", err)
		}
	}
}
