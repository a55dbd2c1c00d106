package target_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevnoctilla/toolprobe/internal/target"
)

func TestActivityLogKeepsOnlyErrors(t *testing.T) {
	var log target.ActivityLog
	log.AddConsole("log", "rendered 3 options")
	log.AddConsole("warning", "Warning: Each child in a list should have a unique key")
	log.AddConsole("error", "Failed to load resource: 404")
	log.AddConsole("log", "TypeError: x is undefined")

	a := log.Drain()

	require.Len(t, a.Console, 2)
	assert.Equal(t, "Failed to load resource: 404", a.Console[0].Text)
	assert.Equal(t, "TypeError: x is undefined", a.Console[1].Text)
	assert.Empty(t, log.Drain().Console, "drain empties the log")
}

func TestActivityErrorsSkipsIgnored(t *testing.T) {
	a := target.Activity{Console: []target.ConsoleEntry{
		{Level: "error", Text: "Warning: Expected server HTML to contain a matching <div> (hydration)"},
		{Level: "error", Text: "Manifest: Line: 1, column: 1, Syntax error."},
		{Level: "error", Text: "Uncaught TypeError: cannot read properties of null"},
	}}

	errs := a.Errors([]string{"hydration", "Manifest"})

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Text, "Uncaught TypeError")
	assert.Len(t, a.Errors(nil), 3)
}

func TestActivityMatchingAndDescribe(t *testing.T) {
	a := target.Activity{Requests: []target.RequestEntry{
		{Method: "POST", URL: "https://tools.test/api/convert-video"},
		{Method: "GET", URL: "https://tools.test/_next/static/chunks/main.js"},
		{Method: "GET", URL: "https://tools.test/api/video-progress/job-1?t=1"},
		{Method: "GET", URL: "https://tools.test/api/video-progress/job-1?t=2"},
		{Method: "GET", URL: "https://tools.test/download/result.mp4"},
	}}

	reqs := a.Matching([]string{"/convert-video", "/download", "/video-progress"})

	require.Len(t, reqs, 4)
	assert.Equal(t, "POST /api/convert-video, GET /api/video-progress/job-1 x2, GET /download/result.mp4",
		target.DescribeRequests(reqs))
	assert.Empty(t, target.DescribeRequests(nil))
}

func TestActivityLogDropsPastLimit(t *testing.T) {
	var log target.ActivityLog
	for i := 0; i < 510; i++ {
		log.AddRequest("GET", fmt.Sprintf("https://tools.test/api/video-progress/%d", i))
	}

	a := log.Drain()

	assert.Len(t, a.Requests, 500)
	assert.Equal(t, 10, a.Dropped)
}
