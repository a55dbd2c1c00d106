package probe

import (
	"strings"
	"time"
)

const (
	// DefaultPostAdRoute is where the product lands after an ad view
	DefaultPostAdRoute = "/ad-success"
	// DefaultDownloadURLKey is the storage key the gate leaves behind for the post-ad page
	DefaultDownloadURLKey = "ad_download_url"
	// DefaultModalSelector matches the gating modal surface
	DefaultModalSelector = `[role="dialog"], [class*="modal"], [class*="Modal"], [class*="Monetization"]`
)

// VideoFormats are the output formats offered by the video converter
var VideoFormats = []string{"mp4", "webm", "avi", "mov", "mkv", "flv", "wmv", "m4v", "3gp", "ogv", "mp3"}

// DefaultHints returns the locator hints observed on the product's tool pages
func DefaultHints() Hints {
	return Hints{
		Consent: []string{
			"reject all",
			"decline all",
			"reject",
			"decline",
			`css:button[id*="cookie"][id*="reject"]`,
			`css:button[id*="cookie"][id*="decline"]`,
			`css:button[class*="cookie"][class*="reject"]`,
			`css:button[class*="cookie"][class*="decline"]`,
			`css:[id*="reject-cookies"]`,
			`css:[id*="decline-cookies"]`,
			`css:.cookie-reject`,
			`css:.cookie-decline`,
		},
		FileInput: []string{
			`css:input[type="file"][accept*="video"]`,
			`css:input[type="file"][id*="video"]`,
			`css:input[type="file"][id*="file"]`,
			`css:input[type="file"]`,
		},
		FormatSelect:      []string{"label:format", "label:output", "css:select"},
		QualitySelect:     []string{"label:quality"},
		CompressionSelect: []string{"label:compression"},
		Trigger:           []string{"convert", "extract"},
		TriggerExclude:    []string{"download"},
		Reset:             []string{"remove", "clear", "reset", `css:button[class*="remove"]`},
		Download:          []string{"download"},
		DownloadExclude:   []string{"convert"},
		Modal:             DefaultModalSelector,
		ViewAd:            []string{"view ad", "watch ad"},
		ViewAdExclude:     []string{"pay"},
		Payment:           []string{"pay $1"},
		ManualAd:          []string{"open ad in new tab"},
	}
}

// DefaultMarkers returns the text markers the product renders per phase
func DefaultMarkers() Markers {
	return Markers{
		Upload:     []string{"uploading", "transferring"},
		Processing: []string{"processing", "converting", "initializing", "extracting"},
		Success:    []string{"conversion completed", "completed successfully", "ready to download", "successfully"},
		Failure:    []string{"conversion failed", "error occurred", "failed to convert"},
	}
}

// DefaultActivity tracks the converter endpoints and ignores the framework's
// hydration and manifest warnings
func DefaultActivity() ActivitySpec {
	return ActivitySpec{
		Requests:      []string{"/convert-video", "/download", "/video-progress"},
		ConsoleIgnore: []string{"hydration", "Manifest"},
	}
}

// DefaultTimeouts returns the bounds used when a tool sets none
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Interval:        500 * time.Millisecond,
		Consent:         3 * time.Second,
		Upload:          60 * time.Second,
		Conversion:      120 * time.Second,
		Reset:           3 * time.Second,
		Modal:           5 * time.Second,
		Redirect:        time.Second,
		ModalDismiss:    2 * time.Second,
		DownloadRestore: 2 * time.Second,
		Gate:            15 * time.Second,
		Settle:          150 * time.Millisecond,
	}
}

// DefaultVideoConverter describes the video converter page under baseURL
func DefaultVideoConverter(baseURL string) Tool {
	return Tool{
		ID:   "video-converter",
		Name: "Universal Video Converter",
		URL:  strings.TrimRight(baseURL, "/") + "/tools/video-converter",
		Fixture: FixtureSpec{
			Candidates: []string{
				"test-files/test-video.mp4",
				"trevnoctilla-backend/test_output.mp4",
				"test-video.mp4",
			},
			Accept: "video/",
		},
		Combos: []FormatCombo{
			{Format: "mp4", Quality: "85", Compression: "medium"},
			{Format: "webm", Quality: "75", Compression: "web"},
			{Format: "mp3", Quality: "95", Compression: "none"},
		},
		Gate: GateSpec{Enabled: true},
		StaticChecks: []StaticCheck{
			{Name: "OutputFormats", Kind: CheckSelectOptions, Hints: []string{"label:format", "css:select"}, Expect: VideoFormats},
			{Name: "QualityLevels", Kind: CheckSelectOptions, Hints: []string{"label:quality"}, Expect: []string{"95", "85", "75", "60", "40"}},
			{Name: "CompressionLevels", Kind: CheckSelectOptions, Hints: []string{"label:compression"}, Expect: []string{"none", "light", "medium", "heavy", "web"}},
			{Name: "Heading", Kind: CheckTextPresent, Expect: []string{"Universal Video Converter"}},
			{Name: "ConvertControl", Kind: CheckControlPresent, Hints: []string{"convert to", "extract audio to"}},
		},
	}
}
