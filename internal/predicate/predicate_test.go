package predicate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevnoctilla/toolprobe/internal/predicate"
	"github.com/trevnoctilla/toolprobe/internal/target"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

func snap(text, body string) target.Snapshot {
	return target.Snapshot{URL: "http://localhost:3000/tools/video-converter", Text: text, HTML: "<html><body>" + body + "</body></html>"}
}

func set() predicate.Set {
	return predicate.NewSet(probe.Tool{ID: "video-converter"})
}

func TestProgress(t *testing.T) {
	tests := []struct {
		text string
		want int
		ok   bool
	}{
		{"Uploading 42%", 42, true},
		{"step 1: 10 % then 85%", 85, true},
		{"500% faster", 0, false},
		{"no numbers here", 0, false},
		{"100%", 100, true},
	}
	for _, tt := range tests {
		got, ok := predicate.Progress(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestCombinators(t *testing.T) {
	yes := func(target.Snapshot) (bool, error) { return true, nil }
	no := func(target.Snapshot) (bool, error) { return false, nil }
	boom := func(target.Snapshot) (bool, error) { panic("boom") }
	s := snap("", "")

	ok, _ := predicate.Any(no, yes)(s)
	assert.True(t, ok)
	ok, _ = predicate.All(yes, no)(s)
	assert.False(t, ok)
	ok, _ = predicate.Not(no)(s)
	assert.True(t, ok)

	ok, err := predicate.Eval(boom, s)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "panicked")

	ok, err = predicate.Not(boom)(s)
	assert.False(t, ok, "an erroring predicate never counts as satisfied, even negated")
	assert.Error(t, err)
}

func TestTextContainsIsCaseInsensitive(t *testing.T) {
	ok, _ := predicate.TextContains("conversion completed")(snap("Conversion Completed!", ""))
	assert.True(t, ok)
	ok, _ = predicate.TextContains("")(snap("anything", ""))
	assert.False(t, ok)
}

func TestAtRoute(t *testing.T) {
	at := predicate.AtRoute("/ad-success")
	ok, _ := at(target.Snapshot{URL: "http://localhost:3000/ad-success?x=1"})
	assert.True(t, ok)
	ok, _ = at(target.Snapshot{URL: "http://localhost:3000/en/ad-success/"})
	assert.True(t, ok)
	ok, _ = at(target.Snapshot{URL: "http://localhost:3000/tools/video-converter"})
	assert.False(t, ok)
}

func TestUploadPhaseDone(t *testing.T) {
	done := set().UploadPhaseDone()

	ok, _ := done(snap("Uploading video 35%", ""))
	assert.False(t, ok, "upload marker still visible")

	ok, _ = done(snap("Converting 12%", ""))
	assert.True(t, ok)

	ok, _ = done(snap("Processing your file", ""))
	assert.True(t, ok)

	ok, _ = done(snap("Conversion failed: codec error", ""))
	assert.True(t, ok, "a terminal failure also ends the upload phase")

	ok, _ = done(snap("Choose a file", `<input type="file">`))
	assert.False(t, ok)
}

func TestConversionComplete(t *testing.T) {
	complete := set().ConversionComplete()

	ok, _ := complete(snap("Conversion completed 100%", ""))
	assert.True(t, ok)

	ok, _ = complete(snap("Conversion completed 90%", ""))
	assert.False(t, ok, "success marker needs progress at 100")

	ok, _ = complete(snap("Result", `<button>Download MP4</button>`))
	assert.True(t, ok, "a download control alone is enough")

	ok, _ = complete(snap("Result", `<button disabled>Download MP4</button>`))
	assert.False(t, ok)

	ok, _ = complete(snap("", `<button>Convert and download</button>`))
	assert.False(t, ok, "convert buttons are excluded")
}

func TestConversionFailed(t *testing.T) {
	ok, _ := set().ConversionFailed()(snap("An error occurred while converting", ""))
	assert.True(t, ok)
}

func TestModalPredicates(t *testing.T) {
	s := set()
	body := `<div role="dialog"><p>Watch a short ad or Pay $1 to download</p><a>Open ad in new tab</a></div>`

	ok, _ := s.ModalPresent()(snap("", body))
	assert.True(t, ok)
	ok, _ = s.ModalAbsent()(snap("", body))
	assert.False(t, ok)
	ok, _ = s.ModalAbsent()(snap("", "<p>done</p>"))
	assert.True(t, ok)

	ok, _ = s.ModalMentions("pay $1")(snap("", body))
	assert.True(t, ok)
	ok, _ = s.ModalMentions("open ad in new tab")(snap("", body))
	assert.True(t, ok)
	ok, _ = s.ModalMentions("subscribe")(snap("", body))
	assert.False(t, ok)

	ok, _ = s.ModalPresent()(snap("", `<div class="MonetizationModal">x</div>`))
	assert.True(t, ok)
}

func TestConsentPresent(t *testing.T) {
	consent := set().ConsentPresent()

	ok, _ := consent(snap("", `<div><button>Reject all</button><button>Accept</button></div>`))
	assert.True(t, ok)

	ok, _ = consent(snap("", `<button id="cookie-reject-btn">No thanks</button>`))
	assert.True(t, ok)

	ok, _ = consent(snap("", `<button>Convert</button>`))
	assert.False(t, ok)
}

func TestFileInputPresent(t *testing.T) {
	ok, _ := set().FileInputPresent()(snap("", `<input type="file" accept="video/*">`))
	assert.True(t, ok)
	ok, _ = set().FileInputPresent()(snap("", `<p>converted</p>`))
	assert.False(t, ok)
}

func TestSelectOptions(t *testing.T) {
	body := `
<label for="fmt">Output Format</label>
<select id="fmt"><option value="mp4">MP4</option><option value="webm">WebM</option></select>
<label>Quality <select><option>95</option><option>85</option></select></label>`
	s := snap("", body)

	offered, found, err := predicate.SelectOptions(s, []string{"label:format"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, predicate.MissingOptions(offered, []string{"mp4", "webm"}))
	assert.Equal(t, []string{"mkv"}, predicate.MissingOptions(offered, []string{"mp4", "mkv"}))

	offered, found, err = predicate.SelectOptions(s, []string{"label:quality"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, predicate.MissingOptions(offered, []string{"95", "85"}))

	_, found, err = predicate.SelectOptions(s, []string{"label:compression"})
	require.NoError(t, err)
	assert.False(t, found)

	ok, _ := predicate.SelectOffers([]string{"css:select#fmt"}, []string{"mp4"})(s)
	assert.True(t, ok)
}

func TestExtractEvidence(t *testing.T) {
	ev := predicate.ExtractEvidence("Original 12.5 MB -> 3.1 MB (75% smaller). Progress 100%")
	assert.Equal(t, []string{"12.5 MB", "3.1 MB"}, ev.Sizes)
	assert.Equal(t, "75%", ev.Reduction)
	assert.True(t, ev.HasProgress)
	assert.Equal(t, 100, ev.Progress)
	assert.False(t, ev.Empty())
	assert.Contains(t, ev.String(), "12.5 MB")

	assert.True(t, predicate.ExtractEvidence("Done").Empty())
}
