package notify_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevnoctilla/toolprobe/internal/notify"
	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

func finishedRun() probe.TestRun {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	run := probe.NewTestRun("0f8fad5b-d9cb-469f-a165-70867728950e", "video-converter", start)
	run.Outcomes = []probe.TestOutcome{
		probe.Pass("Convert mp4 q85 medium", `clicked "Convert to MP4"`),
		probe.Warn("Upload webm q75 web", "upload: phase timed out after 1m0s"),
		probe.Info("Evidence mp4 q85 medium", "12.5 MB -> 3.1 MB"),
	}
	run.Counts = probe.CountOutcomes(run.Outcomes)
	done := start.Add(95 * time.Second)
	run.CompletedAt = &done
	run.State = probe.StateDone
	return run
}

type recordingSender struct {
	msgs []notify.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	s.msgs = append(s.msgs, msg)
	return s.err
}

func TestRenderDefaults(t *testing.T) {
	r, err := notify.NewRenderer(notify.Templates{})
	require.NoError(t, err)

	msg, err := r.Render(finishedRun(), []string{"qa@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "[toolprobe] video-converter: 1 passed, 1 warnings", msg.Subject)
	assert.Equal(t, []string{"qa@example.com"}, msg.Recipients)
	assert.Contains(t, msg.BodyText, "Automated run 0f8fad5b for video-converter completed.")
	assert.Contains(t, msg.BodyText, "took 1m35s")
	assert.Contains(t, msg.BodyText, "WARN Upload webm q75 web")
	assert.Contains(t, msg.BodyHTML, "<td>Convert mp4 q85 medium</td>")
	assert.Contains(t, msg.BodyHTML, "clicked &#34;Convert to MP4&#34;", "html body is escaped")
}

func TestRenderCustomTemplates(t *testing.T) {
	r, err := notify.NewRenderer(notify.Templates{Subject: `{{ .Run.ToolID | upper }} ok`})
	require.NoError(t, err)

	msg, err := r.Render(finishedRun(), nil)
	require.NoError(t, err)
	assert.Equal(t, "VIDEO-CONVERTER ok", msg.Subject)

	_, err = notify.NewRenderer(notify.Templates{Text: "{{ .Run.ToolID "})
	assert.Error(t, err)
}

func TestCompose(t *testing.T) {
	msg := notify.Message{
		Recipients: []string{"qa@example.com", "ops@example.com"},
		Subject:    "all checks passed",
		BodyText:   "plain body",
		BodyHTML:   "<p>html body</p>",
	}
	raw, err := notify.Compose("probe@example.com", "toolprobe", msg, time.Now())
	require.NoError(t, err)

	r, err := mail.CreateReader(strings.NewReader(string(raw)))
	require.NoError(t, err)
	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "all checks passed", subject)

	to, err := r.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 2)
	assert.Equal(t, "ops@example.com", to[1].Address)

	from, err := r.Header.AddressList("From")
	require.NoError(t, err)
	assert.Equal(t, "toolprobe", from[0].Name)

	assert.Contains(t, string(raw), "plain body")
	assert.Contains(t, string(raw), "<p>html body</p>")
	assert.Contains(t, string(raw), "multipart/alternative")
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingSender{}
	bad := &recordingSender{err: errors.New("relay refused")}

	err := notify.Multi{bad, ok}.Send(context.Background(), notify.Message{Subject: "s"})

	assert.ErrorContains(t, err, "relay refused")
	assert.Len(t, ok.msgs, 1, "a failing sender does not stop the others")
	assert.NoError(t, notify.Multi{ok}.Send(context.Background(), notify.Message{}))
}

func TestDispatcher(t *testing.T) {
	r, err := notify.NewRenderer(notify.Templates{})
	require.NoError(t, err)
	sender := &recordingSender{}
	d := notify.NewDispatcher(r, sender, []string{"qa@example.com"})

	require.NoError(t, d.Notify(context.Background(), finishedRun()))
	require.Len(t, sender.msgs, 1)
	assert.Equal(t, []string{"qa@example.com"}, sender.msgs[0].Recipients)

	sender.err = errors.New("down")
	assert.ErrorContains(t, d.Notify(context.Background(), finishedRun()), "send summary")
}

func TestMailSenderRequiresRecipients(t *testing.T) {
	m := notify.NewMailSender(notify.SMTPConfig{Host: "localhost", Port: 25, From: "probe@example.com"})
	assert.Error(t, m.Send(context.Background(), notify.Message{Subject: "s"}))
}

func TestChatSenderWithoutURLsIsNoop(t *testing.T) {
	assert.NoError(t, notify.NewChatSender().Send(context.Background(), notify.Message{Subject: "s"}))
}
