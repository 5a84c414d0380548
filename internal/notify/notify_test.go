package notify

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFanoutAndWithJob(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	n := WithJob(Fanout{a, nil, b}, "job-7")

	n.Publish(Event{Type: EventChapterDownloaded, Index: 1})
	n.Publish(Event{Type: EventChapterFailed, Index: 2})

	for _, r := range []*Recorder{a, b} {
		events := r.Events()
		assert.Len(t, events, 2)
		assert.Equal(t, "job-7", events[0].Job)
		assert.Equal(t, 1, r.Count(EventChapterDownloaded))
		assert.Equal(t, 1, r.Count(EventChapterFailed))
	}
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	l := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	l.Publish(Event{Type: EventChapterDownloaded, Name: "Глава 1", Index: 1, Total: 3})
	l.Publish(Event{Type: EventChapterFailed, Index: 2, Error: "boom"})

	out := buf.String()
	assert.Contains(t, out, "downloaded a chapter")
	assert.Contains(t, out, "Глава 1")
	assert.Contains(t, out, "error while downloading a chapter")
	assert.Contains(t, out, "boom")
}
