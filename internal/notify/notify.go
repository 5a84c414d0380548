package notify

import (
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventRunStarted        EventType = "run.started"
	EventChapterDownloaded EventType = "chapter.downloaded"
	EventChapterFailed     EventType = "chapter.failed"
	EventRunCompleted      EventType = "run.completed"
	EventRunFailed         EventType = "run.failed"
)

// Event is one progress message of a conversion run.
type Event struct {
	Type   EventType `json:"type"`
	Job    string    `json:"job,omitempty"`
	Work   string    `json:"work,omitempty"`
	Index  int       `json:"index,omitempty"` // 1-based chapter position
	Total  int       `json:"total,omitempty"`
	Number string    `json:"number,omitempty"`
	Volume string    `json:"volume,omitempty"`
	Name   string    `json:"name,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// Notifier receives progress events. Publish is called from many goroutines
// at once and must not block for long.
type Notifier interface {
	Publish(Event)
}

// Func adapts a function to Notifier.
type Func func(Event)

func (f Func) Publish(e Event) { f(e) }

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// Fanout forwards each event to all notifiers in order.
type Fanout []Notifier

func (f Fanout) Publish(e Event) {
	for _, n := range f {
		if n != nil {
			n.Publish(e)
		}
	}
}

// WithJob stamps every event with the given job id before forwarding it.
func WithJob(n Notifier, job string) Notifier {
	return Func(func(e Event) {
		e.Job = job
		n.Publish(e)
	})
}

// Log writes events to a structured logger, one line per event.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Publish(e Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch e.Type {
	case EventChapterDownloaded:
		logger.Info("downloaded a chapter", "name", e.Name, "volume", e.Volume, "number", e.Number, "index", e.Index, "total", e.Total)
	case EventChapterFailed:
		logger.Warn("error while downloading a chapter", "index", e.Index, "volume", e.Volume, "number", e.Number, "error", e.Error)
	case EventRunStarted:
		logger.Info("conversion started", "work", e.Work)
	case EventRunCompleted:
		logger.Info("conversion finished", "work", e.Work, "chapters", e.Total)
	case EventRunFailed:
		logger.Error("conversion failed", "work", e.Work, "error", e.Error)
	default:
		logger.Info("progress", "type", string(e.Type), "work", e.Work)
	}
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
