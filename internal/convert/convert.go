// Package convert runs one work through the whole pipeline: metadata,
// cover and chapters from the API, EPUB assembly, then the sink.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ranobepub/internal/cover"
	"ranobepub/internal/epub"
	"ranobepub/internal/notify"
	"ranobepub/internal/scraper"
	"ranobepub/pkg/models"
)

// History receives a row for every finished run.
type History interface {
	Record(ctx context.Context, c models.Conversion) (models.Conversion, error)
}

type Converter struct {
	API      *scraper.API
	Sink     Sink
	History  History // nil disables history
	Options  epub.Options
	Notifier notify.Notifier
	Logger   *slog.Logger
}

type Result struct {
	Work     models.Work
	Chapters int
	Failed   []scraper.ChapterFailure
	Path     string
	Bytes    int64
	Duration time.Duration
}

// Run converts the work behind workRef, a site URL or a bare slug.
func (c *Converter) Run(ctx context.Context, workRef string) (*Result, error) {
	start := time.Now()
	n := c.notifier()

	slug, err := scraper.ParseWorkURL(workRef)
	if err != nil {
		return nil, err
	}
	n.Publish(notify.Event{Type: notify.EventRunStarted, Work: slug, At: time.Now().UTC()})

	res, err := c.run(ctx, slug, n)
	if err != nil {
		n.Publish(notify.Event{Type: notify.EventRunFailed, Work: slug, Error: err.Error(), At: time.Now().UTC()})
		return nil, err
	}
	res.Duration = time.Since(start)

	n.Publish(notify.Event{
		Type:  notify.EventRunCompleted,
		Work:  slug,
		Total: res.Chapters,
		Name:  res.Path,
		At:    time.Now().UTC(),
	})
	return res, nil
}

func (c *Converter) run(ctx context.Context, slug string, n notify.Notifier) (*Result, error) {
	logger := c.logger().With("work", slug)

	api := *c.API
	api.Notifier = n

	work, err := api.FetchWork(ctx, slug)
	if err != nil {
		return nil, err
	}
	logger.Info("work info retrieved", "title", work.DisplayName())

	var (
		coverPNG []byte
		acq      *scraper.Acquisition
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u := work.CoverURL()
		if u == "" {
			logger.Warn("work has no cover")
			return nil
		}
		raw, err := api.FetchCover(gctx, u)
		if err != nil {
			return err
		}
		coverPNG, err = cover.ToPNG(raw)
		if err != nil {
			return fmt.Errorf("cover %s: %w", u, err)
		}
		return nil
	})
	g.Go(func() error {
		list, err := api.FetchChapterList(gctx, slug)
		if err != nil {
			return err
		}
		logger.Info("chapter list retrieved", "chapters", len(list))
		acq, err = api.Acquire(gctx, slug, list)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := epub.AssembleWith(c.Options, work, coverPNG, acq.Chapters, &buf); err != nil {
		return nil, err
	}

	path, err := c.sink().Write(ctx, outputName(work, slug), buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("write epub: %w", err)
	}
	logger.Info("epub written", "path", path, "chapters", len(acq.Chapters), "failed", len(acq.Failures))

	res := &Result{
		Work:     work,
		Chapters: len(acq.Chapters),
		Failed:   acq.Failures,
		Path:     path,
		Bytes:    int64(buf.Len()),
	}

	if c.History != nil {
		_, err := c.History.Record(ctx, models.Conversion{
			WorkName: slug,
			Title:    work.DisplayName(),
			Chapters: res.Chapters,
			Failed:   len(res.Failed),
			Path:     path,
			Bytes:    res.Bytes,
		})
		if err != nil {
			// the artifact already exists; a missing history row is not fatal
			logger.Warn("history record failed", "error", err)
		}
	}
	return res, nil
}

func (c *Converter) notifier() notify.Notifier {
	if c.Notifier != nil {
		return c.Notifier
	}
	if c.API != nil && c.API.Notifier != nil {
		return c.API.Notifier
	}
	return notify.Nop{}
}

func (c *Converter) sink() Sink {
	if c.Sink != nil {
		return c.Sink
	}
	return DirSink{Dir: "."}
}

func (c *Converter) logger() *slog.Logger {
	l := c.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", "convert")
}

// outputName is <work name>.epub with path separators replaced.
func outputName(work models.Work, slug string) string {
	name := strings.TrimSpace(work.Name)
	if name == "" {
		name = slug
	}
	name = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
	return name + ".epub"
}
