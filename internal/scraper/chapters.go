package scraper

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ranobepub/internal/envelope"
	"ranobepub/internal/notify"
	"ranobepub/pkg/models"
)

// ChapterFailure describes a chapter that was dropped from the output.
type ChapterFailure struct {
	Index      int // position in the descriptor list, 0-based
	Descriptor models.ChapterDescriptor
	Err        error
}

func (f ChapterFailure) Error() string {
	return fmt.Sprintf("chapter #%d (volume %s, number %s): %v",
		f.Index+1, f.Descriptor.Volume, f.Descriptor.Number, f.Err)
}

func (f ChapterFailure) Unwrap() error {
	return f.Err
}

// Acquisition is the outcome of fetching every chapter of a work.
type Acquisition struct {
	Chapters []models.Chapter // in descriptor order, failed ones omitted
	Failures []ChapterFailure // in descriptor order
}

// FetchChapters downloads and normalizes all chapters concurrently and
// returns the ones that succeeded in descriptor order. A chapter that cannot
// be fetched or decoded is logged and skipped. The error is non-nil only if
// ctx ends before every chapter settled.
func (a *API) FetchChapters(ctx context.Context, workID string, descriptors []models.ChapterDescriptor) ([]models.Chapter, error) {
	acq, err := a.Acquire(ctx, workID, descriptors)
	if err != nil {
		return nil, err
	}
	return acq.Chapters, nil
}

// slot holds the result of one descriptor. Each task writes only its own
// slot; slots are read after all tasks finished.
type slot struct {
	chapter models.Chapter
	err     error
}

// Acquire is FetchChapters with the per-chapter failures reported.
func (a *API) Acquire(ctx context.Context, workID string, descriptors []models.ChapterDescriptor) (*Acquisition, error) {
	slots := make([]slot, len(descriptors))
	total := len(descriptors)
	logger := a.logger()
	notifier := a.notifier()

	// a plain group: one chapter failing must not cancel the others
	var g errgroup.Group
	if a.MaxConcurrency > 0 {
		g.SetLimit(a.MaxConcurrency)
	}

	for i, d := range descriptors {
		g.Go(func() error {
			ch, err := a.fetchChapter(ctx, workID, d)
			slots[i] = slot{chapter: ch, err: err}

			ev := notify.Event{
				Work:   workID,
				Index:  i + 1,
				Total:  total,
				Number: d.Number,
				Volume: d.Volume,
				At:     time.Now().UTC(),
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("chapter dropped",
					"index", i+1,
					"volume", d.Volume,
					"number", d.Number,
					"error", err,
				)
				ev.Type = notify.EventChapterFailed
				ev.Error = err.Error()
			} else {
				ev.Type = notify.EventChapterDownloaded
				ev.Name = ch.Name
			}
			notifier.Publish(ev)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("chapters %s: %w", workID, err)
	}

	acq := &Acquisition{Chapters: make([]models.Chapter, 0, total)}
	for i, s := range slots {
		if s.err != nil {
			acq.Failures = append(acq.Failures, ChapterFailure{Index: i, Descriptor: descriptors[i], Err: s.err})
			continue
		}
		acq.Chapters = append(acq.Chapters, s.chapter)
	}
	return acq, nil
}

func (a *API) fetchChapter(ctx context.Context, workID string, d models.ChapterDescriptor) (models.Chapter, error) {
	body, err := a.Client.FetchUntilSuccess(ctx, a.ChapterURL(workID, d))
	if err != nil {
		return models.Chapter{}, err
	}
	return envelope.NormalizeWith[models.Chapter](a.logger(), body)
}
