package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"ranobepub/internal/envelope"
	"ranobepub/internal/notify"
	"ranobepub/pkg/models"
)

// DefaultBaseURL is the public RanobeLib/MangaLib API root.
const DefaultBaseURL = "https://api.mangalib.me/api/manga"

// Fetcher is the transport the API talks through. *fetcher.Client
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	FetchUntilSuccess(ctx context.Context, url string) ([]byte, error)
}

// API reads works and chapters from the upstream content API. One API (and
// its Fetcher) is shared by every chapter task of a run.
type API struct {
	BaseURL  string
	Client   Fetcher
	Notifier notify.Notifier
	Logger   *slog.Logger

	// MaxConcurrency bounds in-flight chapter requests; zero or less means
	// every chapter is requested at once.
	MaxConcurrency int
}

func NewAPI(baseURL string, client Fetcher) *API {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &API{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Client:   client,
		Notifier: notify.Nop{},
		Logger:   slog.Default(),
	}
}

func (a *API) WorkURL(workID string) string {
	return a.BaseURL + "/" + url.PathEscape(workID)
}

func (a *API) ChapterListURL(workID string) string {
	return a.WorkURL(workID) + "/chapters"
}

func (a *API) ChapterURL(workID string, d models.ChapterDescriptor) string {
	q := url.Values{}
	q.Set("number", d.Number)
	q.Set("volume", d.Volume)
	return a.WorkURL(workID) + "/chapter?" + q.Encode()
}

// FetchWork loads the work metadata. Any failure here is fatal for a run.
func (a *API) FetchWork(ctx context.Context, workID string) (models.Work, error) {
	body, err := a.Client.Fetch(ctx, a.WorkURL(workID))
	if err != nil {
		return models.Work{}, fmt.Errorf("work %s: %w", workID, err)
	}
	work, err := envelope.NormalizeWith[models.Work](a.logger(), body)
	if err != nil {
		return models.Work{}, fmt.Errorf("work %s: %w", workID, err)
	}
	return work, nil
}

// FetchChapterList loads the descriptors of every chapter in reading order.
func (a *API) FetchChapterList(ctx context.Context, workID string) ([]models.ChapterDescriptor, error) {
	body, err := a.Client.Fetch(ctx, a.ChapterListURL(workID))
	if err != nil {
		return nil, fmt.Errorf("chapter list %s: %w", workID, err)
	}
	list, err := envelope.NormalizeWith[[]models.ChapterDescriptor](a.logger(), body)
	if err != nil {
		return nil, fmt.Errorf("chapter list %s: %w", workID, err)
	}
	return list, nil
}

// FetchCover downloads the raw cover image bytes.
func (a *API) FetchCover(ctx context.Context, coverURL string) ([]byte, error) {
	if strings.TrimSpace(coverURL) == "" {
		return nil, fmt.Errorf("cover: work has no cover url")
	}
	body, err := a.Client.Fetch(ctx, coverURL)
	if err != nil {
		return nil, fmt.Errorf("cover: %w", err)
	}
	return body, nil
}

func (a *API) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default().With("component", "scraper")
	}
	return a.Logger.With("component", "scraper")
}

func (a *API) notifier() notify.Notifier {
	if a.Notifier == nil {
		return notify.Nop{}
	}
	return a.Notifier
}

// ParseWorkURL extracts the work identifier from a work page URL: the last
// segment of its path. Input without a slash is taken as a bare identifier.
// A URL whose path is empty is rejected rather than mistaken for a host name.
func ParseWorkURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("expected a work url or name")
	}

	if !strings.Contains(raw, "/") {
		name := raw
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
		if name == "" || strings.HasSuffix(name, ":") {
			return "", fmt.Errorf("expected a name of the work in %q", raw)
		}
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
		return name, nil
	}

	ref := raw
	if !strings.Contains(ref, "://") && !strings.HasPrefix(ref, "/") {
		// "ranobelib.me/ru/book/x": the first segment is the host
		ref = "https://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse work url %q: %w", raw, err)
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return "", fmt.Errorf("expected a name of the work in the path of %q", raw)
	}
	return path[strings.LastIndex(path, "/")+1:], nil
}
