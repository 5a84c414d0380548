package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ranobepub/internal/envelope"
	"ranobepub/internal/epub"
	"ranobepub/internal/fetcher"
	"ranobepub/internal/notify"
	"ranobepub/internal/scraper"
	"ranobepub/pkg/models"
)

type upstream struct {
	srv        *httptest.Server
	chapters   map[string]string
	coverBytes []byte
	coverCode  int
}

func jpegCover(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	gin.SetMode(gin.TestMode)
	u := &upstream{
		chapters: map[string]string{
			"1/1": `{"data":{"name":"Первая","number":"1","volume":"1","content":"<p>one</p><p>\u00a0</p>"}}`,
			"1/2": `{"data":{"name":`,
			"1/3": `{"data":{"name":"Третья","number":"3","volume":"1","content":{"type":"doc","content":[]}}}`,
		},
		coverBytes: jpegCover(t),
		coverCode:  http.StatusOK,
	}

	r := gin.New()
	r.GET("/api/manga/:slug", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(`{"data":{"name":"`+c.Param("slug")+
			`","rus_name":"Тестовая работа","cover":{"default":"`+u.srv.URL+`/covers/a.jpg"}}}`))
	})
	r.GET("/api/manga/:slug/chapters", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(
			`{"data":[{"number":"1","volume":"1"},{"number":"2","volume":"1"},{"number":"3","volume":"1"}]}`))
	})
	r.GET("/api/manga/:slug/chapter", func(c *gin.Context) {
		body, ok := u.chapters[c.Query("volume")+"/"+c.Query("number")]
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, "application/json", []byte(body))
	})
	r.GET("/covers/a.jpg", func(c *gin.Context) {
		c.Data(u.coverCode, "image/jpeg", u.coverBytes)
	})

	u.srv = httptest.NewServer(r)
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) converter(t *testing.T, sink Sink) *Converter {
	t.Helper()
	opts := fetcher.DefaultOptions()
	opts.Retry = fetcher.Forever(10 * time.Millisecond)
	client, err := fetcher.New(opts)
	require.NoError(t, err)

	return &Converter{
		API:     scraper.NewAPI(u.srv.URL+"/api/manga", client),
		Sink:    sink,
		Options: epub.DefaultOptions(),
	}
}

type fakeHistory struct {
	rows []models.Conversion
	err  error
}

func (h *fakeHistory) Record(_ context.Context, c models.Conversion) (models.Conversion, error) {
	h.rows = append(h.rows, c)
	return c, h.err
}

func sectionNames(t *testing.T, data []byte) ([]string, map[string]string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	bodies := map[string]string{}
	for _, f := range zr.File {
		if !strings.Contains(f.Name, "_volume_") {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		names = append(names, filepath.Base(f.Name))
		bodies[filepath.Base(f.Name)] = string(b)
	}
	return names, bodies
}

func TestRun_SkipsMalformedChapter(t *testing.T) {
	u := newUpstream(t)
	dir := t.TempDir()
	c := u.converter(t, DirSink{Dir: dir})
	rec := &notify.Recorder{}
	c.Notifier = rec
	hist := &fakeHistory{}
	c.History = hist

	res, err := c.Run(context.Background(), "https://ranobelib.me/ru/book/test-work?section=info")
	require.NoError(t, err)

	assert.Equal(t, "test-work", res.Work.Name)
	assert.Equal(t, 2, res.Chapters)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "2", res.Failed[0].Descriptor.Number)
	assert.True(t, errors.Is(res.Failed[0], envelope.ErrMalformed))
	assert.Equal(t, filepath.Join(dir, "test-work.epub"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.Bytes)

	names, bodies := sectionNames(t, data)
	require.Len(t, names, 2)
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, bodies[names[0]], "Первая")
	assert.NotContains(t, bodies[names[0]], "<p>\u00a0</p>")
	assert.Contains(t, bodies[names[1]], "Третья")

	assert.Equal(t, 1, rec.Count(notify.EventRunStarted))
	assert.Equal(t, 2, rec.Count(notify.EventChapterDownloaded))
	assert.Equal(t, 1, rec.Count(notify.EventChapterFailed))
	assert.Equal(t, 1, rec.Count(notify.EventRunCompleted))

	require.Len(t, hist.rows, 1)
	assert.Equal(t, "Тестовая работа", hist.rows[0].Title)
	assert.Equal(t, 1, hist.rows[0].Failed)
}

func TestRun_CoverFailureIsFatal(t *testing.T) {
	u := newUpstream(t)
	u.coverCode = http.StatusNotFound
	sink := &MemorySink{}
	c := u.converter(t, sink)
	rec := &notify.Recorder{}
	c.Notifier = rec

	_, err := c.Run(context.Background(), "test-work")
	require.Error(t, err)

	var serr *fetcher.StatusError
	assert.ErrorAs(t, err, &serr)
	assert.Nil(t, sink.Data, "no artifact on fatal error")
	assert.Equal(t, 1, rec.Count(notify.EventRunFailed))
}

func TestRun_HistoryErrorNotFatal(t *testing.T) {
	u := newUpstream(t)
	sink := &MemorySink{}
	c := u.converter(t, sink)
	c.History = &fakeHistory{err: errors.New("disk full")}

	res, err := c.Run(context.Background(), "test-work")
	require.NoError(t, err)
	assert.Equal(t, "test-work.epub", res.Path)
	assert.NotEmpty(t, sink.Data)
}

func TestRun_BadReference(t *testing.T) {
	u := newUpstream(t)
	_, err := u.converter(t, &MemorySink{}).Run(context.Background(), "   ")
	assert.Error(t, err)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "a.epub", outputName(models.Work{Name: "a"}, "x"))
	assert.Equal(t, "x.epub", outputName(models.Work{}, "x"))
	assert.Equal(t, "a_b.epub", outputName(models.Work{Name: "a/b"}, "x"))
}
