package epub

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ranobepub/pkg/models"
)

type archive struct {
	order []string
	files map[string][]byte
}

func openArchive(t *testing.T, data []byte) archive {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	a := archive{files: map[string][]byte{}}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		a.order = append(a.order, f.Name)
		a.files[f.Name] = b
	}
	return a
}

// find returns the single entry whose name ends with suffix.
func (a archive) find(t *testing.T, suffix string) []byte {
	t.Helper()
	for _, name := range a.order {
		if strings.HasSuffix(name, suffix) {
			return a.files[name]
		}
	}
	t.Fatalf("no entry ending with %s in %v", suffix, a.order)
	return nil
}

func (a archive) sections() []string {
	var out []string
	for _, name := range a.order {
		if strings.Contains(name, "_volume_") && strings.HasSuffix(name, ".xhtml") {
			out = append(out, name)
		}
	}
	return out
}

func pngCover(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testWork() models.Work {
	return models.Work{Name: "lord-of-mysteries", RusName: "Повелитель тайн"}
}

func TestAssemble_SectionsInOrder(t *testing.T) {
	chapters := []models.Chapter{
		{Name: "Багровый", Volume: "1", Number: "1", Content: "<p>first</p>"},
		{Name: "Ситуация", Volume: "1", Number: "2", Content: "<p>second</p>"},
		{Name: "Мелисса", Volume: "2", Number: "10.5", Content: "<p>third</p>"},
	}

	data, err := AssembleBytes(testWork(), pngCover(t), chapters)
	require.NoError(t, err)
	a := openArchive(t, data)

	assert.Equal(t, "mimetype", a.order[0])

	sections := a.sections()
	require.Len(t, sections, 3)
	assert.True(t, sort.StringsAreSorted(sections), "section names must sort in reading order: %v", sections)
	assert.True(t, strings.HasSuffix(sections[2], "00003_volume_0002_number_0010.5.xhtml"))

	for i, name := range sections {
		body := string(a.files[name])
		assert.Contains(t, body, "<h1>"+chapters[i].Name+"</h1>")
		assert.Contains(t, body, chapters[i].Content)
	}

	opf := string(a.find(t, ".opf"))
	assert.Contains(t, opf, "Повелитель тайн")

	assert.Equal(t, pngCover(t), a.find(t, CoverFilename))
}

func TestAssemble_InlineContents(t *testing.T) {
	chapters := []models.Chapter{
		{Name: "One & Only", Volume: "1", Number: "1", Content: "<p>a</p>"},
		{Name: "Two", Volume: "1", Number: "2", Content: "<p>b</p>"},
	}

	data, err := AssembleBytes(testWork(), nil, chapters)
	require.NoError(t, err)
	a := openArchive(t, data)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(a.find(t, ContentsFilename)))
	require.NoError(t, err)

	var titles, links []string
	doc.Find("nav li a").Each(func(_ int, s *goquery.Selection) {
		titles = append(titles, s.Text())
		href, _ := s.Attr("href")
		links = append(links, href)
	})
	assert.Equal(t, []string{"One & Only", "Two"}, titles)
	assert.Equal(t, []string{SectionFilename(0, chapters[0]), SectionFilename(1, chapters[1])}, links)

	assert.Less(t, ContentsFilename, links[0])
}

func TestAssemble_StripsEmptyParagraphs(t *testing.T) {
	content := "<p>Start</p><p>\u00a0</p><p>Middle text</p><p>&nbsp;</p><p>End</p>"
	chapters := []models.Chapter{{Name: "Only", Volume: "1", Number: "1", Content: content}}

	data, err := AssembleBytes(testWork(), nil, chapters)
	require.NoError(t, err)
	a := openArchive(t, data)

	sections := a.sections()
	require.Len(t, sections, 1)
	body := string(a.files[sections[0]])
	assert.NotContains(t, body, "<p>\u00a0</p>")
	assert.NotContains(t, body, "<p>&nbsp;</p>")
	assert.Contains(t, body, "<p>Start</p><p>Middle text</p><p>End</p>")
}

func TestAssemble_NoChapters(t *testing.T) {
	data, err := AssembleBytes(testWork(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, openArchive(t, data).sections())
}

func TestStripEmptyParagraphs(t *testing.T) {
	assert.Equal(t, "<p>a</p><p>b</p>", StripEmptyParagraphs("<p>a</p><p>\u00a0</p><p>b</p><p>\u00a0</p>"))
	assert.Equal(t, "<p> </p>", StripEmptyParagraphs("<p> </p>"), "a plain space is content")
	assert.Equal(t, "", StripEmptyParagraphs(""))
}

func TestSectionFilename(t *testing.T) {
	tests := []struct {
		i    int
		ch   models.Chapter
		want string
	}{
		{0, models.Chapter{Volume: "1", Number: "1"}, "00001_volume_0001_number_0001.xhtml"},
		{9, models.Chapter{Volume: "12", Number: "100.5"}, "00010_volume_0012_number_0100.5.xhtml"},
		{2, models.Chapter{Volume: "", Number: "extra/1"}, "00003_volume_0000_number_extra_1.xhtml"},
		{3, models.Chapter{Volume: "3", Number: "12345"}, "00004_volume_0003_number_12345.xhtml"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SectionFilename(tt.i, tt.ch))
	}
}

func TestSectionTitleFallback(t *testing.T) {
	assert.Equal(t, "Volume 2, chapter 7", SectionTitle(models.Chapter{Volume: "2", Number: "7"}))
	assert.Equal(t, "Name", SectionTitle(models.Chapter{Name: "Name"}))
}
