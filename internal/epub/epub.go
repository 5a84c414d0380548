// Package epub packages normalized chapters into a single EPUB 3 document
// with a cover and an inline table of contents.
package epub

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"strings"

	goepub "github.com/go-shiori/go-epub"

	"ranobepub/pkg/models"
)

const (
	CoverFilename    = "cover.png"
	ContentsFilename = "00000_contents.xhtml"
	styleFilename    = "main.css"
)

const stylesheet = `body { margin: 0 5%; line-height: 1.5; }
h1 { text-align: center; font-size: 1.4em; margin: 1em 0; }
p { text-indent: 1.5em; margin: 0 0 0.4em 0; }
nav ol { list-style: none; padding: 0; }
`

// Options are the book-level settings that do not come from upstream.
type Options struct {
	Lang          string // default "ru"
	Author        string
	Identifier    string // default is a generated urn:uuid
	ContentsTitle string // title of the inline table of contents
}

func DefaultOptions() Options {
	return Options{Lang: "ru", ContentsTitle: "Table of Contents"}
}

// Assemble writes an EPUB for the work to w. Chapters are laid out in the
// order given. cover must already be PNG encoded; an empty cover is skipped.
func Assemble(work models.Work, cover []byte, chapters []models.Chapter, w io.Writer) error {
	return AssembleWith(DefaultOptions(), work, cover, chapters, w)
}

// AssembleBytes is Assemble into memory.
func AssembleBytes(work models.Work, cover []byte, chapters []models.Chapter) ([]byte, error) {
	var buf bytes.Buffer
	if err := Assemble(work, cover, chapters, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func AssembleWith(opts Options, work models.Work, cover []byte, chapters []models.Chapter, w io.Writer) error {
	if opts.Lang == "" {
		opts.Lang = "ru"
	}
	if opts.ContentsTitle == "" {
		opts.ContentsTitle = DefaultOptions().ContentsTitle
	}

	book, err := goepub.NewEpub(work.DisplayName())
	if err != nil {
		return &AssemblyError{Op: "create book", Cause: err}
	}
	book.SetLang(opts.Lang)
	if opts.Author != "" {
		book.SetAuthor(opts.Author)
	}
	if opts.Identifier != "" {
		book.SetIdentifier(opts.Identifier)
	}

	css, err := book.AddCSS(dataURL("text/css", []byte(stylesheet)), styleFilename)
	if err != nil {
		return &AssemblyError{Op: "add stylesheet", Cause: err}
	}

	if len(cover) > 0 {
		img, err := book.AddImage(dataURL("image/png", cover), CoverFilename)
		if err != nil {
			return &AssemblyError{Op: "add cover image", Cause: err}
		}
		if err := book.SetCover(img, ""); err != nil {
			return &AssemblyError{Op: "set cover", Cause: err}
		}
	}

	names := make([]string, len(chapters))
	for i, ch := range chapters {
		names[i] = SectionFilename(i, ch)
	}

	if _, err := book.AddSection(contentsBody(opts.ContentsTitle, chapters, names), opts.ContentsTitle, ContentsFilename, css); err != nil {
		return &AssemblyError{Op: "add table of contents", Cause: err}
	}

	for i, ch := range chapters {
		if _, err := book.AddSection(sectionBody(ch), SectionTitle(ch), names[i], css); err != nil {
			return &AssemblyError{Op: fmt.Sprintf("add section %s", names[i]), Cause: err}
		}
	}

	if _, err := book.WriteTo(w); err != nil {
		return &AssemblyError{Op: "write", Cause: err}
	}
	return nil
}

// SectionTitle is the chapter name, or its coordinates when upstream left
// the name empty.
func SectionTitle(ch models.Chapter) string {
	if name := strings.TrimSpace(ch.Name); name != "" {
		return ch.Name
	}
	return fmt.Sprintf("Volume %s, chapter %s", ch.Volume, ch.Number)
}

func sectionBody(ch models.Chapter) string {
	var b strings.Builder
	b.WriteString("<h1>")
	b.WriteString(html.EscapeString(SectionTitle(ch)))
	b.WriteString("</h1>\n")
	b.WriteString(StripEmptyParagraphs(ch.Content))
	return b.String()
}

func contentsBody(title string, chapters []models.Chapter, names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1>\n<nav>\n<ol>\n", html.EscapeString(title))
	for i, ch := range chapters {
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n", names[i], html.EscapeString(SectionTitle(ch)))
	}
	b.WriteString("</ol>\n</nav>")
	return b.String()
}

func dataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
