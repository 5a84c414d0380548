package models

// ChapterDescriptor identifies a chapter before its content is known.
// Slices of descriptors are kept in upstream order, which is reading order.
type ChapterDescriptor struct {
	Number string `json:"number"`
	Volume string `json:"volume"`
}

// Chapter is a fully fetched and normalized chapter.
//
// Content is always a flat string. When upstream sends structured content
// (a JSON document instead of HTML) it holds the JSON text of that document.
type Chapter struct {
	Name    string `json:"name"`
	Number  string `json:"number"`
	Volume  string `json:"volume"`
	Content string `json:"content"`
}

func (c Chapter) Descriptor() ChapterDescriptor {
	return ChapterDescriptor{Number: c.Number, Volume: c.Volume}
}
