package models

// Work is the normalized top-level metadata of a novel as returned by the
// upstream `/{slug}` endpoint. It is created once per run and never mutated.
type Work struct {
	Name    string `json:"name"`     // canonical name used for the artifact file
	RusName string `json:"rus_name"` // display title written into the EPUB
	Cover   Cover  `json:"cover"`
}

type Cover struct {
	Default   string `json:"default"`
	Thumbnail string `json:"thumbnail"`
}

// CoverURL returns the full size cover reference.
func (w Work) CoverURL() string {
	return w.Cover.Default
}

// DisplayName returns the title to show readers, falling back to the
// canonical name when the localized one is missing.
func (w Work) DisplayName() string {
	if w.RusName != "" {
		return w.RusName
	}
	return w.Name
}
