package ir

// Metadata holds the bibliographic information for a Document. Fields that
// are format-specific and have no home elsewhere (calibre custom columns,
// vendor-specific OPF meta tags, ...) are preserved in Overflow so a
// round-trip through the same format doesn't silently drop them.
type Metadata struct {
	Title    string
	Subtitle string

	// Authors is ordered; the first entry is the primary author.
	Authors []Author

	// Language is a BCP-47 tag, e.g. "en", "en-US", "zh-Hant".
	Language string

	Publisher string

	// PublishDate is a free-form ISO-8601 date or bare year, kept as a
	// string because partial dates (year-only) are common in the wild and
	// a parsed time.Time cannot represent them losslessly.
	PublishDate string

	ISBN10      string
	ISBN13      string
	Description string
	Subjects    []string

	Series *SeriesInfo

	// CoverImageID, when non-empty, must resolve to an Image-media-type
	// Resource in the owning Document's ResourceMap.
	CoverImageID string

	PageCount int
	Rights    string

	// Overflow carries format-specific fields that have no first-class
	// home in Metadata (e.g. calibre:series_note, custom OPF meta
	// properties). Readers should populate it rather than drop data;
	// writers that don't understand a key simply don't emit it.
	Overflow map[string]string
}

// Author is a single entry in Metadata.Authors.
type Author struct {
	Name string
	// Role is the OPF marc:relators code ("aut", "edt", "trl", ...), or
	// empty for a generic author.
	Role string
	// FileAs is the sortable form of Name ("Tolkien, J.R.R."), if known.
	FileAs string
}

// SeriesInfo captures a book's position within a series. Position is
// fractional because series positions like "2.5" (a novella between books 2
// and 3) are common.
type SeriesInfo struct {
	Name     string
	Position float64
}
