package xlgrid

// HyperlinkValue is a cell value that renders as Display and links to URL.
// ExportXLSX writes it as a clickable hyperlink.
type HyperlinkValue struct {
	URL     string
	Display string
}

// String returns the display text for the hyperlink.
func (h HyperlinkValue) String() string {
	if h.Display != "" {
		return h.Display
	}
	return h.URL
}

// Hyperlink creates a HyperlinkValue. It is bound as a builtin in every
// cell: hyperlink("https://example.com", "home").
func Hyperlink(url, display string) HyperlinkValue {
	return HyperlinkValue{URL: url, Display: display}
}
