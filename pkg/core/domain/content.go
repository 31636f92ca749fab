package domain

// ContentItem is a viewable entry (a blog post) the gateway can send a visitor to
// as proof of presence.
type ContentItem struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
