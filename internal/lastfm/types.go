package lastfm

// Tag is a Last.fm tag with its relative weight (0-100).
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	URL   string `json:"url,omitempty"`
}

// artistTagsResponse is the JSON response for artist.getTopTags.
type artistTagsResponse struct {
	TopTags struct {
		Tag  []Tag `json:"tag"`
		Attr struct {
			Artist string `json:"artist"`
		} `json:"@attr"`
	} `json:"toptags"`
}

// apiError is the body Last.fm returns for failed calls.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}
