package types

import "fmt"

// ContentPart represents a single piece of content in a multimodal message.
// A message can contain multiple parts: text and images.
type ContentPart struct {
	Type string `json:"type"` // "text" or "image"

	// For text content
	Text *string `json:"text,omitempty"`

	// For image content
	Media *MediaContent `json:"media,omitempty"`
}

// MediaContent represents image data in a message or result.
// Supports inline base64 data and external URL references.
type MediaContent struct {
	// Data source - exactly one should be set
	Data *string `json:"data,omitempty"` // Base64-encoded image data
	URL  *string `json:"url,omitempty"`  // External URL (http/https or data URL)

	MIMEType string `json:"mime_type"` // e.g. "image/jpeg", "image/png"
}

// ContentType constants for content part types.
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

// Common MIME types.
const (
	MIMETypeImageJPEG = "image/jpeg"
	MIMETypeImagePNG  = "image/png"
)

// NewTextPart creates a ContentPart with text content.
func NewTextPart(text string) ContentPart {
	return ContentPart{
		Type: ContentTypeText,
		Text: &text,
	}
}

// NewImagePartFromData creates a ContentPart with base64-encoded image data.
func NewImagePartFromData(base64Data, mimeType string) ContentPart {
	return ContentPart{
		Type: ContentTypeImage,
		Media: &MediaContent{
			Data:     &base64Data,
			MIMEType: mimeType,
		},
	}
}

// NewImagePartFromURL creates a ContentPart with image content referenced by URL.
func NewImagePartFromURL(url string) ContentPart {
	return ContentPart{
		Type: ContentTypeImage,
		Media: &MediaContent{
			URL:      &url,
			MIMEType: MIMETypeImageJPEG,
		},
	}
}

// DataURL returns the media content as a data URL suitable for inline
// embedding in a request body. Returns an error when no inline data is set.
func (m *MediaContent) DataURL() (string, error) {
	if m.URL != nil {
		return *m.URL, nil
	}
	if m.Data == nil {
		return "", fmt.Errorf("media content has no inline data or URL")
	}
	mime := m.MIMEType
	if mime == "" {
		mime = MIMETypeImageJPEG
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, *m.Data), nil
}

// IsInline reports whether the media carries inline base64 data.
func (m *MediaContent) IsInline() bool {
	return m != nil && m.Data != nil
}
