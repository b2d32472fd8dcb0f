package core

// Attachment represents a debug artifact captured during a scenario
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot
	ContentType string `json:"contentType"` // MIME type: image/png
	Path        string `json:"path"`        // File path relative to output directory
	Body        []byte `json:"-"`           // In-memory content (not serialized to JSON)
}

// Common attachment names
const (
	AttachmentScreenshot = "screenshot"
)

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentScreenshot,
		ContentType: ContentTypePNG,
		Path:        path,
		Body:        data,
	}
}
