package domain

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
)

// MaxImageBytes mirrors the backend's upload limit.
const MaxImageBytes = 16 << 20

// DefaultPrompt is the context-free query used for the initial load.
const DefaultPrompt = "trending fashion and home decor"

// ExamplePrompts are suggested to users with an empty search box.
var ExamplePrompts = []string{
	"red summer dress",
	"formal black shoes",
	"men's casual shirt blue",
	"women's sports sneakers",
}

var allowedImageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
}

// ImageUpload is an anchor image supplied by the user.
type ImageUpload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Validate checks the extension, the sniffed content type and the size.
func (u ImageUpload) Validate() error {
	if len(u.Data) == 0 {
		return apperrors.InvalidInput("image file is empty")
	}
	if len(u.Data) > MaxImageBytes {
		return apperrors.InvalidInput(fmt.Sprintf("image exceeds %d MiB", MaxImageBytes>>20))
	}

	ext := strings.ToLower(filepath.Ext(u.Filename))
	if _, ok := allowedImageTypes[ext]; !ok {
		return apperrors.InvalidInput("invalid file type, allowed: png, jpg, jpeg, gif")
	}
	// The extension only gates the name. A PNG saved as .jpg is still an
	// allowed image, so the content may be any of the allowed types.
	sniffed := http.DetectContentType(u.Data)
	for _, allowed := range allowedImageTypes {
		if sniffed == allowed {
			return nil
		}
	}
	return apperrors.InvalidInput(fmt.Sprintf("file content is %s, not an image", sniffed))
}

// SearchResult is what a query returns.
type SearchResult struct {
	Recommendations  []Product
	Insight          Insight
	ImageDescription string
	PreviewURL       string
}

// SearchMode reports which kind of query produced the current recommendations.
type SearchMode string

const (
	SearchModeNone  SearchMode = "none"
	SearchModeText  SearchMode = "text"
	SearchModeImage SearchMode = "image"
)
