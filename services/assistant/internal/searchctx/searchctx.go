// Package searchctx tracks whether searches are anchored to an uploaded image
// and decides the payload shape of the next query. It performs no I/O.
package searchctx

import (
	"strings"
	"sync"

	"github.com/utafrali/shopassist/services/assistant/internal/domain"
)

// Payload is the shape of the next backend query.
type Payload int

const (
	PayloadNone Payload = iota
	PayloadText
	PayloadImage
)

func (p Payload) String() string {
	switch p {
	case PayloadText:
		return "text"
	case PayloadImage:
		return "image"
	default:
		return "none"
	}
}

// Mode maps the payload onto the snapshot's search mode.
func (p Payload) Mode() domain.SearchMode {
	switch p {
	case PayloadText:
		return domain.SearchModeText
	case PayloadImage:
		return domain.SearchModeImage
	default:
		return domain.SearchModeNone
	}
}

// State of the search context.
type State int

const (
	Uninitialized State = iota
	TextOnly
	ImageAnchored
)

func (s State) String() string {
	switch s {
	case TextOnly:
		return "text_only"
	case ImageAnchored:
		return "image_anchored"
	default:
		return "uninitialized"
	}
}

// Decide returns the payload for a search given whether a new image was just
// supplied, whether an anchor image is active, and the prompt text.
func Decide(hasNewImage, hasAnchorImage bool, prompt string) Payload {
	switch {
	case hasNewImage, hasAnchorImage:
		return PayloadImage
	case strings.TrimSpace(prompt) != "":
		return PayloadText
	default:
		return PayloadNone
	}
}

// Plan is the query a search intent resolves to. Token orders plans: it is
// issued together with the transition, so a higher token always belongs to
// the later anchor. PayloadNone plans carry no token.
type Plan struct {
	Token   uint64
	Payload Payload
	Prompt  string
	Image   *domain.ImageUpload
}

// Context is the per-session search state machine. It is safe for concurrent use.
type Context struct {
	mu         sync.Mutex
	state      State
	anchor     *domain.ImageUpload
	previewURL string
	token      uint64
}

// New returns a context in the Uninitialized state.
func New() *Context {
	return &Context{}
}

// Plan applies the transition for a search intent and returns the query to
// issue. newImage is nil for a plain prompt submission. An image anchor is
// set at intent time and survives a failed query.
func (c *Context) Plan(newImage *domain.ImageUpload, prompt string) Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plan(newImage, prompt)
}

// Reset clears the context and plans a text query for prompt in one step,
// so no concurrent upload can slip in between.
func (c *Context) Reset(prompt string) Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
	return c.plan(nil, prompt)
}

func (c *Context) plan(newImage *domain.ImageUpload, prompt string) Plan {
	prompt = strings.TrimSpace(prompt)

	var p Plan
	switch Decide(newImage != nil, c.anchor != nil, prompt) {
	case PayloadImage:
		if newImage != nil {
			img := *newImage
			c.anchor = &img
			c.previewURL = ""
		}
		c.state = ImageAnchored
		img := *c.anchor
		p = Plan{Payload: PayloadImage, Prompt: prompt, Image: &img}
	case PayloadText:
		c.state = TextOnly
		p = Plan{Payload: PayloadText, Prompt: prompt}
	default:
		return Plan{Payload: PayloadNone}
	}

	c.token++
	p.Token = c.token
	return p
}

// IsLatest reports whether token belongs to the most recent plan.
func (c *Context) IsLatest(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return token == c.token
}

// Clear drops the anchor image and returns to Uninitialized.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

func (c *Context) clear() {
	c.state = Uninitialized
	c.anchor = nil
	c.previewURL = ""
}

// SetPreview records the server preview URL for the active anchor. It is a
// no-op when no image is anchored.
func (c *Context) SetPreview(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.anchor != nil && url != "" {
		c.previewURL = url
	}
}

// State returns the current state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Anchor returns a copy of the anchor image, if any.
func (c *Context) Anchor() (domain.ImageUpload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.anchor == nil {
		return domain.ImageUpload{}, false
	}
	return *c.anchor, true
}

// PreviewURL returns the last preview URL the server issued for the anchor.
func (c *Context) PreviewURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewURL
}
