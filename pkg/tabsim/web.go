package tabsim

import "strings"

// FrameSpec is a subframe a page creates while loading.
type FrameSpec struct {
	// Name is the frame's explicit name. Empty frames get positional names.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Src is the URL the frame loads. Empty leaves the initial empty document.
	Src string `yaml:"src,omitempty" json:"src,omitempty"`
}

// Page is a document definition.
type Page struct {
	Frames []FrameSpec `yaml:"frames,omitempty" json:"frames,omitempty"`
}

// Web maps document URLs, without fragment, to their pages. Unknown URLs
// load as pages without frames.
type Web map[string]Page

// Lookup returns the page served for url.
func (w Web) Lookup(url string) Page {
	if w == nil {
		return Page{}
	}
	return w[StripFragment(url)]
}

// StripFragment drops everything from the first '#'.
func StripFragment(url string) string {
	if i := strings.IndexByte(url, '#'); i >= 0 {
		return url[:i]
	}
	return url
}

// WithFragment replaces url's fragment.
func WithFragment(url, fragment string) string {
	return StripFragment(url) + "#" + strings.TrimPrefix(fragment, "#")
}
