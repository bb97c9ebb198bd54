// Package scenario describes browsing sessions as YAML files and replays
// them through the tab simulator, checking the history after each step.
//
// A scenario names a small web of pages, a list of steps and, per step,
// the outcome the history list should show:
//
//	name: subframe back
//	web:
//	  https://a.test/:
//	    frames:
//	      - src: https://b.test/
//	steps:
//	  - action: navigate
//	    url: https://a.test/
//	    expect: {type: NEW_PAGE, entry_count: 1}
//	  - action: click
//	    frame: [0]
//	    url: https://c.test/
//	    expect: {type: NEW_SUBFRAME, entry_count: 2}
//	  - action: back
//	    expect: {type: AUTO_SUBFRAME, index: 0}
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/navhistory/pkg/history"
	"github.com/entrhq/navhistory/pkg/tabsim"
)

// DefaultTab is the tab steps act on when they name none.
const DefaultTab = "main"

// Scenario is one replayable browsing session.
type Scenario struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Web is the set of pages the simulated tabs can load.
	Web tabsim.Web `yaml:"web,omitempty" json:"web,omitempty"`

	// MaxEntryCount overrides the history capacity when positive.
	MaxEntryCount int `yaml:"max_entry_count,omitempty" json:"max_entry_count,omitempty"`

	// IsolatedPatterns enables site tagging with these host patterns.
	IsolatedPatterns []string `yaml:"isolated_patterns,omitempty" json:"isolated_patterns,omitempty"`

	Steps []Step `yaml:"steps" json:"steps"`
}

// Action is what a step does to its tab.
type Action string

const (
	ActionNavigate        Action = "navigate"
	ActionNavigateFrame   Action = "navigate_frame"
	ActionNavigateEmpty   Action = "navigate_empty"
	ActionClick           Action = "click"
	ActionLocationReplace Action = "location_replace"
	ActionPushState       Action = "push_state"
	ActionReplaceState    Action = "replace_state"
	ActionFragment        Action = "fragment"
	ActionRecommit        Action = "recommit"
	ActionReload          Action = "reload"
	ActionFail            Action = "fail"
	ActionLoadData        Action = "load_data"
	ActionCreateFrame     Action = "create_frame"
	ActionRemoveFrame     Action = "remove_frame"
	ActionBack            Action = "back"
	ActionForward         Action = "forward"
	ActionGo              Action = "go"
	ActionPopup           Action = "popup"
	ActionSave            Action = "save"
	ActionRestore         Action = "restore"
	ActionPrune           Action = "prune"
	ActionRemoveEntry     Action = "remove_entry"
)

// actions lists, per action, the step fields it requires.
var actions = map[Action][]string{
	ActionNavigate:        {"url"},
	ActionNavigateFrame:   {"frame", "url"},
	ActionNavigateEmpty:   nil,
	ActionClick:           {"url"},
	ActionLocationReplace: {"url"},
	ActionPushState:       {"url"},
	ActionReplaceState:    {"url"},
	ActionFragment:        {"url"},
	ActionRecommit:        nil,
	ActionReload:          nil,
	ActionFail:            {"url"},
	ActionLoadData:        {"url", "history_url"},
	ActionCreateFrame:     nil,
	ActionRemoveFrame:     {"frame"},
	ActionBack:            nil,
	ActionForward:         nil,
	ActionGo:              nil,
	ActionPopup:           {"name"},
	ActionSave:            {"name"},
	ActionRestore:         {"name"},
	ActionPrune:           nil,
	ActionRemoveEntry:     nil,
}

// Step is one action on one tab.
type Step struct {
	Action Action `yaml:"action" json:"action"`

	// Tab selects the tab; empty is DefaultTab. For restore it names the
	// new tab that receives the saved session.
	Tab string `yaml:"tab,omitempty" json:"tab,omitempty"`

	// URL is the target of the step. For fragment it is the fragment.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Frame is a path of child indices below the main frame. For
	// create_frame it is the parent.
	Frame []int `yaml:"frame,omitempty" json:"frame,omitempty"`

	// Name is the frame name for create_frame, the popup's tab ID for
	// popup, and the slot for save and restore.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	Offset int `yaml:"offset,omitempty" json:"offset,omitempty"`
	Index  int `yaml:"index,omitempty" json:"index,omitempty"`

	BaseURL    string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	HistoryURL string `yaml:"history_url,omitempty" json:"history_url,omitempty"`

	Expect *Expectation `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// Expectation is checked against the step's commit and the tab's history
// after the step. Unset fields are not checked.
type Expectation struct {
	// Type is a navigation type name such as NEW_PAGE.
	Type     string `yaml:"type,omitempty" json:"type,omitempty"`
	InPage   *bool  `yaml:"in_page,omitempty" json:"in_page,omitempty"`
	Replaced *bool  `yaml:"replaced,omitempty" json:"replaced,omitempty"`
	Pruned   *int   `yaml:"pruned,omitempty" json:"pruned,omitempty"`

	EntryCount *int `yaml:"entry_count,omitempty" json:"entry_count,omitempty"`
	Index      *int `yaml:"index,omitempty" json:"index,omitempty"`

	// URL is the last committed entry's URL.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// FrameURLs are the last committed entry's frame URLs in tree order.
	FrameURLs []string `yaml:"frame_urls,omitempty" json:"frame_urls,omitempty"`

	CanGoBack    *bool `yaml:"can_go_back,omitempty" json:"can_go_back,omitempty"`
	CanGoForward *bool `yaml:"can_go_forward,omitempty" json:"can_go_forward,omitempty"`
	Pending      *bool `yaml:"pending,omitempty" json:"pending,omitempty"`

	// Error makes the step expected to fail with a message containing it.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every step is complete.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", s.Name)
	}
	if s.MaxEntryCount < 0 {
		return fmt.Errorf("max_entry_count must not be negative")
	}

	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
	}
	return nil
}

func (st Step) validate() error {
	required, ok := actions[st.Action]
	if !ok {
		return fmt.Errorf("unknown action %q", st.Action)
	}
	for _, field := range required {
		missing := false
		switch field {
		case "url":
			missing = st.URL == ""
		case "frame":
			missing = len(st.Frame) == 0
		case "name":
			missing = st.Name == ""
		case "history_url":
			missing = st.HistoryURL == ""
		}
		if missing {
			return fmt.Errorf("%s is required", field)
		}
	}
	if st.Expect != nil && st.Expect.Type != "" {
		if _, ok := history.ParseNavigationType(st.Expect.Type); !ok {
			return fmt.Errorf("unknown navigation type %q", st.Expect.Type)
		}
	}
	return nil
}

// Describe is a one-line summary of the step for reports.
func (st Step) Describe() string {
	var b strings.Builder
	b.WriteString(string(st.Action))
	if st.Tab != "" && st.Tab != DefaultTab {
		fmt.Fprintf(&b, " [%s]", st.Tab)
	}
	if len(st.Frame) > 0 {
		fmt.Fprintf(&b, " frame%v", st.Frame)
	}
	switch st.Action {
	case ActionGo:
		fmt.Fprintf(&b, " %+d", st.Offset)
	case ActionRemoveEntry:
		fmt.Fprintf(&b, " #%d", st.Index)
	}
	if st.Name != "" {
		fmt.Fprintf(&b, " %s", st.Name)
	}
	if st.URL != "" {
		fmt.Fprintf(&b, " %s", st.URL)
	}
	return b.String()
}
