package classifier

import (
	"embed"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/pku-elective/autoelective/internal/course"
)

//go:embed tips_default.yaml
var embeddedTipsFS embed.FS

// TipsEntry is one row of the substring -> outcome mapping table.
type TipsEntry struct {
	Substring string        `yaml:"substring"`
	Outcome   string        `yaml:"outcome"`
	Reason    course.Reason `yaml:"reason"`
}

type tipsDoc struct {
	Entries []TipsEntry `yaml:"entries"`
}

// TipsTable matches a business-error message against an ordered list of
// substrings, returning the first hit. It is data, not code: the
// mapping from a phrase the site might print to the reason the agent
// should record is exactly the kind of detail that changes without a
// release, so it loads from YAML (an embedded default, optionally
// overridden by an external file) rather than being hardcoded in
// control flow.
type TipsTable struct {
	current atomic.Value // []TipsEntry
}

// NewTipsTable loads the embedded default table.
func NewTipsTable() *TipsTable {
	t := &TipsTable{}
	data, err := embeddedTipsFS.ReadFile("tips_default.yaml")
	if err != nil {
		t.current.Store([]TipsEntry(nil))
		return t
	}
	var doc tipsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.current.Store([]TipsEntry(nil))
		return t
	}
	t.current.Store(doc.Entries)
	return t
}

// LoadOverride replaces the table with the contents of an external
// YAML file in the same shape as tips_default.yaml. A missing or
// unparsable file leaves the previously loaded table untouched.
func (t *TipsTable) LoadOverride(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc tipsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	t.current.Store(doc.Entries)
	return nil
}

// Entries returns the currently loaded table.
func (t *TipsTable) Entries() []TipsEntry {
	v := t.current.Load()
	if v == nil {
		return nil
	}
	return v.([]TipsEntry)
}

// Match returns the first entry whose substring appears in message, and
// true. Returns the zero TipsEntry and false if nothing matches.
func (t *TipsTable) Match(message string) (TipsEntry, bool) {
	for _, e := range t.Entries() {
		if e.Substring != "" && strings.Contains(message, e.Substring) {
			return e, true
		}
	}
	return TipsEntry{}, false
}
