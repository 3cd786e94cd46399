package classifier

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Dumper saves raw response bodies the classifier couldn't make sense
// of, so an operator can diagnose a new site error shape after the
// fact instead of losing it to a log line truncation.
type Dumper struct {
	dir     string
	counter atomic.Int64
}

// NewDumper returns a Dumper writing under dir, creating it if needed.
// A Dumper with an empty dir is a no-op: Save silently does nothing.
func NewDumper(dir string) *Dumper {
	if dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	return &Dumper{dir: dir}
}

// Save writes body to dir/<unix-nano>-<seq>-<reason>.html. Failures to
// write are swallowed: a dump is best-effort diagnostics, never a
// reason to fail the calling request.
func (d *Dumper) Save(body []byte, reason string) {
	if d == nil || d.dir == "" {
		return
	}
	n := d.counter.Add(1)
	name := fmt.Sprintf("%d-%d-%s.html", time.Now().UnixNano(), n, reason)
	path := filepath.Join(d.dir, name)
	_ = os.WriteFile(path, body, 0o644)
}
