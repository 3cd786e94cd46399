package config

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/pku-elective/autoelective/internal/course"
)

// GoalSetDoc is the YAML shape of the goal-set/rules file an operator
// edits while the process is running:
//
//	goals:
//	  - name: 程序设计实习
//	    class_no: "01"
//	    school: 信息科学技术学院
//	mutex:
//	  - - {name: "大学英语(一)", class_no: "01"}
//	    - {name: "大学英语(二)", class_no: "01"}
//	delay:
//	  "程序设计实习/01": 3
type GoalSetDoc struct {
	Goals []struct {
		Name    string `yaml:"name"`
		ClassNo string `yaml:"class_no"`
		School  string `yaml:"school"`
	} `yaml:"goals"`
	Mutex [][]struct {
		Name    string `yaml:"name"`
		ClassNo string `yaml:"class_no"`
		School  string `yaml:"school"`
	} `yaml:"mutex"`
	Delay map[string]int `yaml:"delay"`
}

// ToDomain converts the YAML document into the course package's types.
func (d GoalSetDoc) ToDomain() (*course.GoalSet, course.Rules) {
	goals := make([]course.Identity, 0, len(d.Goals))
	for _, g := range d.Goals {
		goals = append(goals, course.Identity{Name: g.Name, ClassNo: g.ClassNo, School: g.School})
	}
	var mutex [][]course.Identity
	for _, group := range d.Mutex {
		var ids []course.Identity
		for _, g := range group {
			ids = append(ids, course.Identity{Name: g.Name, ClassNo: g.ClassNo, School: g.School})
		}
		mutex = append(mutex, ids)
	}
	delay := make(map[course.Identity]int, len(d.Delay))
	for key, seconds := range d.Delay {
		// The flat-file key is "name/class_no"; school is not encoded,
		// and Rules.DelayFor falls back to a school-less lookup.
		name, classNo := splitDelayKey(key)
		delay[course.Identity{Name: name, ClassNo: classNo}] = seconds
	}
	return course.NewGoalSet(goals), course.Rules{Mutex: mutex, Delay: delay}
}

func splitDelayKey(key string) (name, classNo string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// GoalSetManager hot-reloads the goal-set YAML file, exposing a
// lock-free atomic read of the most recently loaded document. Mirrors
// the embedded-default-plus-external-override-plus-fsnotify shape used
// elsewhere in this codebase for versioned, operator-editable data.
type GoalSetManager struct {
	path      string
	hotReload bool

	current atomic.Value // *GoalSetDoc

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex

	reloadCount int64
	lastReload  time.Time
	lastErr     error
}

// NewGoalSetManager loads path once and, if hotReload is true, begins
// watching it for changes. A failed initial load (missing or unparsable
// file) is logged and the manager starts with an empty goal set. With
// hotReload, a path that does not exist cannot be watched and
// NewGoalSetManager returns that error; without hotReload the file is
// read only this once.
func NewGoalSetManager(path string, hotReload bool) (*GoalSetManager, error) {
	m := &GoalSetManager{path: path, hotReload: hotReload, stopCh: make(chan struct{})}
	m.current.Store(&GoalSetDoc{})

	if err := m.reload(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("goalset: initial load failed, starting empty")
	}

	if hotReload && path != "" {
		if err := m.startWatch(); err != nil {
			return nil, fmt.Errorf("goalset: start watch: %w", err)
		}
	}
	return m, nil
}

func (m *GoalSetManager) reload() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		return err
	}
	var doc GoalSetDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		return fmt.Errorf("goalset: parse %s: %w", m.path, err)
	}
	m.current.Store(&doc)
	m.mu.Lock()
	m.reloadCount++
	m.lastReload = time.Now()
	m.lastErr = nil
	m.mu.Unlock()
	return nil
}

func (m *GoalSetManager) startWatch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.path); err != nil {
		watcher.Close()
		return err
	}
	m.watcher = watcher
	m.wg.Add(1)
	go m.watchLoop()
	return nil
}

func (m *GoalSetManager) watchLoop() {
	defer m.wg.Done()
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				debounce.Reset(200 * time.Millisecond)
			}
		case <-debounce.C:
			if err := m.reload(); err != nil {
				log.Warn().Err(err).Str("path", m.path).Msg("goalset: reload failed, keeping previous document")
			} else {
				log.Info().Str("path", m.path).Msg("goalset: reloaded")
			}
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
		case <-m.stopCh:
			return
		}
	}
}

// Current returns the most recently loaded document.
func (m *GoalSetManager) Current() *GoalSetDoc {
	return m.current.Load().(*GoalSetDoc)
}

// Close stops the file watcher, if any.
func (m *GoalSetManager) Close() error {
	if m.watcher == nil {
		return nil
	}
	close(m.stopCh)
	err := m.watcher.Close()
	m.wg.Wait()
	return err
}
