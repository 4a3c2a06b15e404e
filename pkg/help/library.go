package help

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Library serves help topics merged from every .txt file in a
// directory. Files can be edited while the engine runs; Watch reloads
// them when they change on disk.
type Library struct {
	mu    sync.RWMutex
	dir   string
	files map[string]*File // base filename -> parsed entries
}

// OpenLibrary loads every .txt file under dir. A missing directory is
// not an error; the library starts empty and Watch picks up files that
// appear later.
func OpenLibrary(dir string) (*Library, error) {
	l := &Library{dir: dir, files: make(map[string]*File)}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the directory the library reads from.
func (l *Library) Dir() string { return l.dir }

// Reload re-reads every .txt file in the directory, dropping entries
// whose file has gone away.
func (l *Library) Reload() error {
	names, err := filepath.Glob(filepath.Join(l.dir, "*.txt"))
	if err != nil {
		return fmt.Errorf("help: scan %s: %w", l.dir, err)
	}

	files := make(map[string]*File, len(names))
	for _, path := range names {
		hf, err := LoadFile(path)
		if err != nil {
			log.Printf("WARNING: Could not load help file %s: %v", path, err)
			continue
		}
		files[filepath.Base(path)] = hf
	}

	l.mu.Lock()
	l.files = files
	l.mu.Unlock()
	return nil
}

// reloadFile re-parses a single file after a change notification.
func (l *Library) reloadFile(path string) {
	hf, err := LoadFile(path)
	if err != nil {
		log.Printf("WARNING: Could not reload help file %s: %v", path, err)
		return
	}
	l.mu.Lock()
	l.files[filepath.Base(path)] = hf
	l.mu.Unlock()
}

// Lookup searches every loaded file. Wildcard patterns list matching
// topics across all files; otherwise an exact match is tried in file
// name order, then the shortest prefix match across all files.
func (l *Library) Lookup(topic string) string {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		topic = "help"
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if strings.ContainsAny(topic, "*?") {
		seen := make(map[string]bool)
		var matches []string
		for _, hf := range l.files {
			for key := range hf.Entries {
				if !seen[key] && matchTopic(topic, key) {
					seen[key] = true
					matches = append(matches, key)
				}
			}
		}
		if len(matches) == 0 {
			return ""
		}
		sort.Strings(matches)
		return fmt.Sprintf("Here are the entries which match '%s':\n  %s",
			topic, strings.Join(matches, "  "))
	}

	for _, name := range l.sortedNames() {
		if text, ok := l.files[name].Entries[topic]; ok {
			return text
		}
	}

	var bestKey, bestText string
	for _, name := range l.sortedNames() {
		for key, text := range l.files[name].Entries {
			if strings.HasPrefix(key, topic) {
				if bestKey == "" || len(key) < len(bestKey) ||
					(len(key) == len(bestKey) && key < bestKey) {
					bestKey, bestText = key, text
				}
			}
		}
	}
	return bestText
}

// Topics lists every topic across all loaded files, sorted and deduped.
func (l *Library) Topics() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]bool)
	var topics []string
	for _, hf := range l.files {
		for key := range hf.Entries {
			if !seen[key] {
				seen[key] = true
				topics = append(topics, key)
			}
		}
	}
	sort.Strings(topics)
	return topics
}

// EntryCount reports the total number of entries across all files.
func (l *Library) EntryCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, hf := range l.files {
		n += len(hf.Entries)
	}
	return n
}

func (l *Library) sortedNames() []string {
	names := make([]string, 0, len(l.files))
	for name := range l.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Watch starts an fsnotify watcher on the help directory. Changed or
// newly created .txt files are reparsed in place and onChange is called
// with the file's base name. The returned stop function shuts the
// watcher down.
func (l *Library) Watch(onChange func(file string)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("help: start watcher: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !strings.HasSuffix(event.Name, ".txt") {
					continue
				}
				l.reloadFile(event.Name)
				if onChange != nil {
					onChange(filepath.Base(event.Name))
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Help watcher error: %v", err)
			}
		}
	}()

	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("help: watch %s: %w", l.dir, err)
	}
	return func() { watcher.Close() }, nil
}
