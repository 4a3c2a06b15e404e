// Package help parses and serves file-based help topics. Help files
// use the classic format where each entry starts with a "& topicname"
// line; several "& name" lines in a row are aliases sharing the body
// that follows.
package help

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// File holds the parsed entries of one help text file.
type File struct {
	Entries map[string]string // lowercase topic -> body
}

// ParseFile parses help entries from r.
func ParseFile(r io.Reader) *File {
	hf := &File{Entries: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	// Topics can have multiple "& TOPIC" aliases that share the same
	// body. Collect all names seen before the body starts.
	var currentTopics []string
	var buf strings.Builder

	saveEntry := func() {
		if len(currentTopics) == 0 {
			return
		}
		text := strings.TrimRight(buf.String(), "\n ")
		for _, topic := range currentTopics {
			hf.Entries[strings.ToLower(topic)] = text
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "& ") {
			topic := strings.TrimSpace(line[2:])
			if buf.Len() == 0 && len(currentTopics) > 0 {
				// Another alias for the same entry (no body yet)
				currentTopics = append(currentTopics, topic)
			} else {
				saveEntry()
				currentTopics = []string{topic}
				buf.Reset()
			}
		} else {
			if len(currentTopics) > 0 {
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
		}
	}
	saveEntry()

	return hf
}

// LoadFile parses the help file at path.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseFile(f), nil
}

// Lookup finds a help entry by topic name. Topics containing wildcards
// (* or ?) return a listing of matching topic names. Otherwise an exact
// match is tried first, then the shortest topic the query is a prefix
// of ("@swi" finds "@switch"). Returns "" when nothing matches.
func (hf *File) Lookup(topic string) string {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		topic = "help"
	}

	if strings.ContainsAny(topic, "*?") {
		var matches []string
		for key := range hf.Entries {
			if matchTopic(topic, key) {
				matches = append(matches, key)
			}
		}
		if len(matches) == 0 {
			return ""
		}
		sort.Strings(matches)
		return fmt.Sprintf("Here are the entries which match '%s':\n  %s",
			topic, strings.Join(matches, "  "))
	}

	if text, ok := hf.Entries[topic]; ok {
		return text
	}

	var bestKey string
	for key := range hf.Entries {
		if strings.HasPrefix(key, topic) {
			if bestKey == "" || len(key) < len(bestKey) ||
				(len(key) == len(bestKey) && key < bestKey) {
				bestKey = key
			}
		}
	}
	if bestKey != "" {
		return hf.Entries[bestKey]
	}

	return ""
}

// Topics lists every topic in the file, sorted.
func (hf *File) Topics() []string {
	topics := make([]string, 0, len(hf.Entries))
	for key := range hf.Entries {
		topics = append(topics, key)
	}
	sort.Strings(topics)
	return topics
}

// matchTopic matches a topic against a pattern with * and ? wildcards.
func matchTopic(pattern, str string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for i := len(str); i >= 0; i-- {
				if matchTopic(pattern[1:], str[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(str) == 0 {
				return false
			}
			pattern = pattern[1:]
			str = str[1:]
		default:
			if len(str) == 0 || pattern[0] != str[0] {
				return false
			}
			pattern = pattern[1:]
			str = str[1:]
		}
	}
	return len(str) == 0
}
