package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ChannelLog is a size-rotated log for one channel. Rotation keeps the
// last tailLines lines of the old file at the head of the new one, so
// a reader paging back through history does not hit a hard cut at
// every rotation. The rename-and-reopen mechanics are lumberjack's;
// the size policy is ours because the tail must be captured before
// the file moves.
type ChannelLog struct {
	mu        sync.Mutex
	path      string
	lj        *lumberjack.Logger
	size      int64
	rotateAt  int64
	tailLines int
}

// ljMaxSizeMB keeps lumberjack's own size trigger out of the way; all
// rotation goes through ChannelLog so the tail can be preserved.
const ljMaxSizeMB = 1 << 20

// OpenChannelLog opens or creates a channel log. rotateSize is in
// bytes; tailLines is how many lines survive each rotation (0 disables
// the carry-over).
func OpenChannelLog(path string, rotateSize int64, tailLines int) (*ChannelLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("logger: channel log dir: %w", err)
	}
	var size int64
	if st, err := os.Stat(path); err == nil {
		size = st.Size()
	}
	return &ChannelLog{
		path: path,
		lj: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    ljMaxSizeMB,
			MaxBackups: 5,
		},
		size:      size,
		rotateAt:  rotateSize,
		tailLines: tailLines,
	}, nil
}

// Path returns the log file path.
func (c *ChannelLog) Path() string { return c.path }

// Log appends one timestamped entry.
func (c *ChannelLog) Log(msg string) error {
	entry := fmt.Sprintf("%s %s %s\n", timestamp(), tagFile, msg)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rotateAt > 0 && c.size+int64(len(entry)) > c.rotateAt {
		if err := c.rotate(); err != nil {
			return fmt.Errorf("logger: rotate %s: %w", c.path, err)
		}
	}
	n, err := c.lj.Write([]byte(entry))
	c.size += int64(n)
	if err != nil {
		return fmt.Errorf("logger: write %s: %w", c.path, err)
	}
	return nil
}

// rotate captures the tail, rotates the file, then seeds the new file
// with the captured lines. Caller holds c.mu.
func (c *ChannelLog) rotate() error {
	var tail []string
	if c.tailLines > 0 {
		// Best effort; a fresh file has nothing to carry over.
		tail, _ = Tail(c.path, c.tailLines, 0)
	}
	if err := c.lj.Rotate(); err != nil {
		return err
	}
	c.size = 0
	for _, line := range tail {
		n, err := c.lj.Write([]byte(line + "\n"))
		c.size += int64(n)
		if err != nil {
			return err
		}
	}
	return nil
}

// Rotate forces a rotation regardless of size.
func (c *ChannelLog) Rotate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotate()
}

// Close closes the underlying file.
func (c *ChannelLog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lj.Close()
}

// Shared handle registry so concurrent writers reuse one ChannelLog
// per path instead of interleaving rotations.
var (
	sharedMu   sync.Mutex
	sharedLogs = make(map[string]*ChannelLog)
)

// SharedChannelLog returns the ChannelLog for path, opening it on
// first use. Later calls ignore rotateSize and tailLines.
func SharedChannelLog(path string, rotateSize int64, tailLines int) (*ChannelLog, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if cl, ok := sharedLogs[path]; ok {
		return cl, nil
	}
	cl, err := OpenChannelLog(path, rotateSize, tailLines)
	if err != nil {
		return nil, err
	}
	sharedLogs[path] = cl
	return cl, nil
}

// CloseSharedLogs closes every registered channel log. Called at
// shutdown.
func CloseSharedLogs() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	for path, cl := range sharedLogs {
		cl.Close()
		delete(sharedLogs, path)
	}
}
