package log

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// backupTimeFormat names rotated files as "<path>.<hour-resolution timestamp>".
const backupTimeFormat = "2006010215"

// AsyncFileWriter is an io.Writer that hands bytes to a background
// goroutine, which appends them to filePath and rotates the file on an
// hourly boundary (every rotateHours hours), keeping at most maxBackups
// rotated files around.
type AsyncFileWriter struct {
	filePath    string
	rotateHours uint
	maxBackups  uint

	queue chan []byte
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	current *os.File
}

// NewAsyncFileWriter creates a writer for filePath. queueSize bounds the
// number of pending writes buffered between the caller and the background
// goroutine before Write blocks.
func NewAsyncFileWriter(filePath string, queueSize int, rotateHours, maxBackups uint) *AsyncFileWriter {
	if queueSize <= 0 {
		queueSize = 1
	}
	if rotateHours == 0 {
		rotateHours = 1
	}
	return &AsyncFileWriter{
		filePath:    filePath,
		rotateHours: rotateHours,
		maxBackups:  maxBackups,
		queue:       make(chan []byte, queueSize),
		done:        make(chan struct{}),
	}
}

// Start opens the log file and begins the background writer/rotator.
func (w *AsyncFileWriter) Start() error {
	f, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = f
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Write queues p for the background goroutine. It never blocks the
// reactor goroutine for longer than it takes to enqueue.
func (w *AsyncFileWriter) Write(p []byte) (int, error) {
	b := make([]byte, len(p))
	copy(b, p)
	select {
	case w.queue <- b:
	case <-w.done:
	}
	return len(p), nil
}

// Stop drains queued writes, closes the file, and stops the goroutine.
func (w *AsyncFileWriter) Stop() {
	close(w.done)
	w.wg.Wait()
	w.mu.Lock()
	if w.current != nil {
		_ = w.current.Close()
		w.current = nil
	}
	w.mu.Unlock()
}

func (w *AsyncFileWriter) loop() {
	defer w.wg.Done()
	next := w.nextRotationAt(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case b := <-w.queue:
			w.append(b)
		case <-timer.C:
			w.rotate()
			next = w.nextRotationAt(time.Now())
			timer.Reset(time.Until(next))
		case <-w.done:
			w.drain()
			return
		}
	}
}

func (w *AsyncFileWriter) drain() {
	for {
		select {
		case b := <-w.queue:
			w.append(b)
		default:
			return
		}
	}
}

func (w *AsyncFileWriter) append(b []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		_, _ = w.current.Write(b)
	}
}

func (w *AsyncFileWriter) nextRotationAt(now time.Time) time.Time {
	hour := getNextRotationHour(now, w.rotateHours)
	day := now
	if hour <= now.Hour() {
		day = now.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}

// getNextRotationHour returns the hour of day (0-23) at which the next
// rotation boundary after now occurs, for rotations every delta hours.
func getNextRotationHour(now time.Time, delta uint) int {
	d := int(delta)
	if d <= 0 {
		d = 1
	}
	return ((now.Hour()/d + 1) * d) % 24
}

// rotate closes the current file, renames it with an hourly backup suffix,
// reopens a fresh file at filePath, and removes any backups past retention.
func (w *AsyncFileWriter) rotate() {
	w.mu.Lock()
	if w.current != nil {
		_ = w.current.Close()
		w.current = nil
	}
	backup := w.filePath + "." + time.Now().Format(backupTimeFormat)
	_ = os.Rename(w.filePath, backup)
	f, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err == nil {
		w.current = f
	}
	w.mu.Unlock()

	w.removeExpiredFile()
}

// expiredBackups lists rotated backups of filePath that are older than
// maxBackups*rotateHours hours.
func expiredBackups(filePath string, maxBackups, rotateHours uint) []string {
	dir := filepath.Dir(filePath)
	base := filepath.Base(filePath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	retention := time.Duration(maxBackups) * time.Duration(rotateHours) * time.Hour
	cutoff := time.Now().Add(-retention)

	var expired []string
	prefix := base + "."
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		ts, err := time.Parse(backupTimeFormat, name[len(prefix):])
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			expired = append(expired, filepath.Join(dir, name))
		}
	}
	sort.Strings(expired)
	return expired
}

// getExpiredFile returns the path of the oldest backup of filePath that has
// aged out of the maxBackups*rotateHours retention window, or "" if none.
func (w *AsyncFileWriter) getExpiredFile(filePath string, maxBackups, rotateHours uint) string {
	expired := expiredBackups(filePath, maxBackups, rotateHours)
	if len(expired) == 0 {
		return ""
	}
	return expired[0]
}

// removeExpiredFile deletes every backup of w.filePath past the retention
// window.
func (w *AsyncFileWriter) removeExpiredFile() {
	for _, f := range expiredBackups(w.filePath, w.maxBackups, w.rotateHours) {
		_ = os.Remove(f)
	}
}
