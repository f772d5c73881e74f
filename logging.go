package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	logger       = newClientLogger()
	debugLogging bool
)

const (
	logLevelDebug logLevel = iota
	logLevelInfo
	logLevelWarn
	logLevelError
)

const (
	logRetentionDays = 3
	logQueueDepth    = 4096
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

type logLevel int

func (l logLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

func parseLogLevel(name string) (logLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return logLevelDebug, nil
	case "", "info":
		return logLevelInfo, nil
	case "warn", "warning":
		return logLevelWarn, nil
	case "error":
		return logLevelError, nil
	default:
		return logLevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", name)
	}
}

type logEvent struct {
	level logLevel
	at    time.Time
	msg   string
	attrs []any
}

// clientLogger is an asynchronous leveled logger. Callers never block on
// disk I/O; entries are queued and written by a single goroutine.
type clientLogger struct {
	level       atomic.Int32
	queue       chan logEvent
	done        chan struct{}
	writerMu    sync.RWMutex
	mainWriter  io.Writer
	errorWriter io.Writer
	debugWriter io.Writer
	netWriter   io.Writer
	stdout      bool
	wg          sync.WaitGroup
	stopOnce    sync.Once
	closing     atomic.Bool
	dropped     atomic.Uint64
}

func newClientLogger() *clientLogger {
	l := &clientLogger{
		queue:       make(chan logEvent, logQueueDepth),
		done:        make(chan struct{}),
		mainWriter:  os.Stdout,
		errorWriter: io.Discard,
		debugWriter: io.Discard,
		netWriter:   io.Discard,
	}
	l.level.Store(int32(logLevelInfo))
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *clientLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case evt := <-l.queue:
			l.writeEntry(evt)
		case <-l.done:
			for {
				select {
				case evt := <-l.queue:
					l.writeEntry(evt)
				default:
					return
				}
			}
		}
	}
}

func (l *clientLogger) log(level logLevel, msg string, attrs ...any) {
	if int32(level) < l.level.Load() || l.closing.Load() {
		return
	}
	evt := logEvent{level: level, at: time.Now(), msg: msg, attrs: append([]any(nil), attrs...)}
	select {
	case l.queue <- evt:
	case <-l.done:
	default:
		// Debug chatter is shed under pressure; everything else waits.
		if level == logLevelDebug {
			l.dropped.Add(1)
			return
		}
		select {
		case l.queue <- evt:
		case <-l.done:
		}
	}
}

func (l *clientLogger) Info(msg string, attrs ...any)  { l.log(logLevelInfo, msg, attrs...) }
func (l *clientLogger) Warn(msg string, attrs ...any)  { l.log(logLevelWarn, msg, attrs...) }
func (l *clientLogger) Error(msg string, attrs ...any) { l.log(logLevelError, msg, attrs...) }
func (l *clientLogger) Debug(msg string, attrs ...any) { l.log(logLevelDebug, msg, attrs...) }

func (l *clientLogger) setLevel(level logLevel) {
	l.level.Store(int32(level))
}

func (l *clientLogger) configureWriters(main, errWriter, debug io.Writer, stdout bool) {
	l.writerMu.Lock()
	l.mainWriter = orDiscard(main)
	l.errorWriter = orDiscard(errWriter)
	l.debugWriter = orDiscard(debug)
	l.stdout = stdout
	l.writerMu.Unlock()
}

func (l *clientLogger) setNetWriter(w io.Writer) {
	l.writerMu.Lock()
	l.netWriter = orDiscard(w)
	l.writerMu.Unlock()
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func (l *clientLogger) Stop() {
	l.stopOnce.Do(func() {
		l.closing.Store(true)
		close(l.done)
		l.wg.Wait()
		l.writerMu.Lock()
		for _, w := range []io.Writer{l.mainWriter, l.errorWriter, l.debugWriter, l.netWriter} {
			closeWriter(w)
		}
		l.mainWriter = io.Discard
		l.errorWriter = io.Discard
		l.debugWriter = io.Discard
		l.netWriter = io.Discard
		l.writerMu.Unlock()
	})
}

func closeWriter(w io.Writer) {
	if closer, ok := w.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (l *clientLogger) writeEntry(evt logEvent) {
	var entry strings.Builder
	entry.WriteString(evt.at.UTC().Format(time.RFC3339Nano))
	entry.WriteString(" [")
	entry.WriteString(evt.level.String())
	entry.WriteString("] ")
	entry.WriteString(evt.msg)
	if attrs := formatAttrs(evt.attrs); attrs != "" {
		entry.WriteByte(' ')
		entry.WriteString(attrs)
	}
	entry.WriteByte('\n')
	line := []byte(entry.String())

	l.writerMu.RLock()
	mainWriter, errWriter, debugWriter, stdout := l.mainWriter, l.errorWriter, l.debugWriter, l.stdout
	l.writerMu.RUnlock()

	if stdout {
		_, _ = os.Stdout.Write(line)
	}
	if evt.level == logLevelDebug {
		_, _ = debugWriter.Write(line)
		return
	}
	_, _ = mainWriter.Write(line)
	if evt.level >= logLevelError {
		_, _ = errWriter.Write(line)
	}
}

// logNetMessage records a raw stratum frame when debug logging is enabled.
// Written synchronously since frames are already off the hot path here.
func logNetMessage(direction, endpoint string, frame []byte) {
	if !debugLogging {
		return
	}
	logger.writerMu.RLock()
	w := logger.netWriter
	logger.writerMu.RUnlock()
	line := fmt.Sprintf("%s %s %s %s\n", time.Now().UTC().Format(time.RFC3339Nano), direction, endpoint, strings.TrimRight(string(frame), "\r\n"))
	_, _ = io.WriteString(w, line)
}

func formatAttrs(attrs []any) string {
	if len(attrs) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(attrs); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fmt.Sprint(attrs[i]))
		if i+1 < len(attrs) {
			b.WriteByte('=')
			b.WriteString(fmt.Sprint(attrs[i+1]))
		}
	}
	return b.String()
}

func newDailyRollingFileWriter(path string) io.Writer {
	if path == "" {
		return io.Discard
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return &dailyRollingFileWriter{
		dir:  filepath.Dir(path),
		name: strings.TrimSuffix(base, ext),
		ext:  ext,
	}
}

type dailyRollingFileWriter struct {
	dir         string
	name        string
	ext         string
	mu          sync.Mutex
	f           *os.File
	currentDate string
}

func (w *dailyRollingFileWriter) ensureFile(now time.Time) error {
	if w.name == "" || w.dir == "" {
		return fmt.Errorf("invalid log path")
	}
	date := now.UTC().Format(time.DateOnly)
	if w.f != nil && w.currentDate == date {
		return nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	target := filepath.Join(w.dir, fmt.Sprintf("%s-%s%s", w.name, date, w.ext))
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.currentDate = date
	w.pruneOldLogs(now)
	return nil
}

func (w *dailyRollingFileWriter) pruneOldLogs(now time.Time) {
	cutoff := now.UTC().AddDate(0, 0, -(logRetentionDays - 1))
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	prefix := w.name + "-"
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, w.ext) {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), w.ext)
		ts, err := time.Parse(time.DateOnly, dateStr)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			_ = os.Remove(filepath.Join(w.dir, name))
		}
	}
}

func (w *dailyRollingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureFile(time.Now()); err != nil {
		return 0, err
	}
	return w.f.Write(p)
}

func (w *dailyRollingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func setLogLevel(level logLevel) {
	logger.setLevel(level)
	debugLogging = level <= logLevelDebug
}

// configureFileLogging points the logger at <dataDir>/logs. The debug and
// net-debug files are only opened when debug logging is on.
func configureFileLogging(dataDir string, stdout bool) error {
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	var debugWriter, netWriter io.Writer
	if debugLogging {
		debugWriter = newDailyRollingFileWriter(filepath.Join(logDir, "debug.log"))
		netWriter = newDailyRollingFileWriter(filepath.Join(logDir, "net-debug.log"))
	}
	logger.configureWriters(
		newDailyRollingFileWriter(filepath.Join(logDir, "client.log")),
		newDailyRollingFileWriter(filepath.Join(logDir, "errors.log")),
		debugWriter,
		stdout,
	)
	logger.setNetWriter(netWriter)
	return nil
}

func fatal(msg string, err error, attrs ...any) {
	logger.Error(msg, append(attrs, "error", err)...)
	logger.Stop()
	os.Exit(1)
}
