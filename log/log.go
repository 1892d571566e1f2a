package log

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kjk/testdesk/siser"

	"github.com/toon-format/toon-go"
)

var (
	log       *WriteDaily
	httpLog   *WriteDaily
	errorsLog *WriteDaily
	eventsLog *WriteDaily

	onLog func(s string)

	// if true, Verbosef() will log messages
	Verbose bool
)

// WriteDaily appends to a file named after the current UTC day
// (YYYY-MM-DD.txt) in Dir, switching files when the day changes
type WriteDaily struct {
	Dir         string
	currentDate int // YYYYMMDD format
	file        *os.File
	mu          sync.Mutex
}

func NewWriteDaily(dir string) *WriteDaily {
	return &WriteDaily{
		Dir: dir,
	}
}

// dayFromTime converts a time.Time to YYYYMMDD integer format
func dayFromTime(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// DailyFileName returns name of the log file for t
func DailyFileName(t time.Time) string {
	return t.UTC().Format("2006-01-02") + ".txt"
}

// Writer returns an io.Writer for today's log file
// it creates a new file if needed
func (w *WriteDaily) Writer() (io.Writer, error) {
	if w == nil {
		return nil, fmt.Errorf("w is nil")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now().UTC()
	today := dayFromTime(now)

	if w.file != nil && w.currentDate != today {
		if err := w.close(); err != nil {
			return nil, err
		}
	}

	if w.file == nil {
		if err := os.MkdirAll(w.Dir, 0755); err != nil {
			return nil, err
		}
		path := filepath.Join(w.Dir, DailyFileName(now))
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		w.file = f
		w.currentDate = today
	}
	return w.file, nil
}

// Write writes data to the daily log file
// it's safe to call on nil receiver
func (w *WriteDaily) Write(d []byte) error {
	if w == nil {
		return nil
	}
	wr, err := w.Writer()
	if err != nil {
		return err
	}
	_, err = wr.Write(d)
	return err
}

// WriteString writes a string to the daily log file
// it's safe to call on nil receiver
func (w *WriteDaily) WriteString(s string) error {
	return w.Write([]byte(s))
}

func (w *WriteDaily) close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.currentDate = 0
	return err
}

// Close closes the daily log file
// it's safe to call on nil receiver
func (w *WriteDaily) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.close()
}

// Sync flushes the daily log file to disk
// it's safe to call on nil receiver
func (w *WriteDaily) Sync() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

type Config struct {
	// directory where log files are stored
	// each log type (regular, error, event, http) has its own subdirectory
	Dir string
	// called for every Logf() call
	OnLog func(s string)
}

// Init initializes the logging system
// log files are stored in config.Dir
func Init(config *Config) {
	Close()
	onLog = config.OnLog
	dir := config.Dir
	if dir == "" {
		return
	}
	log = NewWriteDaily(filepath.Join(dir, "log"))
	errorsLog = NewWriteDaily(filepath.Join(dir, "errors"))
	// those don't create files until first write
	httpLog = NewWriteDaily(filepath.Join(dir, "http"))
	eventsLog = NewWriteDaily(filepath.Join(dir, "events"))
}

// CloseWriteDaily closes the WriteDaily and sets its pointer to nil
// it's safe to call with nil pointer
func CloseWriteDaily(wd **WriteDaily) {
	if *wd == nil {
		return
	}
	_ = (*wd).Sync()
	_ = (*wd).Close()
	*wd = nil
}

func Close() {
	CloseWriteDaily(&log)
	CloseWriteDaily(&httpLog)
	CloseWriteDaily(&errorsLog)
	CloseWriteDaily(&eventsLog)
	onLog = nil
}

func Logf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	fmt.Print(s)
	_ = log.WriteString(s)
	if onLog != nil {
		onLog(s)
	}
}

func Verbosef(format string, args ...any) {
	if !Verbose {
		return
	}
	Logf(format, args...)
}

func GetCallstackFrames(skip int) []string {
	var callers [32]uintptr
	n := runtime.Callers(skip+1, callers[:])
	frames := runtime.CallersFrames(callers[:n])
	var cs []string
	for {
		frame, more := frames.Next()
		cs = append(cs, frame.File+":"+strconv.Itoa(frame.Line))
		if !more {
			break
		}
	}
	return cs
}

func GetCallstack(skip int) string {
	frames := GetCallstackFrames(skip + 1)
	return strings.Join(frames, "\n")
}

// Errorf logs an error message along with the callstack
// to the regular log and the errors log
func Errorf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	cs := GetCallstack(2)
	s = fmt.Sprintf("%s\n%s\n", strings.TrimSuffix(s, "\n"), cs)
	Logf("%s", s)
	_ = errorsLog.WriteString(s)
}

// if err != nil, log and return true
// IfErrf(err) => logs err.Error()
// IfErrf(err, "error is: %v", err) => logs message formatted
func IfErrf(err error, a ...any) bool {
	if err == nil {
		return false
	}
	if len(a) == 0 {
		Errorf("%s", err.Error())
		return true
	}
	s, ok := a[0].(string)
	if !ok {
		s = fmt.Sprintf("%v", a[0])
	}
	if len(a) > 1 {
		s = fmt.Sprintf(s, a[1:]...)
	}
	Errorf("%s", s)
	return true
}

func panicIf(cond bool, msg string) {
	if cond {
		panic(msg)
	}
}

// simpleTypeToStr converts simple types to string
// panics if v is of complex type
func simpleTypeToStr(v any) string {
	kind := reflect.TypeOf(v).Kind()
	switch kind {
	case reflect.Array, reflect.Slice, reflect.Struct, reflect.Map, reflect.Chan, reflect.Interface, reflect.Pointer:
		panic(fmt.Sprintf("toStr: value is of kind %v", kind))
	case reflect.String:
		return v.(string)
	}
	return fmt.Sprintf("%v", v)
}

// Event logs event with key/value pairs in toon format, framed as a siser
// record named name in the events log
func Event(name string, vals ...any) {
	n := len(vals)
	panicIf(n%2 != 0, "Event: odd number of vals")
	var d []byte
	if n > 0 {
		m := map[string]any{}
		for i := 0; i < n; i += 2 {
			k := simpleTypeToStr(vals[i])
			m[k] = vals[i+1]
		}
		var err error
		d, err = toon.Marshal(m)
		if err != nil {
			Errorf("Event: toon.Marshal() failed with '%s'", err)
			return
		}
	}
	d2 := siser.MarshalLine(name, time.Now().UTC(), d, nil)
	_ = eventsLog.Write(d2)
	Verbosef("event %s %s\n", name, strings.ReplaceAll(string(d), "\n", ", "))
}

// EventRecord is an event read back from the events log
type EventRecord struct {
	Name string
	Time time.Time
	Data string
}

// ReadEvents reads events logged on day t from events log in dir
func ReadEvents(dir string, t time.Time) ([]EventRecord, error) {
	path := filepath.Join(dir, "events", DailyFileName(t))
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var res []EventRecord
	r := siser.NewReader(f)
	for r.ReadNext() {
		res = append(res, EventRecord{
			Name: r.Name,
			Time: r.Timestamp,
			Data: string(r.Data),
		})
	}
	return res, r.Err()
}

func pickFirst(s string) string {
	parts := strings.Split(s, ",")
	return strings.TrimSpace(parts[0])
}

// BestRemoteAddress picks the most accurate IP address from client request
// needed because of proxies
func BestRemoteAddress(r *http.Request) string {
	h := r.Header
	potentials := []string{h.Get("CF-Connecting-IP"), h.Get("X-Real-Ip"), h.Get("X-Forwarded-For"), r.RemoteAddr}
	for _, v := range potentials {
		if v != "" {
			return pickFirst(v)
		}
	}
	return ""
}

// HTTPRequest logs a request as a JSON line in the http log
func HTTPRequest(r *http.Request, reqID string, code int, nWritten int64, dur time.Duration) error {
	rawQuery := r.URL.RawQuery
	if len(rawQuery) > 128 {
		rawQuery = rawQuery[:128]
	}

	entry := map[string]any{
		"ts":     time.Now().UTC().Unix(),
		"id":     reqID,
		"method": r.Method,
		"url":    r.URL.Path,
		"query":  rawQuery,
		"ip":     BestRemoteAddress(r),
		"code":   code,
		"size":   nWritten,
		"dur":    float64(dur.Microseconds()) / 1000.0, // milliseconds with decimal precision
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry["ua"] = ua
	}
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		entry["content_type"] = contentType
	}

	buf := &strings.Builder{}
	encoder := json.NewEncoder(buf)
	// avoid unnecessary escaping
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(entry); err != nil {
		return err
	}
	// Encode adds a newline
	return httpLog.WriteString(buf.String())
}
