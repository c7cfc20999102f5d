package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/axomx/reward-ledger/internal/middleware"
	"github.com/axomx/reward-ledger/pkg/logger"
)

// AuditEntry records one admin request.
type AuditEntry struct {
	Time       time.Time `json:"time"`
	Subject    string    `json:"subject"`
	Role       string    `json:"role"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	Status     int       `json:"status"`
	TraceID    string    `json:"trace_id,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}

// AuditSink persists audit entries beyond the in-memory window.
type AuditSink interface {
	Write(entry AuditEntry) error
}

type auditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	max     int
	sink    AuditSink
	log     *logger.Logger
}

func newAuditLog(max int, sink AuditSink, log *logger.Logger) *auditLog {
	if max <= 0 {
		max = 200
	}
	return &auditLog{max: max, sink: sink, log: log}
}

func (l *auditLog) add(entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		if err := l.sink.Write(entry); err != nil {
			l.log.WithError(err).Warn("audit sink write failed")
		}
	}
}

func (l *auditLog) list() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *auditLog) listLimit(limit int) []AuditEntry {
	if limit <= 0 || limit > l.max {
		limit = l.max
	}
	all := l.list()
	if len(all) <= limit {
		return all
	}
	return all[len(all)-limit:]
}

// middleware records every request that passed admin authentication.
func (l *auditLog) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		l.add(AuditEntry{
			Time:       time.Now().UTC(),
			Subject:    middleware.Subject(r.Context()),
			Role:       middleware.Role(r.Context()),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			TraceID:    middleware.TraceID(r.Context()),
			RemoteAddr: r.RemoteAddr,
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// FileAuditSink appends audit entries as JSONL.
type FileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileAuditSink opens path for appending. An empty path yields a nil sink.
func NewFileAuditSink(path string) (*FileAuditSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &FileAuditSink{file: f}, nil
}

func (s *FileAuditSink) Write(entry AuditEntry) error {
	if s == nil || s.file == nil {
		return nil
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}

// Close closes the underlying file.
func (s *FileAuditSink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}
