package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/logger"
)

// Store persists decision-flow records for later audit. Every method is
// fire-and-forget: failures are logged and never surface into the trade
// path, and no call blocks on I/O.
type Store interface {
	// SaveRecord queues one record of the given kind (decision, execution,
	// closed_trade, lifecycle_event, advisory)
	SaveRecord(kind string, record interface{})

	// Close flushes queued records and releases file handles
	Close() error
}

// envelope wraps a queued record with its kind and enqueue time
type envelope struct {
	Kind    string      `json:"kind"`
	SavedAt time.Time   `json:"saved_at"`
	Record  interface{} `json:"record"`
}

// FileStore appends records as JSON lines to per-kind files under a
// directory. Writes happen on a single background worker; a full queue
// drops the record with a warning instead of blocking the caller.
type FileStore struct {
	dir   string
	log   *logger.Logger
	queue chan envelope

	mu    sync.Mutex
	files map[string]*os.File

	done chan struct{}
	once sync.Once
}

// NewFileStore creates the directory and starts the background writer
func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if dir == "" {
		dir = "store"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &FileStore{
		dir:   dir,
		log:   log,
		queue: make(chan envelope, 256),
		files: make(map[string]*os.File),
		done:  make(chan struct{}),
	}
	go s.worker()
	return s, nil
}

// SaveRecord queues a record; never blocks
func (s *FileStore) SaveRecord(kind string, record interface{}) {
	env := envelope{Kind: kind, SavedAt: time.Now(), Record: record}
	select {
	case s.queue <- env:
	default:
		s.log.LogWarning("Store", "queue full, dropping %s record", kind)
	}
}

// worker drains the queue until Close
func (s *FileStore) worker() {
	for env := range s.queue {
		s.write(env)
	}
	close(s.done)
}

func (s *FileStore) write(env envelope) {
	line, err := json.Marshal(env)
	if err != nil {
		s.log.LogWarning("Store", "failed to marshal %s record: %v", env.Kind, err)
		return
	}

	f, err := s.file(env.Kind)
	if err != nil {
		s.log.LogWarning("Store", "failed to open %s store file: %v", env.Kind, err)
		return
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		s.log.LogWarning("Store", "failed to append %s record: %v", env.Kind, err)
	}
}

// file returns the append handle for a record kind, opening it on first use
func (s *FileStore) file(kind string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.files[kind]; ok {
		return f, nil
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.jsonl", kind, date))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	s.files[kind] = f
	return f, nil
}

// Close drains the queue and closes all open files
func (s *FileStore) Close() error {
	s.once.Do(func() {
		close(s.queue)
	})
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, f := range s.files {
		if err := f.Close(); err != nil {
			s.log.LogWarning("Store", "failed to close %s store file: %v", kind, err)
		}
	}
	s.files = make(map[string]*os.File)
	return nil
}

// NopStore discards every record. Used when persistence is disabled.
type NopStore struct{}

// SaveRecord discards the record
func (NopStore) SaveRecord(string, interface{}) {}

// Close is a no-op
func (NopStore) Close() error { return nil }
