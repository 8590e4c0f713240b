package access

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tkingovr/routegate/api"
)

// DefaultMemoryRecords bounds the records kept in memory for queries.
const DefaultMemoryRecords = 10000

// JSONLStore appends records to one JSONL file per day and keeps the most
// recent ones in memory for queries and stats.
type JSONLStore struct {
	mu          sync.Mutex
	dir         string
	currentDate string
	file        *os.File
	writer      *bufio.Writer

	records []*api.AccessRecord
	maxMem  int

	subMu   sync.RWMutex
	subs    map[int]chan *api.AccessRecord
	nextSub int
}

// Option configures a JSONLStore.
type Option func(*JSONLStore)

// WithMemoryRecords overrides DefaultMemoryRecords.
func WithMemoryRecords(n int) Option {
	return func(s *JSONLStore) {
		if n > 0 {
			s.maxMem = n
		}
	}
}

// NewJSONLStore creates a store writing to dir, creating it if needed.
func NewJSONLStore(dir string, opts ...Option) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating access log directory: %w", err)
	}
	s := &JSONLStore{
		dir:    dir,
		maxMem: DefaultMemoryRecords,
		subs:   make(map[int]chan *api.AccessRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *JSONLStore) Write(_ context.Context, record *api.AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	dateStr := record.Timestamp.Format("2006-01-02")
	if dateStr != s.currentDate {
		if err := s.rotate(dateStr); err != nil {
			return err
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling access record: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}

	if len(s.records) >= s.maxMem {
		s.records = s.records[1:]
	}
	s.records = append(s.records, record)

	s.notifySubscribers(record)
	return nil
}

func (s *JSONLStore) Query(_ context.Context, filter api.QueryFilter) ([]*api.AccessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*api.AccessRecord
	for _, r := range s.records {
		if matchesFilter(r, filter) {
			results = append(results, r)
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return nil, nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *JSONLStore) Stats(_ context.Context) (*api.AccessStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &api.AccessStats{
		ByRoute:  make(map[string]int),
		ByStatus: make(map[int]int),
	}
	for _, r := range s.records {
		stats.TotalRequests++
		switch {
		case r.Status >= 500:
			stats.ServerErrors++
		case r.Status >= 400:
			stats.ClientErrors++
		default:
			stats.SuccessCount++
		}
		if r.Route != "" {
			stats.ByRoute[r.Route]++
		}
		stats.ByStatus[r.Status]++
	}
	return stats, nil
}

func (s *JSONLStore) Subscribe(_ context.Context) (<-chan *api.AccessRecord, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan *api.AccessRecord, 100)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		err := s.file.Close()
		s.file, s.writer, s.currentDate = nil, nil, ""
		return err
	}
	return nil
}

func (s *JSONLStore) rotate(dateStr string) error {
	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return err
		}
	}

	path := filepath.Join(s.dir, dateStr+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("opening access log file: %w", err)
	}
	s.file = f
	s.writer = bufio.NewWriter(f)
	s.currentDate = dateStr
	return nil
}

func (s *JSONLStore) notifySubscribers(record *api.AccessRecord) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- record:
		default:
			// slow subscriber
		}
	}
}

func matchesFilter(r *api.AccessRecord, f api.QueryFilter) bool {
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.Timestamp.After(f.Until) {
		return false
	}
	if f.Method != "" && r.Method != f.Method {
		return false
	}
	if f.Route != "" && r.Route != f.Route {
		return false
	}
	if f.Status != 0 && r.Status != f.Status {
		return false
	}
	if f.OnlyError && r.Status < 400 {
		return false
	}
	return true
}
