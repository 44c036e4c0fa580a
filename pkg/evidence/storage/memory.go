package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/aegis/pkg/evidence"
)

// MemoryStorage implements evidence.Storage using an in-memory map.
type MemoryStorage struct {
	records map[string]*evidence.AuditRecord
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*evidence.AuditRecord),
	}
}

// Store persists a copy of the record.
func (s *MemoryStorage) Store(ctx context.Context, record *evidence.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return evidence.NewStorageError("memory", "store", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return evidence.NewStorageError("memory", "store", fmt.Errorf("%w: %s", evidence.ErrDuplicateRecord, record.ID))
	}
	recordCopy := *record
	s.records[record.ID] = &recordCopy
	return nil
}

// QueryBySession returns a session's records, oldest first.
func (s *MemoryStorage) QueryBySession(ctx context.Context, sessionID string) ([]*evidence.AuditRecord, error) {
	return s.Query(ctx, &evidence.Query{SessionID: sessionID, SortBy: "timestamp", SortOrder: "asc"})
}

// QueryRange returns records in [start, end], oldest first.
func (s *MemoryStorage) QueryRange(ctx context.Context, start, end time.Time) ([]*evidence.AuditRecord, error) {
	return s.Query(ctx, &evidence.Query{StartTime: &start, EndTime: &end, SortBy: "timestamp", SortOrder: "asc"})
}

// Query retrieves records matching the query filters.
func (s *MemoryStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.AuditRecord, error) {
	s.mu.RLock()
	results := []*evidence.AuditRecord{}
	for _, record := range s.records {
		if matchesQuery(record, query) {
			recordCopy := *record
			results = append(results, &recordCopy)
		}
	}
	s.mu.RUnlock()

	sortRecords(results, query.SortBy, query.SortOrder)
	return paginate(results, query.Offset, query.Limit), nil
}

// QueryStream streams the results of Query.
func (s *MemoryStorage) QueryStream(ctx context.Context, query *evidence.Query) (<-chan *evidence.AuditRecord, <-chan error, error) {
	records, err := s.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	recordsCh := make(chan *evidence.AuditRecord, 100)
	errCh := make(chan error, 1)
	go func() {
		defer close(recordsCh)
		defer close(errCh)
		for _, record := range records {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}
	}()
	return recordsCh, errCh, nil
}

// Count returns the number of records matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if matchesQuery(record, query) {
			count++
		}
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, record := range s.records {
		if matchesQuery(record, query) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close drops all records.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*evidence.AuditRecord)
	return nil
}

// Size returns the number of stored records.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

func matchesQuery(record *evidence.AuditRecord, query *evidence.Query) bool {
	if query.StartTime != nil && record.Timestamp.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && record.Timestamp.After(*query.EndTime) {
		return false
	}
	if query.ExpiredBefore != nil && record.RetentionEnd.After(*query.ExpiredBefore) {
		return false
	}
	if query.SessionID != "" && record.SessionID != query.SessionID {
		return false
	}
	if query.UserID != "" && record.UserID != query.UserID {
		return false
	}
	if query.RiskLevel != "" && string(record.RiskLevel) != query.RiskLevel {
		return false
	}
	if query.ComplianceStatus != "" && string(record.ComplianceStatus) != query.ComplianceStatus {
		return false
	}
	if query.AnomalousOnly && !record.AnomalyDetected {
		return false
	}
	return true
}

// sortRecords orders records by field, newest first unless order is "asc".
// Ties break on id.
func sortRecords(records []*evidence.AuditRecord, field, order string) {
	less := func(a, b *evidence.AuditRecord) int {
		switch field {
		case "risk_score":
			if a.RiskScore != b.RiskScore {
				if a.RiskScore < b.RiskScore {
					return -1
				}
				return 1
			}
		case "retention_end":
			if c := a.RetentionEnd.Compare(b.RetentionEnd); c != 0 {
				return c
			}
		case "recorded_at":
			if c := a.RecordedAt.Compare(b.RecordedAt); c != 0 {
				return c
			}
		default:
			if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
				return c
			}
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	}

	desc := order != "asc"
	sort.SliceStable(records, func(i, j int) bool {
		c := less(records[i], records[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func paginate(records []*evidence.AuditRecord, offset, limit int) []*evidence.AuditRecord {
	if offset >= len(records) {
		return []*evidence.AuditRecord{}
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
