// Package memory is an in-process Exporter used in tests and local
// development where no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"spendscope/internal/export"
)

type Store struct {
	mu   sync.Mutex
	runs []export.RunExport

	// Err, when set, is returned by every ExportRun call.
	Err error
}

var _ export.Exporter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) ExportRun(_ context.Context, run export.RunExport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	s.runs = append(s.runs, run)
	return fmt.Sprintf("memory:%d", len(s.runs)-1), nil
}

// Runs returns a copy of everything exported so far.
func (s *Store) Runs() []export.RunExport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]export.RunExport, len(s.runs))
	copy(out, s.runs)
	return out
}
