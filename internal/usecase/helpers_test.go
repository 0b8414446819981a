package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"GradScrape/internal/domain"
	"GradScrape/internal/infrastructure/storage"
	"GradScrape/internal/ports"
)

func newMemStore(t *testing.T) *storage.MemStore {
	t.Helper()
	store, err := storage.NewMemStore()
	require.NoError(t, err)
	return store
}

func candidate(institution string, gpa float64, comment string) domain.ApplicantRecord {
	return domain.ApplicantRecord{
		Institution:  institution,
		Program:      "Computer Science",
		DecisionDate: time.Date(2024, time.February, 20, 0, 0, 0, 0, time.UTC),
		Outcome:      domain.OutcomeAccepted,
		Term:         "Fall 2024",
		Citizenship:  "American",
		Degree:       "Masters",
		GPA:          domain.Float(gpa),
		Comment:      comment,
	}
}

func countRecords(t *testing.T, store ports.RecordStore) int {
	t.Helper()
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	return n
}

// faultyStore injects failures into selected InTx calls (1-based).
type faultyStore struct {
	ports.RecordStore

	mu    sync.Mutex
	calls int
	fail  func(call int) error
}

func (f *faultyStore) InTx(ctx context.Context, fn func(tx ports.RecordTx) error) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(call); err != nil {
			return err
		}
	}
	return f.RecordStore.InTx(ctx, fn)
}

func (f *faultyStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubSource struct {
	entries []domain.RawEntry
	err     error
	panics  bool
	// release, when set, blocks FetchRawEntries until closed.
	release chan struct{}
	started chan struct{}
}

func (s *stubSource) FetchRawEntries(ctx context.Context) ([]domain.RawEntry, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	if s.panics {
		panic("source exploded")
	}
	return s.entries, s.err
}

// entryCleaner maps a raw entry onto a record; a "reject" decision rejects it.
type entryCleaner struct{}

func (entryCleaner) Normalize(entry domain.RawEntry) (domain.ApplicantRecord, error) {
	if entry.Decision == "reject" {
		return domain.ApplicantRecord{}, domain.Reject("test rejection")
	}
	rec := candidate(entry.University, 3.5, entry.Text)
	rec.Program = entry.Program
	rec.SourceURL = entry.EntryURL
	return rec, nil
}

func rawEntries(n int) []domain.RawEntry {
	entries := make([]domain.RawEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, domain.RawEntry{
			University: fmt.Sprintf("University %02d", i),
			Program:    "Physics",
			Text:       "comment",
		})
	}
	return entries
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Publish(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.err
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type stubStandardizer struct {
	out []domain.ProgramRef
	err error
}

func (s stubStandardizer) Standardize(ctx context.Context, refs []domain.ProgramRef) ([]domain.ProgramRef, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.out != nil {
		return s.out, nil
	}
	out := make([]domain.ProgramRef, len(refs))
	for i, ref := range refs {
		ref.LLMProgram = "Std " + ref.Program
		ref.LLMUniversity = "Std " + ref.University
		out[i] = ref
	}
	return out, nil
}
