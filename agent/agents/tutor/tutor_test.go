package tutor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	contractx "github.com/eduverse/agent-core/agent/contract"
)

type fakeMemory struct {
	lc       *contractx.LearnerContext
	readErr  error
	writeErr error
	writes   []contractx.MemoryDelta
}

func (f *fakeMemory) ReadHistory(ctx context.Context, learnerID string) (*contractx.LearnerContext, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.lc != nil {
		return f.lc, nil
	}
	return contractx.EmptyLearnerContext(learnerID), nil
}

func (f *fakeMemory) WriteUpdate(ctx context.Context, learnerID string, delta contractx.MemoryDelta) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, delta)
	return nil
}

type fakeGenerator struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (f *fakeGenerator) Complete(ctx context.Context, prompt string, params contractx.GenerateParams) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeStore struct {
	writeErr error
	records  []*contractx.Record
}

func (f *fakeStore) WriteRecord(ctx context.Context, rec *contractx.Record) (string, error) {
	if f.writeErr != nil {
		return "", f.writeErr
	}
	id := rec.ID
	if id == "" {
		id = fmt.Sprintf("rec-%d", len(f.records)+1)
	}
	stored := *rec
	stored.ID = id
	f.records = append(f.records, &stored)
	return id, nil
}

func (f *fakeStore) ReadRecord(ctx context.Context, recordID string) (*contractx.Record, error) {
	for _, rec := range f.records {
		if rec.ID == recordID {
			return rec, nil
		}
	}
	return nil, contractx.ErrRecordNotFound
}

func newTestTutor(t *testing.T, memory *fakeMemory, gen *fakeGenerator, store *fakeStore) *Tutor {
	t.Helper()
	tu, err := New(memory, gen, store, nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tu
}

func TestHandleCompleted(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{lc: &contractx.LearnerContext{
		LearnerID: "l1",
		WeakAreas: []string{"fractions"},
	}}
	gen := &fakeGenerator{response: `{"explanation":"A fraction is a part of a whole.","examples":["1/2 of a pizza"]}`}
	store := &fakeStore{}

	tu := newTestTutor(t, memory, gen, store)
	resp, err := tu.Handle(context.Background(), contractx.TutorRequest{LearnerID: "l1", Topic: "fractions"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != "completed" {
		t.Fatalf("status = %s, want completed", resp.Status)
	}
	content, ok := resp.Content.(contractx.TutorContent)
	if !ok {
		t.Fatalf("content type = %T", resp.Content)
	}
	if content.Explanation == "" {
		t.Fatal("empty explanation on completed run")
	}
	if resp.RecordID == "" {
		t.Fatal("record id missing on completed run")
	}
	if len(store.records) != 1 || store.records[0].Kind != "tutoring_session" {
		t.Fatalf("stored records = %+v", store.records)
	}
	if len(memory.writes) != 1 {
		t.Fatalf("memory writes = %d, want 1", len(memory.writes))
	}
}

func TestHandleMemoryTimeoutDegrades(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{readErr: fmt.Errorf("%w: mem0 slow", contractx.ErrAdapterTimeout)}
	gen := &fakeGenerator{response: `{"explanation":"Photosynthesis converts light to energy."}`}
	store := &fakeStore{}

	tu := newTestTutor(t, memory, gen, store)
	resp, err := tu.Handle(context.Background(), contractx.TutorRequest{LearnerID: "l1", Topic: "photosynthesis"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != "completed_degraded" {
		t.Fatalf("status = %s, want completed_degraded", resp.Status)
	}
	if !contains(resp.DegradedFields, "context") {
		t.Fatalf("degraded fields = %v, want context", resp.DegradedFields)
	}
	content := resp.Content.(contractx.TutorContent)
	if content.Explanation == "" {
		t.Fatal("degraded run lost its content")
	}
}

func TestHandlePersistFailureDegrades(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	gen := &fakeGenerator{response: `{"explanation":"Newton's second law."}`}
	store := &fakeStore{writeErr: fmt.Errorf("%w: db down", contractx.ErrAdapterUnavailable)}

	tu := newTestTutor(t, memory, gen, store)
	resp, err := tu.Handle(context.Background(), contractx.TutorRequest{LearnerID: "l1", Topic: "newton"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != "completed_degraded" {
		t.Fatalf("status = %s, want completed_degraded", resp.Status)
	}
	if !contains(resp.DegradedFields, "persistence") {
		t.Fatalf("degraded fields = %v, want persistence", resp.DegradedFields)
	}
	if resp.RecordID != "" {
		t.Fatalf("record id = %q on failed persist", resp.RecordID)
	}
	if resp.Content.(contractx.TutorContent).Explanation == "" {
		t.Fatal("content lost when persistence degraded")
	}
}

func TestHandleGeneratorFailureAborts(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	gen := &fakeGenerator{err: fmt.Errorf("%w: 503", contractx.ErrAdapterUnavailable)}
	store := &fakeStore{}

	tu := newTestTutor(t, memory, gen, store)
	_, err := tu.Handle(context.Background(), contractx.TutorRequest{LearnerID: "l1", Topic: "algebra"})
	if !errors.Is(err, contractx.ErrPipelineAborted) {
		t.Fatalf("err = %v, want ErrPipelineAborted", err)
	}
	if len(store.records) != 0 {
		t.Fatal("aborted run still wrote a record")
	}
}

func TestHandleInvalidRequest(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	tu := newTestTutor(t, &fakeMemory{}, gen, &fakeStore{})

	_, err := tu.Handle(context.Background(), contractx.TutorRequest{LearnerID: "l1"})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if gen.calls != 0 {
		t.Fatal("invalid request reached the generator")
	}
}

func TestHandleNonJSONModelOutput(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: "Algebra is the study of symbols and rules."}
	tu := newTestTutor(t, &fakeMemory{}, gen, &fakeStore{})

	resp, err := tu.Handle(context.Background(), contractx.TutorRequest{LearnerID: "l1", Topic: "algebra"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != "completed" {
		t.Fatalf("status = %s, want completed", resp.Status)
	}
	content := resp.Content.(contractx.TutorContent)
	if content.Explanation != "Algebra is the study of symbols and rules." {
		t.Fatalf("explanation = %q", content.Explanation)
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
