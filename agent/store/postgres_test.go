package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/eduverse/agent-core/agent/contract"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	return NewWithDB(sqldb), mock
}

func TestWriteRecordGeneratesID(t *testing.T) {
	t.Parallel()

	p, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO "agent_records"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := p.WriteRecord(context.Background(), &contract.Record{
		LearnerID: "l1",
		Agent:     contract.AgentTutor,
		Kind:      "tutoring_session",
		Payload:   json.RawMessage(`{"topic":"algebra"}`),
	})
	if err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if id == "" {
		t.Fatal("no id generated")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWriteRecordHonorsCallerID(t *testing.T) {
	t.Parallel()

	p, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO "agent_records"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := p.WriteRecord(context.Background(), &contract.Record{
		ID:        "exam-42",
		LearnerID: "l1",
		Agent:     contract.AgentExamCoach,
		Kind:      "exam_sheet",
		Payload:   json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if id != "exam-42" {
		t.Fatalf("id = %s, want exam-42", id)
	}
}

func TestWriteRecordValidation(t *testing.T) {
	t.Parallel()

	p, _ := newMockStore(t)

	if _, err := p.WriteRecord(context.Background(), nil); !errors.Is(err, contract.ErrValidation) {
		t.Fatalf("nil record: %v", err)
	}
	if _, err := p.WriteRecord(context.Background(), &contract.Record{Kind: "x"}); !errors.Is(err, contract.ErrValidation) {
		t.Fatalf("missing learner id: %v", err)
	}
}

func TestWriteRecordClassifiesFailure(t *testing.T) {
	t.Parallel()

	p, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO "agent_records"`).
		WillReturnError(errors.New("connection refused"))

	_, err := p.WriteRecord(context.Background(), &contract.Record{
		LearnerID: "l1",
		Agent:     contract.AgentTutor,
		Kind:      "tutoring_session",
	})
	if !errors.Is(err, contract.ErrAdapterUnavailable) {
		t.Fatalf("err = %v, want ErrAdapterUnavailable", err)
	}
}

func TestReadRecord(t *testing.T) {
	t.Parallel()

	p, mock := newMockStore(t)
	created := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "learner_id", "agent", "kind", "payload", "created_at"}).
		AddRow("rec-1", "l1", "tutor", "tutoring_session", []byte(`{"topic":"algebra"}`), created)
	mock.ExpectQuery(`SELECT .+ FROM "agent_records"`).
		WillReturnRows(rows)

	rec, err := p.ReadRecord(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if rec.ID != "rec-1" || rec.Agent != contract.AgentTutor || rec.Kind != "tutoring_session" {
		t.Fatalf("record = %+v", rec)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Fatalf("created at = %v", rec.CreatedAt)
	}
}

func TestReadRecordNotFound(t *testing.T) {
	t.Parallel()

	p, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM "agent_records"`).
		WillReturnError(sql.ErrNoRows)

	_, err := p.ReadRecord(context.Background(), "missing")
	if !errors.Is(err, contract.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestReadRecordEmptyID(t *testing.T) {
	t.Parallel()

	p, _ := newMockStore(t)
	if _, err := p.ReadRecord(context.Background(), "  "); !errors.Is(err, contract.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
