package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tkoivu/threadline-backend/internal/data/repos/testutil"
	types "github.com/tkoivu/threadline-backend/internal/domain"
	domchat "github.com/tkoivu/threadline-backend/internal/domain/chat"
	"github.com/tkoivu/threadline-backend/internal/pkg/dbctx"
)

func TestFeedbackRepoUpsert(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewFeedbackRepo(db, testutil.Logger(t))

	user := testutil.SeedUser(t, tx, "voter@example.com")
	th := testutil.SeedThread(t, tx, user, 0)
	step := testutil.SeedStep(t, tx, th.ID, domchat.StepTypeAssistantMessage, "answer", time.Second)

	first, err := repo.Upsert(dbc, &types.Feedback{
		ForID:    step.ID,
		ThreadID: &th.ID,
		Value:    1,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if first.ID == uuid.Nil {
		t.Fatal("Upsert should assign an id")
	}

	comment := "changed my mind"
	second, err := repo.Upsert(dbc, &types.Feedback{
		ID:       first.ID,
		ForID:    step.ID,
		ThreadID: &th.ID,
		Value:    0,
		Comment:  &comment,
	})
	if err != nil {
		t.Fatalf("Upsert (revise): %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("revision must keep the id: %s vs %s", second.ID, first.ID)
	}

	rows, err := repo.ListByStep(dbc, step.ID)
	if err != nil {
		t.Fatalf("ListByStep: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("revising feedback must not add rows, got %d", len(rows))
	}
	if rows[0].Value != 0 || rows[0].Comment == nil || *rows[0].Comment != comment {
		t.Fatalf("revision did not land: %+v", rows[0])
	}
}

func TestFeedbackRepoDeleteByStep(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewFeedbackRepo(db, testutil.Logger(t))

	user := testutil.SeedUser(t, tx, "sweeper@example.com")
	th := testutil.SeedThread(t, tx, user, 0)
	kept := testutil.SeedStep(t, tx, th.ID, domchat.StepTypeAssistantMessage, "kept", time.Second)
	swept := testutil.SeedStep(t, tx, th.ID, domchat.StepTypeAssistantMessage, "swept", 2*time.Second)
	testutil.SeedFeedback(t, tx, th.ID, kept.ID, 1)
	testutil.SeedFeedback(t, tx, th.ID, swept.ID, 0)

	if err := repo.DeleteByStep(dbc, swept.ID); err != nil {
		t.Fatalf("DeleteByStep: %v", err)
	}
	remaining, err := repo.ListByStep(dbc, kept.ID)
	if err != nil {
		t.Fatalf("ListByStep: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("unrelated feedback must survive, got %d", len(remaining))
	}
	gone, err := repo.ListByStep(dbc, swept.ID)
	if err != nil {
		t.Fatalf("ListByStep (swept): %v", err)
	}
	if len(gone) != 0 {
		t.Fatalf("expected no feedback for swept step, got %d", len(gone))
	}
}
