package datalayer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tkoivu/threadline-backend/internal/data/repos/testutil"
	types "github.com/tkoivu/threadline-backend/internal/domain"
	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
)

func layer(t *testing.T) *GormDataLayer {
	t.Helper()
	return NewGormDataLayer(testutil.DB(t), testutil.Logger(t))
}

func newStep(threadID uuid.UUID, stepType types.StepType, output string) *types.Step {
	at := testutil.ISOAt(0)
	return &types.Step{
		ID:        uuid.New(),
		ThreadID:  threadID,
		Type:      stepType,
		Name:      "test",
		Output:    output,
		CreatedAt: at,
		Start:     &at,
		End:       &at,
	}
}

func TestCreateStepMaterializesThreadAndParentStub(t *testing.T) {
	dl := layer(t)
	ctx := context.Background()

	threadID := uuid.New()
	parentID := uuid.New()
	child := newStep(threadID, types.StepTypeTool, "tool output")
	child.ParentID = &parentID

	if err := dl.CreateStep(ctx, child); err != nil {
		t.Fatalf("CreateStep: %v", err)
	}

	thread, err := dl.GetThread(ctx, threadID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if thread == nil {
		t.Fatal("step creation should materialize its thread")
	}
	if len(thread.Steps) != 2 {
		t.Fatalf("expected child plus stub parent, got %d steps", len(thread.Steps))
	}
	var stub *types.Step
	for _, s := range thread.Steps {
		if s.ID == parentID {
			stub = s
		}
	}
	if stub == nil {
		t.Fatal("missing parent must be materialized as a stub")
	}
	if stub.Type != types.StepTypeRun {
		t.Fatalf("stub parent should be a run step, got %q", stub.Type)
	}
	if stub.CreatedAt != child.CreatedAt {
		t.Fatal("stub parent should share the child's timestamps")
	}
}

func TestUpdateStepFallsBackToCreate(t *testing.T) {
	dl := layer(t)
	ctx := context.Background()

	step := newStep(uuid.New(), types.StepTypeAssistantMessage, "created via update")
	if err := dl.UpdateStep(ctx, step); err != nil {
		t.Fatalf("UpdateStep: %v", err)
	}
	thread, err := dl.GetThread(ctx, step.ThreadID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if thread == nil || len(thread.Steps) != 1 {
		t.Fatal("updating an absent step must create it")
	}

	step.Output = "revised"
	step.IsError = true
	if err := dl.UpdateStep(ctx, step); err != nil {
		t.Fatalf("UpdateStep (existing): %v", err)
	}
	thread, _ = dl.GetThread(ctx, step.ThreadID)
	if len(thread.Steps) != 1 {
		t.Fatalf("update must not duplicate, got %d steps", len(thread.Steps))
	}
	got := thread.Steps[0]
	if got.Output != "revised" || !got.IsError {
		t.Fatalf("update did not merge: %+v", got)
	}
	if got.CreatedAt != step.CreatedAt {
		t.Fatal("createdAt must survive updates")
	}
}

func TestStepValidation(t *testing.T) {
	dl := layer(t)
	ctx := context.Background()

	bad := newStep(uuid.New(), "rumination", "x")
	if err := dl.CreateStep(ctx, bad); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("unknown step type should be a validation error, got %v", err)
	}

	inverted := newStep(uuid.New(), types.StepTypeTool, "x")
	start := testutil.ISOAt(time.Minute)
	end := testutil.ISOAt(0)
	inverted.Start = &start
	inverted.End = &end
	if err := dl.CreateStep(ctx, inverted); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("end before start should be a validation error, got %v", err)
	}
}

func TestDeleteThreadCascades(t *testing.T) {
	dl := layer(t)
	ctx := context.Background()

	user, err := dl.CreateUser(ctx, &types.PersistedUser{Identifier: "cascade@example.com"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	threadID := uuid.New()
	if err := dl.UpdateThread(ctx, threadID, ThreadPatch{UserID: &user.ID}); err != nil {
		t.Fatalf("UpdateThread: %v", err)
	}
	step := newStep(threadID, types.StepTypeAssistantMessage, "doomed")
	if err := dl.CreateStep(ctx, step); err != nil {
		t.Fatalf("CreateStep: %v", err)
	}
	url := "https://files.example.com/doomed.txt"
	element := &types.Element{
		ID:       uuid.New(),
		ThreadID: threadID,
		ForID:    step.ID,
		Type:     "file",
		Name:     "doomed.txt",
		URL:      &url,
	}
	if err := dl.CreateElement(ctx, element); err != nil {
		t.Fatalf("CreateElement: %v", err)
	}
	if _, err := dl.UpsertFeedback(ctx, &types.Feedback{ForID: step.ID, Value: 1}); err != nil {
		t.Fatalf("UpsertFeedback: %v", err)
	}

	if err := dl.DeleteThread(ctx, threadID); err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}

	if thread, _ := dl.GetThread(ctx, threadID); thread != nil {
		t.Fatal("thread should be gone")
	}
	if e, _ := dl.GetElement(ctx, threadID, element.ID); e != nil {
		t.Fatal("elements should cascade with the thread")
	}
	db := testutil.DB(t)
	var stepCount int64
	db.Model(&types.Step{}).Where(`"threadId" = ?`, threadID).Count(&stepCount)
	if stepCount != 0 {
		t.Fatalf("steps should cascade with the thread, %d left", stepCount)
	}
	var fbCount int64
	db.Model(&types.Feedback{}).Where(`"threadId" = ?`, threadID).Count(&fbCount)
	if fbCount != 0 {
		t.Fatalf("feedback should cascade with the thread, %d left", fbCount)
	}
}

func TestListThreadsPagination(t *testing.T) {
	dl := layer(t)
	ctx := context.Background()

	user, err := dl.CreateUser(ctx, &types.PersistedUser{Identifier: "lister@example.com"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	ids := make([]uuid.UUID, 0, 5)
	for i := 0; i < 5; i++ {
		id := uuid.New()
		ids = append(ids, id)
		if err := dl.UpdateThread(ctx, id, ThreadPatch{UserID: &user.ID}); err != nil {
			t.Fatalf("UpdateThread: %v", err)
		}
	}

	seen := map[uuid.UUID]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := dl.ListThreads(ctx, Pagination{First: 2, Cursor: cursor}, ThreadFilter{UserID: user.ID})
		if err != nil {
			t.Fatalf("ListThreads: %v", err)
		}
		for _, th := range page.Data {
			if seen[th.ID] {
				t.Fatalf("thread %s appeared on two pages", th.ID)
			}
			seen[th.ID] = true
		}
		pages++
		if !page.PageInfo.HasNextPage {
			break
		}
		if page.PageInfo.EndCursor == nil {
			t.Fatal("a page with a successor needs an end cursor")
		}
		cursor = *page.PageInfo.EndCursor
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
	}
	for _, id := range ids {
		if !seen[id] {
			t.Fatalf("thread %s never appeared", id)
		}
	}
}

func TestListThreadsRequiresUser(t *testing.T) {
	dl := layer(t)
	if _, err := dl.ListThreads(context.Background(), Pagination{First: 10}, ThreadFilter{}); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("listing without a user must be unauthorized, got %v", err)
	}
}

func TestGetThreadAuthor(t *testing.T) {
	dl := layer(t)
	ctx := context.Background()

	if _, err := dl.GetThreadAuthor(ctx, uuid.New()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("missing thread must read as not found, got %v", err)
	}

	user, err := dl.CreateUser(ctx, &types.PersistedUser{Identifier: "author@example.com"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	threadID := uuid.New()
	if err := dl.UpdateThread(ctx, threadID, ThreadPatch{UserID: &user.ID}); err != nil {
		t.Fatalf("UpdateThread: %v", err)
	}
	author, err := dl.GetThreadAuthor(ctx, threadID)
	if err != nil {
		t.Fatalf("GetThreadAuthor: %v", err)
	}
	if author != "author@example.com" {
		t.Fatalf("wrong author: %q", author)
	}
}

func TestUpsertFeedbackValidatesValue(t *testing.T) {
	dl := layer(t)
	ctx := context.Background()

	step := newStep(uuid.New(), types.StepTypeAssistantMessage, "rated")
	if err := dl.CreateStep(ctx, step); err != nil {
		t.Fatalf("CreateStep: %v", err)
	}

	if _, err := dl.UpsertFeedback(ctx, &types.Feedback{ForID: step.ID, Value: 5}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("out-of-range value must be rejected, got %v", err)
	}

	id, err := dl.UpsertFeedback(ctx, &types.Feedback{ForID: step.ID, Value: 1})
	if err != nil {
		t.Fatalf("UpsertFeedback: %v", err)
	}
	again, err := dl.UpsertFeedback(ctx, &types.Feedback{ID: id, ForID: step.ID, Value: 0})
	if err != nil {
		t.Fatalf("UpsertFeedback (revise): %v", err)
	}
	if again != id {
		t.Fatalf("revision must keep the id: %s vs %s", again, id)
	}
}

func TestUpsertFeedbackOnePerStep(t *testing.T) {
	dl := layer(t)
	ctx := context.Background()

	step := newStep(uuid.New(), types.StepTypeAssistantMessage, "rated-twice")
	if err := dl.CreateStep(ctx, step); err != nil {
		t.Fatalf("CreateStep: %v", err)
	}

	first, err := dl.UpsertFeedback(ctx, &types.Feedback{ForID: step.ID, Value: 1})
	if err != nil {
		t.Fatalf("UpsertFeedback: %v", err)
	}
	comment := "changed my mind"
	second, err := dl.UpsertFeedback(ctx, &types.Feedback{ForID: step.ID, Value: 0, Comment: &comment})
	if err != nil {
		t.Fatalf("UpsertFeedback (id-less revise): %v", err)
	}
	if second != first {
		t.Fatalf("id-less revision must adopt the existing id: %s vs %s", second, first)
	}

	db := testutil.DB(t)
	var count int64
	db.Model(&types.Feedback{}).Where(`"forId" = ?`, step.ID).Count(&count)
	if count != 1 {
		t.Fatalf("a step holds at most one feedback, got %d rows", count)
	}
	var row types.Feedback
	if err := db.Where("id = ?", first).Take(&row).Error; err != nil {
		t.Fatalf("reading feedback back: %v", err)
	}
	if row.Value != 0 || row.Comment == nil || *row.Comment != comment {
		t.Fatalf("revision should replace value and comment, got %+v", row)
	}
}

func TestCreateElementRequiresResolvableSource(t *testing.T) {
	dl := layer(t)
	ctx := context.Background()

	bare := &types.Element{
		ID:       uuid.New(),
		ThreadID: uuid.New(),
		Type:     "image",
		Name:     "nowhere.png",
	}
	if err := dl.CreateElement(ctx, bare); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("element without url or object key must be rejected, got %v", err)
	}
}

func TestUpdateThreadMergesMetadata(t *testing.T) {
	dl := layer(t)
	ctx := context.Background()

	threadID := uuid.New()
	if err := dl.UpdateThread(ctx, threadID, ThreadPatch{Metadata: map[string]interface{}{"a": "1", "b": "x"}}); err != nil {
		t.Fatalf("UpdateThread: %v", err)
	}
	if err := dl.UpdateThread(ctx, threadID, ThreadPatch{Metadata: map[string]interface{}{"b": "2"}}); err != nil {
		t.Fatalf("UpdateThread (merge): %v", err)
	}
	thread, err := dl.GetThread(ctx, threadID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	got := string(thread.Metadata)
	if got == "" {
		t.Fatal("metadata missing after merge")
	}
	for _, want := range []string{`"a":"1"`, `"b":"2"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("metadata %s should contain %s", got, want)
		}
	}
}
