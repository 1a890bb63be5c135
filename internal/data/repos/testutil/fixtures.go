package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/domain/chat"
)

// ISOAt formats an offset from a fixed base instant, so fixtures get
// stable, strictly ordered timestamps.
func ISOAt(offset time.Duration) string {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return base.Add(offset).UTC().Format(chat.ISOFormat)
}

func SeedUser(tb testing.TB, tx *gorm.DB, identifier string) *types.PersistedUser {
	tb.Helper()
	u := &types.PersistedUser{
		ID:         uuid.New(),
		Identifier: identifier,
		Metadata:   []byte(`{}`),
		CreatedAt:  ISOAt(0),
	}
	if err := tx.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedThread(tb testing.TB, tx *gorm.DB, user *types.PersistedUser, offset time.Duration) *types.Thread {
	tb.Helper()
	name := fmt.Sprintf("thread-%s", ISOAt(offset))
	th := &types.Thread{
		ID:        uuid.New(),
		Name:      &name,
		CreatedAt: ISOAt(offset),
		UpdatedAt: ISOAt(offset),
	}
	if user != nil {
		th.UserID = &user.ID
		th.UserIdentifier = &user.Identifier
	}
	if err := tx.Create(th).Error; err != nil {
		tb.Fatalf("seed thread: %v", err)
	}
	return th
}

func SeedStep(tb testing.TB, tx *gorm.DB, threadID uuid.UUID, stepType chat.StepType, output string, offset time.Duration) *types.Step {
	tb.Helper()
	at := ISOAt(offset)
	s := &types.Step{
		ID:        uuid.New(),
		ThreadID:  threadID,
		Type:      stepType,
		Name:      "fixture",
		Output:    output,
		Metadata:  []byte(`{}`),
		CreatedAt: at,
		Start:     &at,
		End:       &at,
	}
	if err := tx.Create(s).Error; err != nil {
		tb.Fatalf("seed step: %v", err)
	}
	return s
}

func SeedElement(tb testing.TB, tx *gorm.DB, threadID, forID uuid.UUID, name string) *types.Element {
	tb.Helper()
	url := "https://files.example.com/" + name
	e := &types.Element{
		ID:        uuid.New(),
		ThreadID:  threadID,
		ForID:     forID,
		Type:      chat.ElementTypeFile,
		Name:      name,
		Display:   chat.ElementDisplaySide,
		URL:       &url,
		CreatedAt: ISOAt(0),
	}
	if err := tx.Create(e).Error; err != nil {
		tb.Fatalf("seed element: %v", err)
	}
	return e
}

func SeedFeedback(tb testing.TB, tx *gorm.DB, threadID, forID uuid.UUID, value int) *types.Feedback {
	tb.Helper()
	f := &types.Feedback{
		ID:       uuid.New(),
		ForID:    forID,
		ThreadID: &threadID,
		Value:    value,
	}
	if err := tx.Create(f).Error; err != nil {
		tb.Fatalf("seed feedback: %v", err)
	}
	return f
}
