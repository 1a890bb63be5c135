package datalayer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	types "github.com/tkoivu/threadline-backend/internal/domain"
)

// DataLayer is the durable persistence contract for conversation artifacts.
// Exactly one implementation is active per process; all implementations
// must be safe for concurrent calls from distinct sessions.
//
// Reads for missing rows return (nil, nil); only GetThreadAuthor treats
// absence as an error.
type DataLayer interface {
	GetUser(ctx context.Context, identifier string) (*types.PersistedUser, error)
	CreateUser(ctx context.Context, user *types.PersistedUser) (*types.PersistedUser, error)

	UpdateThread(ctx context.Context, threadID uuid.UUID, patch ThreadPatch) error
	GetThread(ctx context.Context, threadID uuid.UUID) (*types.Thread, error)
	GetThreadAuthor(ctx context.Context, threadID uuid.UUID) (string, error)
	ListThreads(ctx context.Context, p Pagination, f ThreadFilter) (*PaginatedResponse, error)
	DeleteThread(ctx context.Context, threadID uuid.UUID) error

	CreateStep(ctx context.Context, step *types.Step) error
	UpdateStep(ctx context.Context, step *types.Step) error
	DeleteStep(ctx context.Context, stepID uuid.UUID) error

	CreateElement(ctx context.Context, element *types.Element) error
	GetElement(ctx context.Context, threadID, elementID uuid.UUID) (*types.Element, error)
	DeleteElement(ctx context.Context, elementID uuid.UUID) error

	UpsertFeedback(ctx context.Context, feedback *types.Feedback) (uuid.UUID, error)
	DeleteFeedback(ctx context.Context, feedbackID uuid.UUID) error

	// BuildDebugURL is optional; implementations without a debug UI return "".
	BuildDebugURL(ctx context.Context) string
}

// ThreadPatch carries the non-nil fields of an UpdateThread upsert.
type ThreadPatch struct {
	Name     *string
	UserID   *uuid.UUID
	Metadata map[string]interface{}
	Tags     []string
}

type Pagination struct {
	First  int
	Cursor string
}

type ThreadFilter struct {
	UserID        uuid.UUID
	Search        string
	FeedbackValue *int
}

type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	StartCursor *string `json:"startCursor,omitempty"`
	EndCursor   *string `json:"endCursor,omitempty"`
}

type PaginatedResponse struct {
	PageInfo PageInfo        `json:"pageInfo"`
	Data     []*types.Thread `json:"data"`
}

// Cursor encodes the keyset position (createdAt, id) opaquely.
func EncodeCursor(createdAt string, id uuid.UUID) string {
	return base64.StdEncoding.EncodeToString([]byte(createdAt + "|" + id.String()))
}

func DecodeCursor(cursor string) (createdAt string, id uuid.UUID, err error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cursor))
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("bad cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return "", uuid.Nil, fmt.Errorf("bad cursor")
	}
	id, err = uuid.Parse(parts[1])
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("bad cursor: %w", err)
	}
	return parts[0], id, nil
}
