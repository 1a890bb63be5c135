package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	types "github.com/tkoivu/threadline-backend/internal/domain"
	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

// PersistableCap bounds the ToPersistable snapshot stored in thread
// metadata.
const PersistableCap = 1 << 20

// FileReference describes a file the UI uploaded during this session.
type FileReference struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
	Type string `json:"type"`
}

// Session is the per-connection ephemeral context. It survives transport
// reconnects: Restore rebinds the transport id and keeps everything else.
type Session struct {
	ID uuid.UUID

	mu                  sync.RWMutex
	transportID         string
	user                *types.PersistedUser
	threadID            uuid.UUID
	chatProfile         string
	chatSettings        map[string]interface{}
	userEnv             map[string]string
	clientType          string
	files               map[string]FileReference
	toolSessions        map[string]interface{}
	restored            bool
	hasFirstInteraction bool

	shouldStop atomic.Bool
	queue      *WriteQueue
	filesRoot  string
	log        *logger.Logger
}

type Options struct {
	TransportID string
	User        *types.PersistedUser
	UserEnv     map[string]string
	ClientType  string
	ChatProfile string
	FilesRoot   string
}

func New(log *logger.Logger, opts Options) *Session {
	id := uuid.New()
	return &Session{
		ID:           id,
		transportID:  opts.TransportID,
		user:         opts.User,
		userEnv:      opts.UserEnv,
		clientType:   opts.ClientType,
		chatProfile:  opts.ChatProfile,
		chatSettings: map[string]interface{}{},
		files:        map[string]FileReference{},
		toolSessions: map[string]interface{}{},
		queue:        NewWriteQueue(),
		filesRoot:    opts.FilesRoot,
		log:          log.With("session_id", id.String()),
	}
}

func (s *Session) TransportID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transportID
}

func (s *Session) User() *types.PersistedUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) ThreadID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threadID
}

func (s *Session) SetThreadID(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadID = id
}

func (s *Session) ChatProfile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatProfile
}

func (s *Session) ClientType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientType
}

func (s *Session) UserEnv() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.userEnv))
	for k, v := range s.userEnv {
		out[k] = v
	}
	return out
}

func (s *Session) ChatSettings() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.chatSettings))
	for k, v := range s.chatSettings {
		out[k] = v
	}
	return out
}

func (s *Session) SetChatSettings(settings map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatSettings = settings
}

func (s *Session) Restored() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restored
}

// Restore rebinds the session to a new transport connection, preserving
// identity, thread, settings and queued writes.
func (s *Session) Restore(newTransportID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transportID = newTransportID
	s.restored = true
}

func (s *Session) HasFirstInteraction() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasFirstInteraction
}

func (s *Session) MarkFirstInteraction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasFirstInteraction = true
}

func (s *Session) Queue() *WriteQueue { return s.queue }

func (s *Session) SetShouldStop(v bool) { s.shouldStop.Store(v) }

func (s *Session) ShouldStop() bool { return s.shouldStop.Load() }

// CheckCancelled is invoked at every suspension point inside a turn
// handler; there is no preemption.
func (s *Session) CheckCancelled() error {
	if s.shouldStop.Load() {
		return apperrors.ErrCancelled
	}
	return nil
}

func (s *Session) AddFile(id string, ref FileReference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = ref
}

func (s *Session) File(id string) (FileReference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.files[id]
	return ref, ok
}

func (s *Session) SetToolSession(name string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolSessions[name] = v
}

func (s *Session) ToolSession(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.toolSessions[name]
	return v, ok
}

// FilesDir is the per-session partition of the on-disk files root.
func (s *Session) FilesDir() string {
	if s.filesRoot == "" {
		return ""
	}
	return filepath.Join(s.filesRoot, s.ID.String())
}

// Delete removes the session's ephemeral files. The directory is validated
// against the configured root before removal.
func (s *Session) Delete() {
	dir := s.FilesDir()
	if dir == "" {
		return
	}
	cleanRoot := filepath.Clean(s.filesRoot)
	cleanDir := filepath.Clean(dir)
	if !strings.HasPrefix(cleanDir, cleanRoot+string(filepath.Separator)) {
		s.log.Warn("Refusing to delete files outside the session root", "dir", dir)
		return
	}
	if err := os.RemoveAll(cleanDir); err != nil {
		s.log.Warn("Failed to remove session files", "dir", dir, "error", err)
	}
}

// ToPersistable returns a JSON-clean snapshot of the session for the
// thread metadata field. Non-serializable values are replaced with null;
// a snapshot above the cap is replaced by a sentinel record.
func (s *Session) ToPersistable() map[string]interface{} {
	s.mu.RLock()
	snapshot := map[string]interface{}{
		"chat_settings": jsonClean(s.chatSettings),
		"chat_profile":  s.chatProfile,
		"client_type":   s.clientType,
	}
	if len(s.userEnv) > 0 {
		snapshot["user_env"] = s.userEnv
	}
	s.mu.RUnlock()

	raw, err := json.Marshal(snapshot)
	if err != nil || len(raw) > PersistableCap {
		return map[string]interface{}{
			"error": "session metadata exceeded the persistable size cap",
		}
	}
	return snapshot
}

func jsonClean(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = jsonClean(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, vv := range t {
			out = append(out, jsonClean(vv))
		}
		return out
	default:
		if _, err := json.Marshal(v); err != nil {
			return nil
		}
		return v
	}
}
