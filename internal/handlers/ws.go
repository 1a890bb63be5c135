package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/datatypes"

	"github.com/tkoivu/threadline-backend/internal/datalayer"
	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/domain/chat"
	"github.com/tkoivu/threadline-backend/internal/emitter"
	"github.com/tkoivu/threadline-backend/internal/hooks"
	"github.com/tkoivu/threadline-backend/internal/middleware"
	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
	"github.com/tkoivu/threadline-backend/internal/realtime"
	"github.com/tkoivu/threadline-backend/internal/realtime/bus"
	"github.com/tkoivu/threadline-backend/internal/session"
	"github.com/tkoivu/threadline-backend/internal/storage"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 4 << 20
	mailboxBuffer = 128
	hookTimeout   = 10 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The UI is served from a different origin in development; auth is
	// enforced by token, not origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type SocketHandler struct {
	log       *logger.Logger
	dl        datalayer.DataLayer
	hub       *realtime.Hub
	bus       bus.Bus
	sessions  *session.Registry
	hooks     *hooks.Registry
	store     storage.Client
	auth      *middleware.AuthMiddleware
	filesRoot string
}

func NewSocketHandler(
	log *logger.Logger,
	dl datalayer.DataLayer,
	hub *realtime.Hub,
	b bus.Bus,
	sessions *session.Registry,
	hookSet *hooks.Registry,
	store storage.Client,
	auth *middleware.AuthMiddleware,
	filesRoot string,
) *SocketHandler {
	return &SocketHandler{
		log:       log.With("Handler", "SocketHandler"),
		dl:        dl,
		hub:       hub,
		bus:       b,
		sessions:  sessions,
		hooks:     hookSet,
		store:     store,
		auth:      auth,
		filesRoot: filesRoot,
	}
}

// connection is the per-socket state assembled during the handshake.
type connection struct {
	conn    *websocket.Conn
	client  *realtime.Client
	sess    *session.Session
	em      *emitter.Emitter
	mailbox chan realtime.InboundFrame
	log     *logger.Logger
}

// HandleConnection upgrades the socket and runs it until the peer goes
// away. Inbound frames are dispatched strictly in arrival order through a
// single mailbox goroutine; only stop frames bypass the mailbox so an
// interrupt can land while a handler is running.
func (sh *SocketHandler) HandleConnection(c *gin.Context) {
	user, ok := sh.authenticate(c)
	if !ok {
		return
	}

	transportID := c.Query("transport_id")
	if transportID == "" {
		transportID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sh.log.Warn("Socket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	sess := sh.attachSession(c, transportID, user)
	client := sh.hub.NewClient(transportID, sess.ID)
	queued := datalayer.Queued(sh.dl, sess, sh.log)
	em := emitter.New(sh.log, sess, queued, sh.store, sh.bus)

	cn := &connection{
		conn:    conn,
		client:  client,
		sess:    sess,
		em:      em,
		mailbox: make(chan realtime.InboundFrame, mailboxBuffer),
		log:     sh.log.With("transport_id", transportID, "session_id", sess.ID.String()),
	}

	go cn.writePump(sh.hub)
	go sh.dispatchPump(cn)

	sh.handshake(c, cn)
	sh.readPump(cn)
}

// authenticate resolves (and lazily persists) the calling user. Without a
// configured secret the instance runs anonymous.
func (sh *SocketHandler) authenticate(c *gin.Context) (*types.PersistedUser, bool) {
	if sh.auth == nil {
		return nil, true
	}
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("Authorization")
	}
	claims, err := sh.auth.Verify(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
		return nil, false
	}
	ctx := c.Request.Context()
	user, err := sh.dl.GetUser(ctx, claims.Identifier)
	if err != nil {
		sh.log.Warn("User lookup failed during handshake", "error", err)
	}
	if user == nil {
		meta, _ := json.Marshal(claims.Metadata)
		user, err = sh.dl.CreateUser(ctx, &types.PersistedUser{
			Identifier: claims.Identifier,
			Metadata:   meta,
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not persist user"})
			return nil, false
		}
	}
	return user, true
}

// attachSession reuses an existing session when the client reconnects
// with a known session id, otherwise creates a fresh one.
func (sh *SocketHandler) attachSession(c *gin.Context, transportID string, user *types.PersistedUser) *session.Session {
	if sid, err := uuid.Parse(c.Query("session_id")); err == nil {
		if existing, ok := sh.sessions.ByID(sid); ok {
			sh.sessions.Rebind(existing, transportID)
			return existing
		}
	}
	sess := session.New(sh.log, session.Options{
		TransportID: transportID,
		User:        user,
		UserEnv:     decodeUserEnv(c.Query("user_env")),
		ClientType:  c.Query("client_type"),
		ChatProfile: c.Query("chat_profile"),
		FilesRoot:   sh.filesRoot,
	})
	sh.sessions.Add(sess)
	return sess
}

func decodeUserEnv(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	env := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil
	}
	return env
}

// handshake pushes the session id, chat profiles and either the resume
// payload or the chat-start hook.
func (sh *SocketHandler) handshake(c *gin.Context, cn *connection) {
	ctx := context.Background()
	_ = sh.bus.Publish(ctx, realtime.Message{
		Channel: cn.sess.TransportID(),
		Event:   realtime.EventConnected,
		Data: gin.H{
			"sessionId": cn.sess.ID,
			"restored":  cn.sess.Restored(),
		},
	})

	if sh.hooks.ChatProfiles != nil {
		profiles, err := sh.hooks.ChatProfiles(ctx, cn.sess.User())
		if err != nil {
			cn.log.Warn("Chat profile hook failed", "error", err)
		} else if len(profiles) > 0 {
			_ = sh.bus.Publish(ctx, realtime.Message{
				Channel: cn.sess.TransportID(),
				Event:   realtime.EventSetChatProfiles,
				Data:    profiles,
			})
		}
	}

	if sh.hooks.Starters != nil {
		starters, err := sh.hooks.Starters(ctx, cn.sess.User())
		if err != nil {
			cn.log.Warn("Starters hook failed", "error", err)
		} else if len(starters) > 0 {
			_ = sh.bus.Publish(ctx, realtime.Message{
				Channel: cn.sess.TransportID(),
				Event:   realtime.EventSetStarters,
				Data:    starters,
			})
		}
	}

	if cn.sess.Restored() {
		return
	}
	if resumeID, err := uuid.Parse(c.Query("thread_id_to_resume")); err == nil {
		sh.resumeThread(ctx, cn, resumeID)
		return
	}
	if sh.hooks.OnChatStart != nil {
		cn.runHook("on_chat_start", func(ctx context.Context) error {
			return sh.hooks.OnChatStart(ctx, cn.em)
		})
	}
}

// resumeThread reattaches the session to a persisted thread after an
// ownership check, replays it to the UI and fires the resume hook. A
// resumed session persists immediately; the write queue never defers for
// it.
func (sh *SocketHandler) resumeThread(ctx context.Context, cn *connection, threadID uuid.UUID) {
	identifier := ""
	if u := cn.sess.User(); u != nil {
		identifier = u.Identifier
	}
	author, err := sh.dl.GetThreadAuthor(ctx, threadID)
	if err != nil || author == "" || author != identifier {
		cn.log.Warn("Refusing thread resume", "thread_id", threadID, "error", err)
		_ = sh.bus.Publish(ctx, realtime.Message{Channel: cn.sess.TransportID(), Event: realtime.EventReload})
		return
	}
	thread, err := sh.dl.GetThread(ctx, threadID)
	if err != nil || thread == nil {
		cn.log.Warn("Thread vanished during resume", "thread_id", threadID, "error", err)
		_ = sh.bus.Publish(ctx, realtime.Message{Channel: cn.sess.TransportID(), Event: realtime.EventReload})
		return
	}
	cn.sess.SetThreadID(threadID)
	cn.sess.MarkFirstInteraction()
	_ = cn.em.ResumeThread(ctx, thread)
	if sh.hooks.OnChatResume != nil {
		cn.runHook("on_chat_resume", func(ctx context.Context) error {
			return sh.hooks.OnChatResume(ctx, cn.em, thread)
		})
	}
}

// readPump owns the socket read side. Stop frames act immediately;
// everything else is ordered through the mailbox.
func (sh *SocketHandler) readPump(cn *connection) {
	defer func() {
		close(cn.mailbox)
		sh.hub.CloseClient(cn.client)
	}()
	cn.conn.SetReadDeadline(time.Now().Add(pongWait))
	cn.conn.SetPongHandler(func(string) error {
		cn.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var frame realtime.InboundFrame
		if err := cn.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cn.log.Debug("Socket closed unexpectedly", "error", err)
			}
			return
		}
		switch frame.Event {
		case realtime.EventStop:
			sh.handleStop(cn)
		case realtime.EventDisconnect:
			return
		default:
			select {
			case cn.mailbox <- frame:
			default:
				cn.log.Warn("Mailbox full, dropping frame", "event", frame.Event)
			}
		}
	}
}

// dispatchPump drains the mailbox one frame at a time, which is what
// guarantees per-session ordering of hook invocations.
func (sh *SocketHandler) dispatchPump(cn *connection) {
	for frame := range cn.mailbox {
		sh.dispatch(cn, frame)
	}
	if sh.hooks.OnChatEnd != nil {
		cn.runHook("on_chat_end", func(ctx context.Context) error {
			return sh.hooks.OnChatEnd(ctx, cn.em)
		})
	}
}

func (sh *SocketHandler) dispatch(cn *connection, frame realtime.InboundFrame) {
	// A fresh frame clears any prior interrupt.
	cn.sess.SetShouldStop(false)
	switch frame.Event {
	case realtime.EventUIMessage, realtime.EventEditMessage:
		sh.handleUIMessage(cn, frame)
	case realtime.EventActionCall:
		sh.handleActionCall(cn, frame)
	case realtime.EventElementInteraction:
		sh.handleElementInteraction(cn, frame)
	case realtime.EventChatSettingsChange:
		sh.handleSettingsChange(cn, frame)
	case realtime.EventAudioChunk:
		sh.handleAudioChunk(cn, frame)
	case realtime.EventAudioEnd:
		if sh.hooks.OnAudioEnd != nil {
			cn.runHook("on_audio_end", func(ctx context.Context) error {
				return sh.hooks.OnAudioEnd(ctx, cn.em)
			})
		}
	case realtime.EventClearSession:
		sh.clearSession(cn)
	default:
		cn.log.Debug("Ignoring unknown inbound event", "event", frame.Event)
	}
}

type uiMessagePayload struct {
	ID       *uuid.UUID      `json:"id"`
	Output   string          `json:"output"`
	Metadata json.RawMessage `json:"metadata"`
	FileIDs  []string        `json:"fileIds"`
}

// handleUIMessage turns an inbound user message into a persisted step
// and hands it to the message hook. When an ask is pending the message is
// its answer instead.
func (sh *SocketHandler) handleUIMessage(cn *connection, frame realtime.InboundFrame) {
	var payload uiMessagePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		cn.log.Warn("Malformed ui_message payload", "error", err)
		return
	}

	if cn.sess.ThreadID() == uuid.Nil {
		cn.sess.SetThreadID(uuid.New())
	}
	now := chat.ISONow()
	step := &types.Step{
		ID:        uuid.New(),
		ThreadID:  cn.sess.ThreadID(),
		Type:      chat.StepTypeUserMessage,
		Name:      displayName(cn.sess.User()),
		Output:    payload.Output,
		Metadata:  datatypes.JSON(payload.Metadata),
		CreatedAt: now,
		Start:     &now,
		End:       &now,
	}
	if payload.ID != nil {
		step.ID = *payload.ID
	}

	files := make([]session.FileReference, 0, len(payload.FileIDs))
	for _, id := range payload.FileIDs {
		if ref, ok := cn.sess.File(id); ok {
			files = append(files, ref)
		}
	}

	if cn.em.ResolveAsk(&emitter.AskReply{Step: step, Files: files}) {
		return
	}

	ctx := context.Background()
	if err := cn.em.Session().CheckCancelled(); err != nil {
		return
	}
	wasFirst := !cn.sess.HasFirstInteraction()
	if err := cn.persistUserStep(ctx, step); err != nil {
		cn.log.Warn("Failed to persist user message", "error", err)
	}
	if wasFirst {
		// The thread just became durable; stamp its author and give it
		// the first message as a provisional name.
		patch := datalayer.ThreadPatch{}
		if u := cn.sess.User(); u != nil {
			patch.UserID = &u.ID
		}
		if name := payload.Output; name != "" {
			patch.Name = &name
		}
		if err := sh.dl.UpdateThread(ctx, cn.sess.ThreadID(), patch); err != nil {
			cn.log.Warn("Failed to stamp thread author", "error", err)
		}
		_ = cn.em.FirstInteraction(ctx, payload.Output)
	}

	if sh.hooks.OnMessage != nil {
		cn.runHook("on_message", func(ctx context.Context) error {
			return sh.hooks.OnMessage(ctx, cn.em, step)
		})
	}
}

func (cn *connection) persistUserStep(ctx context.Context, step *types.Step) error {
	// Route through the emitter so the flush-on-first-message contract
	// and stream bookkeeping both apply; the UI already rendered its own
	// message, the echo is idempotent by id.
	return cn.em.SendStep(ctx, step)
}

func displayName(user *types.PersistedUser) string {
	if user != nil {
		return user.Identifier
	}
	return "anonymous"
}

func (sh *SocketHandler) handleActionCall(cn *connection, frame realtime.InboundFrame) {
	var action hooks.Action
	if err := json.Unmarshal(frame.Data, &action); err != nil {
		cn.log.Warn("Malformed action_call payload", "error", err)
		return
	}
	if cn.em.ResolveAsk(&emitter.AskReply{Action: map[string]any{
		"id":      action.ID,
		"name":    action.Name,
		"forId":   action.ForID,
		"payload": action.Payload,
	}}) {
		return
	}
	if sh.hooks.OnAction != nil {
		cn.runHook("on_action", func(ctx context.Context) error {
			return sh.hooks.OnAction(ctx, cn.em, &action)
		})
	}
}

func (sh *SocketHandler) handleElementInteraction(cn *connection, frame realtime.InboundFrame) {
	// Element interactions only ever answer a pending element ask.
	if !cn.em.ResolveAsk(&emitter.AskReply{Payload: frame.Data}) {
		cn.log.Debug("Element interaction with no pending ask")
	}
}

func (sh *SocketHandler) handleSettingsChange(cn *connection, frame realtime.InboundFrame) {
	settings := map[string]interface{}{}
	if err := json.Unmarshal(frame.Data, &settings); err != nil {
		cn.log.Warn("Malformed chat_settings_change payload", "error", err)
		return
	}
	cn.sess.SetChatSettings(settings)
	if sh.hooks.OnSettingsUpdate != nil {
		cn.runHook("on_settings_update", func(ctx context.Context) error {
			return sh.hooks.OnSettingsUpdate(ctx, cn.em, settings)
		})
	}
}

type audioChunkPayload struct {
	Data string `json:"data"`
}

func (sh *SocketHandler) handleAudioChunk(cn *connection, frame realtime.InboundFrame) {
	if sh.hooks.OnAudioChunk == nil {
		return
	}
	var payload audioChunkPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		cn.log.Warn("Malformed audio_chunk payload", "error", err)
		return
	}
	chunk, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		cn.log.Warn("Audio chunk is not valid base64", "error", err)
		return
	}
	cn.runHook("on_audio_chunk", func(ctx context.Context) error {
		return sh.hooks.OnAudioChunk(ctx, cn.em, chunk)
	})
}

// handleStop flips the cancellation flag so the running hook fails at its
// next emit, then notifies the stop hook.
func (sh *SocketHandler) handleStop(cn *connection) {
	cn.sess.SetShouldStop(true)
	cn.em.ResolveAsk(nil)
	_ = cn.em.TaskEnd(context.Background())
	if sh.hooks.OnStop != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := sh.hooks.OnStop(ctx, cn.em); err != nil {
				cn.log.Warn("Stop hook failed", "error", err)
			}
		}()
	}
}

// clearSession discards queued writes, scratch files and the session
// itself. Nothing that was deferred ever reaches the data layer.
func (sh *SocketHandler) clearSession(cn *connection) {
	dropped := cn.sess.Queue().Discard()
	if dropped > 0 {
		cn.log.Debug("Discarded deferred writes", "count", dropped)
	}
	if sh.hooks.OnChatEnd != nil {
		cn.runHook("on_chat_end", func(ctx context.Context) error {
			return sh.hooks.OnChatEnd(ctx, cn.em)
		})
	}
	cn.sess.Delete()
	sh.sessions.Remove(cn.sess)
}

// runHook executes one application callback with a generous deadline and
// a busy indicator around it. Cancellation just unwinds; validation and
// authorization problems become toasts; anything else is fatal to the
// step and lands in the thread as an error step.
func (cn *connection) runHook(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	_ = cn.em.TaskStart(ctx)
	if err := fn(ctx); err != nil {
		cn.log.Warn("Hook returned error", "hook", name, "error", err)
		switch {
		case errors.Is(err, apperrors.ErrCancelled):
		case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrValidation):
			_ = cn.em.Toast(ctx, err.Error(), "error")
		default:
			cn.reportFatal(ctx, err)
		}
	}
	_ = cn.em.TaskEnd(ctx)
}

// reportFatal surfaces a hook failure inside the conversation itself.
func (cn *connection) reportFatal(ctx context.Context, err error) {
	if cn.sess.ThreadID() == uuid.Nil {
		_ = cn.em.Toast(ctx, err.Error(), "error")
		return
	}
	now := chat.ISONow()
	_ = cn.em.SendStep(ctx, &types.Step{
		ID:        uuid.New(),
		ThreadID:  cn.sess.ThreadID(),
		Type:      chat.StepTypeAssistantMessage,
		Name:      "error",
		Output:    err.Error(),
		IsError:   true,
		CreatedAt: now,
		Start:     &now,
		End:       &now,
	})
}

// writePump owns the socket write side, draining the hub mailbox and
// keeping the connection alive with pings.
func (cn *connection) writePump(hub *realtime.Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cn.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cn.client.Outbound:
			cn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cn.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame := realtime.OutboundFrame{Event: msg.Event, Data: msg.Data}
			if err := cn.conn.WriteJSON(frame); err != nil {
				cn.log.Debug("Socket write failed", "error", err)
				return
			}
		case <-cn.client.Done():
			return
		case <-ticker.C:
			cn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
