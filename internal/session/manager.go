package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/above-avg/YourOwnRAG/internal/apiclient"
)

// ChatClient is the slice of the transport the manager drives.
type ChatClient interface {
	Chat(ctx context.Context, req apiclient.ChatRequest) (apiclient.ChatResponse, error)
}

// IdentityStore persists the session identity across runs. *statestore.Store
// satisfies it.
type IdentityStore interface {
	SessionID(ctx context.Context) (string, bool, error)
	SetSessionID(ctx context.Context, id string) error
}

type Options struct {
	Logger *slog.Logger
	Client ChatClient
	IDs    IdentityStore

	// SelectModel returns the model for the next chat call (the settings
	// store's defaultModel). Required.
	SelectModel func() string

	// OnSessionChange is invoked after the backend supersedes the session id.
	// Optional.
	OnSessionChange func(id string)
}

// Manager owns the identity of the current conversation and its ordered
// message history. At most one chat call is in flight at a time; a send
// issued while another is pending is refused, so assistant turns land in the
// order their questions were asked.
//
// Chat failures are conversational, not modal: the error is appended to the
// transcript as an assistant turn instead of being surfaced separately.
type Manager struct {
	log             *slog.Logger
	client          ChatClient
	ids             IdentityStore
	selectModel     func() string
	onSessionChange func(id string)

	mu        sync.Mutex
	sessionID string
	sending   bool
	history   []Message
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Client == nil {
		return nil, errors.New("missing Client")
	}
	if opts.IDs == nil {
		return nil, errors.New("missing IDs")
	}
	if opts.SelectModel == nil {
		return nil, errors.New("missing SelectModel")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:             log,
		client:          opts.Client,
		ids:             opts.IDs,
		selectModel:     opts.SelectModel,
		onSessionChange: opts.OnSessionChange,
	}, nil
}

// Bootstrap establishes the session identity: the persisted id when one
// exists, otherwise a freshly synthesized one that is persisted immediately.
func (m *Manager) Bootstrap(ctx context.Context) error {
	id, ok, err := m.ids.SessionID(ctx)
	if err != nil {
		return fmt.Errorf("read session id: %w", err)
	}
	if !ok || strings.TrimSpace(id) == "" {
		id = newSessionID()
		if err := m.ids.SetSessionID(ctx, id); err != nil {
			return fmt.Errorf("persist session id: %w", err)
		}
		m.log.Info("started new session", "session_id", id)
	}

	m.mu.Lock()
	m.sessionID = id
	m.mu.Unlock()
	return nil
}

func newSessionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), suffix)
}

// Send runs one request/response cycle: append the user turn, call the
// backend, append the assistant turn. It returns the assistant message and
// true once the cycle finishes. An empty question, or a send issued while
// another is in flight, is refused with no state change and returns false.
func (m *Manager) Send(ctx context.Context, question string) (Message, bool) {
	if strings.TrimSpace(question) == "" {
		return Message{}, false
	}

	m.mu.Lock()
	if m.sending {
		m.mu.Unlock()
		return Message{}, false
	}
	m.sending = true
	m.history = append(m.history, Message{
		Role:      RoleUser,
		Content:   question,
		Timestamp: time.Now(),
	})
	sessionID := m.sessionID
	m.mu.Unlock()

	resp, err := m.client.Chat(ctx, apiclient.ChatRequest{
		Question:  question,
		SessionID: sessionID,
		Model:     m.selectModel(),
	})

	var reply Message
	if err != nil {
		m.log.Warn("chat request failed", "session_id", sessionID, "error", err)
		reply = Message{
			Role:      RoleAssistant,
			Content:   fmt.Sprintf("Sorry, I encountered an error: %s. Please try again.", errorText(err)),
			Timestamp: time.Now(),
		}
	} else {
		reply = Message{
			Role:      RoleAssistant,
			Content:   resp.Answer,
			Timestamp: time.Now(),
		}
	}

	m.mu.Lock()
	m.history = append(m.history, reply)
	m.sending = false
	migrated := ""
	if err == nil {
		if next := strings.TrimSpace(resp.SessionID); next != "" && next != m.sessionID {
			migrated = next
			m.sessionID = next
		}
	}
	m.mu.Unlock()

	if migrated != "" {
		// The backend started a new session transparently; keep the persisted
		// identity in step and tell whoever else tracks it.
		if err := m.ids.SetSessionID(ctx, migrated); err != nil {
			m.log.Warn("failed to persist migrated session id", "session_id", migrated, "error", err)
		}
		if m.onSessionChange != nil {
			m.onSessionChange(migrated)
		}
	}

	return reply, true
}

func errorText(err error) string {
	var re *apiclient.RemoteError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}

// History returns a copy of the transcript, oldest first.
func (m *Manager) History() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.history...)
}

// SessionID returns the current session identity.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Sending reports whether a chat call is in flight.
func (m *Manager) Sending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sending
}

// Clear drops the transcript. The session identity is kept; history is
// append-only except for this explicit user-initiated clear.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.history = nil
	m.mu.Unlock()
}
