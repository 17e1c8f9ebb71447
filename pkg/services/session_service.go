package services

import (
	"errors"
	"sync"
	"time"

	"bms-chat-api/pkg/models"

	"github.com/google/uuid"
)

var (
	// ErrRequestInFlight は同じセッションで応答待ちのリクエストがあることを示します。
	ErrRequestInFlight = errors.New("a request is already in progress for this session")
	// ErrSessionNotFound はセッションが存在しないことを示します。
	ErrSessionNotFound = errors.New("session not found")
)

type session struct {
	messages []models.ChatMessage
	inFlight bool
}

// SessionService はメモリ上のチャット履歴を管理します。永続化は行いません。
type SessionService struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

// NewSessionService は新しいSessionServiceを生成します。
func NewSessionService() *SessionService {
	return &SessionService{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// NewSessionID は新しいセッションIDを払い出します。
func (s *SessionService) NewSessionID() string {
	return uuid.New().String()
}

// Begin はセッションの処理中フラグを立てます。既に処理中ならErrRequestInFlightを返します。
func (s *SessionService) Begin(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreate(sessionID)
	if sess.inFlight {
		return ErrRequestInFlight
	}
	sess.inFlight = true
	return nil
}

// End は処理中フラグを解除します。
func (s *SessionService) End(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.inFlight = false
	}
}

// Append はメッセージを末尾に追加します。IDとタイムスタンプが空なら補完します。
func (s *SessionService) Append(sessionID string, msg models.ChatMessage) models.ChatMessage {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(sessionID)
	sess.messages = append(sess.messages, msg)
	return msg
}

// Transcript はセッションのメッセージのコピーを返します。
func (s *SessionService) Transcript(sessionID string) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := make([]models.ChatMessage, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

// History はプロバイダーに渡す会話履歴を返します。件数の制限とマーカー除去はTrimHistoryで行います。
func (s *SessionService) History(sessionID string) []models.HistoryMessage {
	transcript, err := s.Transcript(sessionID)
	if err != nil {
		return nil
	}
	out := make([]models.HistoryMessage, 0, len(transcript))
	for _, m := range transcript {
		out = append(out, models.HistoryMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// Clear はセッションの履歴を消去します。
func (s *SessionService) Clear(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.messages = nil
	return nil
}

func (s *SessionService) getOrCreate(sessionID string) *session {
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{}
		s.sessions[sessionID] = sess
	}
	return sess
}
