package walletconnect

import (
	"context"
	"encoding/json"
	"time"

	"moff.io/moff-wallet/pkg/log"
)

type SessionEventType string

const (
	EventProposal     SessionEventType = "session_proposal"
	EventApproved     SessionEventType = "session_approved"
	EventRejected     SessionEventType = "session_rejected"
	EventRequest      SessionEventType = "session_request"
	EventDisconnected SessionEventType = "session_disconnected"
)

type SessionEvent struct {
	Type       SessionEventType `json:"type" structs:"type"`
	Topic      string           `json:"topic,omitempty" structs:"topic,omitempty"`
	ProposalID int64            `json:"proposal_id,omitempty" structs:"proposal_id,omitempty"`
	Peer       string           `json:"peer,omitempty" structs:"peer,omitempty"`
	Method     string           `json:"method,omitempty" structs:"method,omitempty"`
	Namespaces []string         `json:"namespaces,omitempty" structs:"namespaces,omitempty"`
	Error      string           `json:"error,omitempty" structs:"error,omitempty"`
	CreatedAt  int64            `json:"created_at" structs:"created_at"`
}

func newSessionEvent(typ SessionEventType) *SessionEvent {
	return &SessionEvent{Type: typ, CreatedAt: time.Now().Unix()}
}

func (e *SessionEvent) Serialize() []byte {
	bytes, _ := json.Marshal(e)
	return bytes
}

type Publisher interface {
	Publish(ctx context.Context, e *SessionEvent) error
}

// Publishers fans an event out to every publisher, the first error is returned after all were tried.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, e *SessionEvent) error {
	var first error
	for _, p := range ps {
		if err := p.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Archiver keeps a copy of every signed document.
type Archiver interface {
	ArchiveSignedDoc(ctx context.Context, key string, body []byte) error
}

func (s *Service) publish(ctx context.Context, e *SessionEvent) {
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.Publish(ctx, e); err != nil {
		log.Warnf("wallet connect - publish %v event: %v", e.Type, err)
	}
}
