// Package events — неблокирующий журнал доменных событий.
// События носят аудиторский характер и не участвуют в принятии решений:
// их потеря не влияет на результат операции.
package events

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Name string

const (
	ShareCreated     Name = "shares.create"
	ShareRevoked     Name = "shares.revoke"
	ShareUpdated     Name = "shares.update"
	DocumentMoved    Name = "documents.move"
	DocumentArchived Name = "documents.archive"
	DocumentRestored Name = "documents.restore"
)

type Event struct {
	Name       Name
	ActorID    uuid.UUID
	TeamID     uuid.UUID
	DocumentID uuid.UUID
	ShareID    *uuid.UUID
	OccurredAt time.Time
}

// Emitter принимает события вне критического пути запроса
type Emitter interface {
	Emit(event Event)
}

// AuditLog пишет события в структурированный лог через буферизованный канал.
// Переполненный буфер приводит к потере события, а не к блокировке запроса.
type AuditLog struct {
	log    *zap.SugaredLogger
	queue  chan Event
	done   chan struct{}
	closed chan struct{}
}

func NewAuditLog(log *zap.SugaredLogger) *AuditLog {
	a := &AuditLog{
		log:    log,
		queue:  make(chan Event, 256),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *AuditLog) Emit(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	select {
	case a.queue <- event:
	default:
		a.log.Warnw("audit queue full, event dropped", "event", string(event.Name))
	}
}

func (a *AuditLog) drain() {
	defer close(a.closed)
	for {
		select {
		case event := <-a.queue:
			a.write(event)
		case <-a.done:
			for {
				select {
				case event := <-a.queue:
					a.write(event)
				default:
					return
				}
			}
		}
	}
}

func (a *AuditLog) write(event Event) {
	fields := []interface{}{
		"actor_id", event.ActorID.String(),
		"team_id", event.TeamID.String(),
		"document_id", event.DocumentID.String(),
		"occurred_at", event.OccurredAt,
	}
	if event.ShareID != nil {
		fields = append(fields, "share_id", event.ShareID.String())
	}
	a.log.Infow(string(event.Name), fields...)
}

// Close дописывает накопленные события и останавливает обработчик
func (a *AuditLog) Close() {
	close(a.done)
	<-a.closed
}
