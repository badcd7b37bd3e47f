package gateway

import (
	"time"

	"github.com/lstailors/LST-MissionControl-sub000/internal/protocol"
)

// DefaultQueueLimit은 오프라인 큐의 기본 최대 크기입니다.
const DefaultQueueLimit = 50

// QueuedMessage는 연결이 없을 때 보관된 chat.send 메시지입니다.
type QueuedMessage struct {
	Text        string
	Attachments []protocol.Attachment
	SessionKey  string
	// IdempotencyKey는 재전송 시 게이트웨이가 중복을 걸러낼 수 있게 메시지마다 고정됩니다.
	IdempotencyKey string
	// Seq는 큐에 들어온 순서입니다.
	Seq        uint64
	EnqueuedAt time.Time
}

// offlineQueue는 크기 제한이 있는 FIFO 큐입니다. 가득 차면 가장 오래된 항목을 버립니다.
// 이벤트 루프에서만 접근하므로 잠금이 없습니다.
type offlineQueue struct {
	items []QueuedMessage
	limit int
	seq   uint64
}

func newOfflineQueue(limit int) *offlineQueue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &offlineQueue{limit: limit}
}

// push는 메시지를 뒤에 추가하고, 넘친 만큼 앞에서 버린 항목 수를 반환합니다.
func (q *offlineQueue) push(msg QueuedMessage) int {
	q.seq++
	msg.Seq = q.seq
	q.items = append(q.items, msg)
	return q.trim()
}

// drain은 모든 항목을 순서대로 꺼내고 큐를 비웁니다.
func (q *offlineQueue) drain() []QueuedMessage {
	items := q.items
	q.items = nil
	return items
}

// requeueFront는 전송하지 못한 항목들을 원래 순서대로 앞에 되돌립니다.
// 그 사이 새로 들어온 항목은 뒤에 유지됩니다.
func (q *offlineQueue) requeueFront(items []QueuedMessage) int {
	if len(items) == 0 {
		return 0
	}
	merged := make([]QueuedMessage, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	merged = append(merged, q.items...)
	q.items = merged
	return q.trim()
}

// trim은 limit을 넘는 가장 오래된 항목을 버립니다.
func (q *offlineQueue) trim() int {
	over := len(q.items) - q.limit
	if over <= 0 {
		return 0
	}
	q.items = append([]QueuedMessage(nil), q.items[over:]...)
	return over
}

func (q *offlineQueue) clear() {
	q.items = nil
}

func (q *offlineQueue) len() int {
	return len(q.items)
}
