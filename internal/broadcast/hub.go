package broadcast

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rankboard/leaderboard-backend/internal/models"
)

// Snapshot is one published state of the board. Seq is assigned by the
// rank recomputation while it holds its serialization lock, so sequence
// order matches commit order.
type Snapshot struct {
	Seq   uint64
	Users []models.User
}

// Subscriber receives ranked user lists pushed by the hub. The channel
// is closed on unsubscribe.
type Subscriber struct {
	ch chan []models.User
}

func (s *Subscriber) Updates() <-chan []models.User {
	return s.ch
}

// Hub fans the current ranked list out to every live subscriber after a
// standings-changing mutation. Delivery is best effort and never blocks
// or fails the mutation that triggered it. Two guards keep every
// subscriber's view monotonic: snapshots that arrive out of sequence
// are discarded hub-wide, and a subscriber that has not drained the
// previous update just gets it replaced by the newest one.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	lastSeq uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan []models.User, 1)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast pushes the snapshot to every subscriber. A snapshot older
// than one already broadcast is dropped: the caller that produced it
// lost the race and a newer state is already out.
func (h *Hub) Broadcast(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if snap.Seq <= h.lastSeq {
		return
	}
	h.lastSeq = snap.Seq

	for sub := range h.subs {
		select {
		case sub.ch <- snap.Users:
		default:
			// drop the stale update, queue the newest state
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snap.Users:
			default:
				logrus.Warn("dropping leaderboard update for slow subscriber")
			}
		}
	}
}
