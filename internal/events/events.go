// ABOUTME: In-process event hub fanning scan updates out to websocket subscribers.
// ABOUTME: Slow subscribers are skipped rather than blocking the orchestrator.

package events

import (
	"sync"

	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

// Event is a single message pushed to subscribers of a scan. Scan updates
// carry {scan_id, status}; narration carries {type: "voice_event", event}.
type Event struct {
	Type   string            `json:"type,omitempty"`
	ScanID string            `json:"scan_id,omitempty"`
	Status *types.ScanStatus `json:"status,omitempty"`
	Voice  *types.VoiceEvent `json:"event,omitempty"`
}

const subscriberBuffer = 64

// Hub routes scan events to per-scan subscriber channels
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	nextID int
	logger *logrus.Logger
}

// NewHub creates an empty hub
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[int]chan Event),
		logger: logger,
	}
}

// Subscribe registers for events of one scan. The returned cancel function
// removes the subscription and closes the channel.
func (h *Hub) Subscribe(scanID string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan Event, subscriberBuffer)

	if h.subs[scanID] == nil {
		h.subs[scanID] = make(map[int]chan Event)
	}
	h.subs[scanID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if chans, ok := h.subs[scanID]; ok {
			if c, ok := chans[id]; ok {
				delete(chans, id)
				close(c)
			}
			if len(chans) == 0 {
				delete(h.subs, scanID)
			}
		}
	}
	return ch, cancel
}

// Publish sends a scan snapshot to all subscribers of that scan
func (h *Hub) Publish(scan *types.ScanStatus) {
	if scan == nil {
		return
	}
	h.send(scan.ScanID, Event{ScanID: scan.ScanID, Status: scan})
}

// PublishVoice sends a narration event to all subscribers of the scan
func (h *Hub) PublishVoice(scanID string, voice *types.VoiceEvent) {
	if voice == nil {
		return
	}
	h.send(scanID, Event{Type: "voice_event", Voice: voice})
}

func (h *Hub) send(scanID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[scanID] {
		select {
		case ch <- ev:
		default:
			h.logger.WithFields(logrus.Fields{
				"component": "events",
				"scan_id":   scanID,
			}).Warn("Subscriber channel full, dropping event")
		}
	}
}

// SubscriberCount reports how many subscribers a scan currently has
func (h *Hub) SubscriberCount(scanID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[scanID])
}
