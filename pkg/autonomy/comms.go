package autonomy

import (
	"container/list"
	"sync"
	"time"

	"github.com/corpcraft/swarmengine/pkg/bus"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/rs/zerolog"
)

const (
	maxSessions        = 50
	maxMessagesPerSess = 100
)

// CollabMessage is the payload shape routed as an INTEL_READY event for
// every sendMessage/broadcast call.
type CollabMessage struct {
	Type      string         `json:"type"`
	ZoneID    string         `json:"zone_id"`
	From      string         `json:"from"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

type session struct {
	agentID  string
	messages []CollabMessage
	elem     *list.Element
}

// AgentComms is the inter-agent messaging channel: per-agent sessions
// with bounded message history, plus zone-scoped broadcast. Both paths
// publish INTEL_READY so the rest of the engine observes collaboration
// traffic the same way it observes task events.
type AgentComms struct {
	bus    *bus.Bus
	logger zerolog.Logger
	nowFn  func() time.Time

	mu         sync.Mutex
	sessions   map[string]*session
	lru        *list.List // front = least recently archived, back = most recent
	agentZones map[string]string
}

// NewAgentComms creates an AgentComms bounded to 50 sessions (archived-age
// LRU) and 100 messages per session (oldest dropped first).
func NewAgentComms(b *bus.Bus, nowFn func() time.Time) *AgentComms {
	return &AgentComms{
		bus:        b,
		logger:     log.WithComponent("comms"),
		nowFn:      nowFn,
		sessions:   make(map[string]*session),
		lru:        list.New(),
		agentZones: make(map[string]string),
	}
}

// RegisterZone associates agentID with zoneID for broadcast routing.
func (c *AgentComms) RegisterZone(agentID, zoneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentZones[agentID] = zoneID
}

func (c *AgentComms) touch(agentID string) *session {
	sess, ok := c.sessions[agentID]
	if ok {
		c.lru.MoveToBack(sess.elem)
		return sess
	}

	if len(c.sessions) >= maxSessions {
		oldest := c.lru.Front()
		if oldest != nil {
			evictID := oldest.Value.(string)
			c.lru.Remove(oldest)
			delete(c.sessions, evictID)
		}
	}

	sess = &session{agentID: agentID}
	sess.elem = c.lru.PushBack(agentID)
	c.sessions[agentID] = sess
	return sess
}

func (c *AgentComms) appendMessage(agentID string, msg CollabMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.touch(agentID)
	sess.messages = append(sess.messages, msg)
	if len(sess.messages) > maxMessagesPerSess {
		sess.messages = sess.messages[len(sess.messages)-maxMessagesPerSess:]
	}
}

// SendMessage delivers msg to the session recipient owns, then publishes
// it as INTEL_READY.
func (c *AgentComms) SendMessage(from, to string, payload map[string]any) (*types.Event, error) {
	msg := CollabMessage{Type: "DIRECT", From: from, Payload: payload, Timestamp: c.nowFn()}
	c.appendMessage(to, msg)
	return c.publish(msg, to)
}

// Broadcast fans msg out to every agent registered under zoneID and
// publishes a single INTEL_READY event scoped to the zone.
func (c *AgentComms) Broadcast(from, zoneID string, payload map[string]any) (*types.Event, error) {
	msg := CollabMessage{Type: "BROADCAST", ZoneID: zoneID, From: from, Payload: payload, Timestamp: c.nowFn()}

	c.mu.Lock()
	var recipients []string
	for agentID, z := range c.agentZones {
		if z == zoneID {
			recipients = append(recipients, agentID)
		}
	}
	c.mu.Unlock()

	for _, agentID := range recipients {
		c.appendMessage(agentID, msg)
	}

	return c.publish(msg, "")
}

func (c *AgentComms) publish(msg CollabMessage, to string) (*types.Event, error) {
	event, err := c.bus.Publish(&types.Event{
		Topic: types.TopicIntelReady,
		Payload: map[string]any{
			"type":    msg.Type,
			"zone_id": msg.ZoneID,
			"from":    msg.From,
			"to":      to,
			"payload": msg.Payload,
		},
	})
	if err != nil {
		c.logger.Error().Err(err).Str("from", msg.From).Msg("collab message failed to publish")
		return nil, err
	}
	return event, nil
}

// History returns a copy of agentID's session history, oldest first.
func (c *AgentComms) History(agentID string) []CollabMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[agentID]
	if !ok {
		return nil
	}
	out := make([]CollabMessage, len(sess.messages))
	copy(out, sess.messages)
	return out
}
