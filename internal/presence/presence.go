// Package presence implements the shared "online-users" channel over MQTT.
//
// Each tracked employee owns a retained message on <base>/<employee id>. An
// empty retained message clears it, and the connection's last will does the
// same when a client drops without leaving.
package presence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const DefaultTopic = "timeclock/presence/online-users"

const qos = 1

type payload struct {
	EmployeeID string `json:"employee_id"`
	OnlineAt   string `json:"online_at"`
}

// MemberTopic is the retained topic of one employee.
func MemberTopic(base string, employeeID uuid.UUID) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(base, "/"), employeeID)
}

// SetWill registers the last will clearing the employee's presence. It must
// be applied before the client connects.
func SetWill(opts *mqtt.ClientOptions, base string, employeeID uuid.UUID) *mqtt.ClientOptions {
	return opts.SetBinaryWill(MemberTopic(base, employeeID), []byte{}, qos, true)
}

// Set is the synced set of present employees.
type Set struct {
	mu      sync.Mutex
	members map[uuid.UUID]time.Time
}

func NewSet() *Set {
	return &Set{members: make(map[uuid.UUID]time.Time)}
}

// Apply folds one presence message into the set and reports whether the set
// changed.
func (s *Set) Apply(base, topic string, data []byte) (bool, error) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(topic, prefix) {
		return false, fmt.Errorf("topic %q outside %q", topic, base)
	}
	id, err := uuid.Parse(strings.TrimPrefix(topic, prefix))
	if err != nil {
		return false, fmt.Errorf("invalid employee id in topic %q: %w", topic, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(data) == 0 {
		if _, ok := s.members[id]; !ok {
			return false, nil
		}
		delete(s.members, id)
		return true, nil
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return false, fmt.Errorf("invalid presence payload: %w", err)
	}
	onlineAt, err := time.Parse(time.RFC3339Nano, p.OnlineAt)
	if err != nil {
		onlineAt = time.Now().UTC()
	}
	_, existed := s.members[id]
	s.members[id] = onlineAt
	return !existed, nil
}

// IDs returns the present employees in a stable order.
func (s *Set) IDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

func (s *Set) Contains(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[id]
	return ok
}

// Clear empties the set and reports whether it held anyone.
func (s *Set) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := len(s.members) > 0
	s.members = make(map[uuid.UUID]time.Time)
	return had
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Channel joins the presence topic on an MQTT client. OnSync is called with
// the full set after every change.
type Channel struct {
	client mqtt.Client
	base   string
	logger *slog.Logger
	set    *Set
	onSync func([]uuid.UUID)

	mu      sync.Mutex
	tracked uuid.UUID
}

func NewChannel(client mqtt.Client, base string, logger *slog.Logger, onSync func([]uuid.UUID)) *Channel {
	if base == "" {
		base = DefaultTopic
	}
	if onSync == nil {
		onSync = func([]uuid.UUID) {}
	}
	return &Channel{
		client: client,
		base:   base,
		logger: logger,
		set:    NewSet(),
		onSync: onSync,
	}
}

func (c *Channel) wait(token mqtt.Token, what string) error {
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("%s: timed out", what)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// Join subscribes to every member topic. Retained messages replay the
// current set.
func (c *Channel) Join() error {
	topic := strings.TrimSuffix(c.base, "/") + "/+"
	return c.wait(c.client.Subscribe(topic, qos, c.handle), "subscribe presence")
}

func (c *Channel) handle(_ mqtt.Client, msg mqtt.Message) {
	changed, err := c.set.Apply(c.base, msg.Topic(), msg.Payload())
	if err != nil {
		c.logger.Warn("ignoring presence message", "topic", msg.Topic(), "error", err)
		return
	}
	if changed {
		c.onSync(c.set.IDs())
	}
}

// Track announces the employee as online.
func (c *Channel) Track(employeeID uuid.UUID) error {
	data, err := json.Marshal(payload{
		EmployeeID: employeeID.String(),
		OnlineAt:   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	if err := c.wait(c.client.Publish(MemberTopic(c.base, employeeID), qos, true, data), "track presence"); err != nil {
		return err
	}

	c.mu.Lock()
	c.tracked = employeeID
	c.mu.Unlock()
	return nil
}

// Untrack clears the tracked employee's retained message.
func (c *Channel) Untrack() error {
	c.mu.Lock()
	id := c.tracked
	c.tracked = uuid.Nil
	c.mu.Unlock()

	if id == uuid.Nil {
		return nil
	}
	return c.wait(c.client.Publish(MemberTopic(c.base, id), qos, true, []byte{}), "untrack presence")
}

// Resume rebuilds the channel after the client reconnected with a clean
// session: the subscription is gone and the last will has cleared the
// tracked employee. The set is replayed from retained messages.
func (c *Channel) Resume() error {
	if c.set.Clear() {
		c.onSync(c.set.IDs())
	}
	if err := c.Join(); err != nil {
		return err
	}

	c.mu.Lock()
	id := c.tracked
	c.mu.Unlock()
	if id == uuid.Nil {
		return nil
	}
	return c.Track(id)
}

// Leave untracks and unsubscribes.
func (c *Channel) Leave() error {
	if err := c.Untrack(); err != nil {
		c.logger.Warn("failed to clear presence", "error", err)
	}
	topic := strings.TrimSuffix(c.base, "/") + "/+"
	return c.wait(c.client.Unsubscribe(topic), "unsubscribe presence")
}

// Online returns the current synced set.
func (c *Channel) Online() []uuid.UUID {
	return c.set.IDs()
}

func (c *Channel) IsOnline(id uuid.UUID) bool {
	return c.set.Contains(id)
}
