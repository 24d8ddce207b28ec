package presence

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publish struct {
	topic    string
	retained bool
	payload  []byte
}

// memClient is an in-memory broker connection. drop forgets subscriptions
// the way a clean-session reconnect does.
type memClient struct {
	mu        sync.Mutex
	subs      map[string]mqtt.MessageHandler
	published []publish
}

func newMemClient() *memClient {
	return &memClient{subs: make(map[string]mqtt.MessageHandler)}
}

func (c *memClient) IsConnected() bool      { return true }
func (c *memClient) IsConnectionOpen() bool { return true }
func (c *memClient) Connect() mqtt.Token    { return doneToken{} }
func (c *memClient) Disconnect(uint)        {}

func (c *memClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, _ := payload.([]byte)
	c.published = append(c.published, publish{topic: topic, retained: retained, payload: data})
	return doneToken{}
}

func (c *memClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = callback
	return doneToken{}
}

func (c *memClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, callback)
	}
	return doneToken{}
}

func (c *memClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.subs, topic)
	}
	return doneToken{}
}

func (c *memClient) AddRoute(string, mqtt.MessageHandler) {}

func (c *memClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func (c *memClient) drop() {
	c.mu.Lock()
	c.subs = make(map[string]mqtt.MessageHandler)
	c.mu.Unlock()
}

func (c *memClient) handler(topic string) mqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[topic]
}

func (c *memClient) lastPublish() (publish, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.published) == 0 {
		return publish{}, false
	}
	return c.published[len(c.published)-1], true
}

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return qos }
func (m message) Retained() bool    { return true }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}
