package position

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

// memClient keeps subscriptions in memory. drop forgets them the way a
// clean-session reconnect does.
type memClient struct {
	mu   sync.Mutex
	subs map[string]mqtt.MessageHandler
}

func newMemClient() *memClient {
	return &memClient{subs: make(map[string]mqtt.MessageHandler)}
}

func (c *memClient) IsConnected() bool      { return true }
func (c *memClient) IsConnectionOpen() bool { return true }
func (c *memClient) Connect() mqtt.Token    { return doneToken{} }
func (c *memClient) Disconnect(uint)        {}

func (c *memClient) Publish(string, byte, bool, interface{}) mqtt.Token {
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

// deliver hands a message to the subscriber of topic and reports whether
// there was one.
func (c *memClient) deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	h := c.subs[topic]
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(c, fakeMessage{topic: topic, payload: payload})
	return true
}
