package position

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"timeclock/internal/geo"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Provider suffixes of the position topics. gps fixes are high accuracy,
// network fixes are coarse.
const (
	ProviderGPS     = "gps"
	ProviderNetwork = "network"
)

// Topic builds the topic a device publishes fixes on.
func Topic(prefix, deviceID, provider string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, deviceID, provider)
}

// MQTTSource reads fixes that a device publishes over MQTT.
type MQTTSource struct {
	client   mqtt.Client
	prefix   string
	deviceID string
	now      func() time.Time

	mu      sync.Mutex
	watches map[*mqttWatch]struct{}
}

func NewMQTTSource(client mqtt.Client, prefix, deviceID string) *MQTTSource {
	return &MQTTSource{
		client:   client,
		prefix:   prefix,
		deviceID: deviceID,
		now:      time.Now,
		watches:  make(map[*mqttWatch]struct{}),
	}
}

// ConnectMQTTSource connects a client that resubscribes the running watches
// whenever it reconnects. A clean session loses subscriptions on reconnect.
func ConnectMQTTSource(opts *mqtt.ClientOptions, prefix, deviceID string, logger *slog.Logger) (*MQTTSource, error) {
	var src atomic.Pointer[MQTTSource]
	opts.SetOnConnectHandler(func(mqtt.Client) {
		if s := src.Load(); s != nil {
			s.Resubscribe(logger)
		}
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect position broker: timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect position broker: %w", err)
	}

	s := NewMQTTSource(client, prefix, deviceID)
	src.Store(s)
	return s, nil
}

// Close disconnects the client.
func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
}

// Resubscribe subscribes every running watch again. Failures are reported
// to the watch's error callback.
func (s *MQTTSource) Resubscribe(logger *slog.Logger) {
	s.mu.Lock()
	watches := make([]*mqttWatch, 0, len(s.watches))
	for w := range s.watches {
		watches = append(watches, w)
	}
	s.mu.Unlock()

	for _, w := range watches {
		if err := w.subscribe(); err != nil {
			w.deliverErr(err)
			continue
		}
		logger.Info("position watch resubscribed", "topic", w.topic)
	}
}

func (s *MQTTSource) forget(w *mqttWatch) {
	s.mu.Lock()
	delete(s.watches, w)
	s.mu.Unlock()
}

func (s *MQTTSource) topic(highAccuracy bool) string {
	if highAccuracy {
		return Topic(s.prefix, s.deviceID, ProviderGPS)
	}
	return Topic(s.prefix, s.deviceID, "+")
}

func (s *MQTTSource) Watch(opts WatchOptions, onFix func(geo.Coordinate), onErr func(error)) (Watch, error) {
	if s.client == nil || !s.client.IsConnected() {
		return nil, ErrUnavailable
	}

	w := &mqttWatch{
		src:    s,
		client: s.client,
		topic:  s.topic(opts.EnableHighAccuracy),
		opts:   opts,
		now:    s.now,
		onFix:  onFix,
		onErr:  onErr,
	}
	w.armTimer()

	s.mu.Lock()
	s.watches[w] = struct{}{}
	s.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.Stop()
		return nil, err
	}
	return w, nil
}

type mqttWatch struct {
	src    *MQTTSource
	client mqtt.Client
	topic  string
	opts   WatchOptions
	now    func() time.Time
	onFix  func(geo.Coordinate)
	onErr  func(error)

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (w *mqttWatch) subscribe() error {
	token := w.client.Subscribe(w.topic, 0, w.handle)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timed out", w.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", w.topic, err)
	}
	return nil
}

func (w *mqttWatch) armTimer() {
	if w.opts.Timeout <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Timeout, func() {
		w.deliverErr(ErrTimeout)
		w.armTimer()
	})
}

func (w *mqttWatch) handle(_ mqtt.Client, msg mqtt.Message) {
	fix, err := decodeFix(msg.Payload())
	if err != nil {
		w.deliverErr(fmt.Errorf("decode fix on %s: %w", msg.Topic(), err))
		return
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = w.now()
	}

	if msg.Retained() {
		// A retained message is the broker's cached fix.
		if w.opts.MaximumAge <= 0 || w.now().Sub(fix.Timestamp) > w.opts.MaximumAge {
			return
		}
	}

	w.armTimer()

	// serialize delivery so callbacks never interleave
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.onFix(fix)
}

func (w *mqttWatch) deliverErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.onErr(err)
}

func (w *mqttWatch) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if w.src != nil {
		w.src.forget(w)
	}
	if w.client.IsConnected() {
		w.client.Unsubscribe(w.topic).WaitTimeout(2 * time.Second)
	}
}

func decodeFix(payload []byte) (geo.Coordinate, error) {
	var c geo.Coordinate
	if err := json.Unmarshal(payload, &c); err != nil {
		return geo.Coordinate{}, err
	}
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return geo.Coordinate{}, fmt.Errorf("coordinate out of range (%f, %f)", c.Latitude, c.Longitude)
	}
	return c, nil
}

// EncodeFix is the payload format read by MQTTSource.
func EncodeFix(c geo.Coordinate) ([]byte, error) {
	return json.Marshal(c)
}
