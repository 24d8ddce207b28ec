package presence

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"timeclock/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

var clientSeq atomic.Uint64

// ClientOptions builds broker options with a client id unique to this
// process, so several agents and the server can share one broker.
func ClientOptions(cfg config.MQTTConfig, role string) *mqtt.ClientOptions {
	prefix := cfg.ClientID
	if prefix == "" {
		prefix = "timeclock"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(fmt.Sprintf("%s-%s-%d-%d", prefix, role, os.Getpid(), clientSeq.Add(1))).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return opts
}

// Session is a presence channel on its own MQTT connection.
type Session struct {
	*Channel
	client mqtt.Client
}

// Connect opens a connection, joins the channel and, when employeeID is
// set, tracks it with a last will that clears it on disconnect.
func Connect(opts *mqtt.ClientOptions, base string, employeeID uuid.UUID, logger *slog.Logger, onSync func([]uuid.UUID)) (*Session, error) {
	if base == "" {
		base = DefaultTopic
	}
	if employeeID != uuid.Nil {
		SetWill(opts, base, employeeID)
	}
	var joined atomic.Pointer[Channel]
	opts.SetOnConnectHandler(func(mqtt.Client) {
		ch := joined.Load()
		if ch == nil {
			return
		}
		if err := ch.Resume(); err != nil {
			logger.Warn("failed to resume presence after reconnect", "error", err)
			return
		}
		logger.Info("presence resumed after reconnect", "topic", base)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect presence broker: timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect presence broker: %w", err)
	}

	ch := NewChannel(client, base, logger, onSync)
	if err := ch.Join(); err != nil {
		client.Disconnect(250)
		return nil, err
	}
	if employeeID != uuid.Nil {
		if err := ch.Track(employeeID); err != nil {
			client.Disconnect(250)
			return nil, err
		}
	}
	joined.Store(ch)
	logger.Info("joined presence channel", "topic", base, "employee", employeeID)
	return &Session{Channel: ch, client: client}, nil
}

func (s *Session) Close() {
	if err := s.Leave(); err != nil {
		s.logger.Warn("failed to leave presence channel", "error", err)
	}
	s.client.Disconnect(250)
}
