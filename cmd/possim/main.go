// Command possim publishes simulated position fixes for one device, for
// running the agent without real hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timeclock/internal/config"
	"timeclock/internal/geo"
	"timeclock/internal/position"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func main() {
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	prefix := flag.String("prefix", "timeclock/positions", "position topic prefix")
	deviceID := flag.String("device", "sim-device-1", "device identifier")
	lat := flag.Float64("lat", 52.5200, "starting latitude")
	lng := flag.Float64("lng", 13.4050, "starting longitude")
	interval := flag.Duration("interval", 5*time.Second, "interval between published fixes")
	maxStep := flag.Float64("max-step", 8, "maximum distance in meters moved per fix")
	networkEvery := flag.Int("network-every", 3, "also publish a coarse network fix every N fixes (0 disables)")
	retain := flag.Bool("retain", true, "publish fixes as retained messages")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := config.NewLogger(os.Stdout, *logLevel)

	clientID := fmt.Sprintf("%s-possim-%d", *deviceID, time.Now().UnixNano())
	opts := mqtt.NewClientOptions().AddBroker(*brokerAddr).SetClientID(clientID)
	opts = opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Error("failed to connect to broker", "error", token.Error())
		os.Exit(1)
	}
	logger.Info("connected to MQTT broker", "broker", *brokerAddr, "client_id", clientID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := position.NewSimSource(geo.Coordinate{Latitude: *lat, Longitude: *lng}, *interval, *maxStep)

	publish := func(provider string) {
		fix := sim.Next(provider == position.ProviderGPS)
		data, err := position.EncodeFix(fix)
		if err != nil {
			logger.Error("failed to encode fix", "error", err)
			return
		}

		topic := position.Topic(*prefix, *deviceID, provider)
		token := client.Publish(topic, 0, *retain, data)
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Error("publish error", "topic", topic, "error", err)
			return
		}
		logger.Debug("published fix", "topic", topic, "lat", fix.Latitude, "lng", fix.Longitude, "accuracy", fix.Accuracy)
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	n := 0
	tick := func() {
		publish(position.ProviderGPS)
		if *networkEvery > 0 && n%*networkEvery == 0 {
			publish(position.ProviderNetwork)
		}
		n++
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			logger.Info("received shutdown signal, disconnecting")
			client.Disconnect(250)
			return
		case <-ticker.C:
			tick()
		}
	}
}
