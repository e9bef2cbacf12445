// Package mqtt wires the coordinator to the device-facing broker: it
// subscribes to the status and data topics and publishes outbound commands,
// fleet-wide or targeted at one device.
package mqtt

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/carnegiemellonracing/PiDAQ/internal/config"
)

// BuildClient constructs the broker client. onStatus and onData receive raw
// payloads from per-message paho goroutines; callers re-serialize them onto
// the coordinator's event loop.
func BuildClient(cfg *config.Config, onStatus, onData func(payload []byte)) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID).
		SetOrderMatters(true).
		SetCleanSession(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.OnConnect = func(c mqtt.Client) {
		cfg.Logger.Printf("[mqtt] connected to broker: %s", cfg.MQTTBrokerURL)
		subscribe(cfg, c, cfg.MQTTStatusTopic, onStatus)
		subscribe(cfg, c, cfg.MQTTDataTopic, onData)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		cfg.Logger.Printf("[mqtt] connection lost: %v", err)
	}

	return mqtt.NewClient(opts)
}

func subscribe(cfg *config.Config, c mqtt.Client, topic string, handle func([]byte)) {
	h := func(_ mqtt.Client, msg mqtt.Message) { handle(msg.Payload()) }
	if token := c.Subscribe(topic, cfg.MQTTQoS, h); token.Wait() && token.Error() != nil {
		cfg.Logger.Printf("[mqtt] subscribe error on %s: %v", topic, token.Error())
	} else {
		cfg.Logger.Printf("[mqtt] subscribed to topic: %s (QoS %d)", topic, cfg.MQTTQoS)
	}
}

// ConnectWithBackoff retries the initial connect with exponential backoff
// until it succeeds or the context is cancelled.
func ConnectWithBackoff(ctx context.Context, cfg *config.Config, client mqtt.Client, start, max time.Duration) {
	backoff := start
	for {
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			cfg.Logger.Printf("[mqtt] connect error: %v; retrying in %s", token.Error(), backoff)
			select {
			case <-time.After(backoff):
				if backoff < max {
					backoff *= 2
				}
			case <-ctx.Done():
				cfg.Logger.Println("[mqtt] context cancelled before connect")
				return
			}
			continue
		}
		break
	}
}
