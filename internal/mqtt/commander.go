package mqtt

import (
	"encoding/json"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/carnegiemellonracing/PiDAQ/internal/model"
)

// Commander publishes outbound device commands. Fleet-wide commands go to the
// shared command topic every device subscribes to; targeted commands go to
// the device's own subtopic. Sends are fire-and-forget relative to the state
// mutation that triggered them.
type Commander struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *log.Logger
}

func NewCommander(topic string, qos byte, logger *log.Logger) *Commander {
	return &Commander{topic: topic, qos: qos, logger: logger}
}

// Bind attaches the broker client. The commander is constructed before the
// client so the dispatcher can be wired first; commands sent before Bind are
// dropped with a diagnostic.
func (c *Commander) Bind(client mqtt.Client) { c.client = client }

func (c *Commander) SendCommand(cmd model.Command) {
	c.publish(c.topic, cmd)
}

func (c *Commander) SendCommandTo(deviceID string, cmd model.Command) {
	c.publish(c.topic+"/"+deviceID, cmd)
}

func (c *Commander) publish(topic string, cmd model.Command) {
	if c.client == nil {
		c.logger.Printf("[mqtt] dropped %s command: no broker client bound", cmd.Command)
		return
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		c.logger.Printf("[mqtt] marshal command failed: %v", err)
		return
	}
	token := c.client.Publish(topic, c.qos, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			c.logger.Printf("[mqtt] publish to %s failed: %v", topic, token.Error())
		}
	}()
}
