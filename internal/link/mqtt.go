package link

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/telemeter/log2"
)

const (
	DefaultMqttClientID = "telemeter"
	DefaultMqttTopic    = "telemeter/packet"
)

type MqttConfig struct {
	Broker   string `hcl:"broker"`
	Topic    string `hcl:"topic"`
	ClientID string `hcl:"client_id"`
	Username string `hcl:"username"`
	Password string `hcl:"password"`
	Qos      int    `hcl:"qos"`
}

// replaced in tests
var newMqttClient = mqttNewClientDefault

func mqttNewClientDefault(o *mqtt.ClientOptions) mqtt.Client { return mqtt.NewClient(o) }

type MqttSink struct {
	m       mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

func DialMqtt(c MqttConfig, timeout time.Duration, log *log2.Log) (*MqttSink, error) {
	if c.Broker == "" {
		return nil, errors.NotValidf("mqtt broker empty")
	}
	if c.ClientID == "" {
		c.ClientID = DefaultMqttClientID
	}
	if c.Topic == "" {
		c.Topic = DefaultMqttTopic
	}
	if c.Qos < 0 || c.Qos > 2 {
		return nil, errors.NotValidf("mqtt qos=%d", c.Qos)
	}
	mqttLog := log.Clone(log2.LDebug)
	mqtt.ERROR = mqttLog
	mqtt.CRITICAL = mqttLog

	opt := mqtt.NewClientOptions().
		AddBroker(c.Broker).
		SetAutoReconnect(true).
		SetClientID(c.ClientID).
		SetConnectTimeout(timeout).
		SetMaxReconnectInterval(timeout * 3).
		SetWriteTimeout(timeout)
	if c.Username != "" {
		opt.SetUsername(c.Username)
		opt.SetPassword(c.Password)
	}
	self := &MqttSink{
		m:       newMqttClient(opt),
		topic:   c.Topic,
		qos:     byte(c.Qos),
		timeout: timeout,
	}
	if err := self.tokenWait(self.m.Connect(), "connect"); err != nil {
		return nil, err
	}
	return self, nil
}

func (self *MqttSink) Write(b []byte) error {
	// client keeps payload until delivered, which may outlive timeout
	payload := append([]byte(nil), b...)
	return self.tokenWait(self.m.Publish(self.topic, self.qos, false, payload), "publish")
}

func (self *MqttSink) Close() error {
	self.m.Disconnect(uint(self.timeout / time.Millisecond))
	return nil
}

func (self *MqttSink) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(self.timeout) {
		return errors.Timeoutf("mqtt %s", tag)
	}
	return errors.Annotatef(t.Error(), "mqtt %s", tag)
}
