package link

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

type mqttMock struct {
	mu         sync.Mutex
	opt        *mqtt.ClientOptions
	pub        []mockMsg
	connectErr error
	publishErr error
	disconnect bool
}

type mockMsg struct {
	topic   string
	qos     byte
	payload []byte
}

func (self *mqttMock) new(opt *mqtt.ClientOptions) mqtt.Client {
	self.opt = opt
	return self
}

func (self *mqttMock) published() []mockMsg {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]mockMsg(nil), self.pub...)
}

func (self *mqttMock) Disconnect(uint) {
	self.mu.Lock()
	self.disconnect = true
	self.mu.Unlock()
}
func (self *mqttMock) IsConnected() bool      { return true }
func (self *mqttMock) IsConnectionOpen() bool { return true }
func (self *mqttMock) Connect() mqtt.Token    { return mockToken{self.connectErr} }

func (self *mqttMock) Publish(topic string, qos byte, retain bool, payload interface{}) mqtt.Token {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.publishErr != nil {
		return mockToken{self.publishErr}
	}
	self.pub = append(self.pub, mockMsg{topic, qos, payload.([]byte)})
	return mockToken{nil}
}

func (self *mqttMock) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}
func (self *mqttMock) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}
func (self *mqttMock) Unsubscribe(...string) mqtt.Token        { panic("not implemented") }
func (self *mqttMock) AddRoute(string, mqtt.MessageHandler)    { panic("not implemented") }
func (self *mqttMock) OptionsReader() mqtt.ClientOptionsReader { panic("not implemented") }

type mockToken struct{ error }

func (tok mockToken) Error() error {
	if errors.IsTimeout(tok.error) {
		return nil
	}
	return tok.error
}
func (tok mockToken) Wait() bool                     { return !errors.IsTimeout(tok.error) }
func (tok mockToken) WaitTimeout(time.Duration) bool { return !errors.IsTimeout(tok.error) }
