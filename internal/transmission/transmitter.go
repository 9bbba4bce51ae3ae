package transmission

// Transmitter defines the interface for transmitting entity state
type Transmitter interface {
	Transmit() error
	IsConnected() bool
}

var _ Transmitter = (*MQTTTransmitter)(nil)
