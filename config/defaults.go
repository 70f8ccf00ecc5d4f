package config

import (
	"time"

	"github.com/luxfi/qdevice/sendbuf"
	"github.com/luxfi/qdevice/wire"
)

const DefaultListenAddress = ":5403"

// DefaultServerConfig returns a ServerConfig with spec.md-default
// bounds (send-queue and message-length ceilings from sendbuf/wire),
// TLS disabled, matching corosync's qnetd defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddress:     DefaultListenAddress,
		MaxMessageLen:     wire.MaxMessageLen,
		SendQueueMaxCount: sendbuf.DefaultMaxCount,
		SendQueueMaxBytes: sendbuf.DefaultMaxBytes,
	}
}

// DefaultClientConfig returns a ClientConfig with corosync-typical
// timer intervals.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerAddress:         DefaultListenAddress,
		DecisionAlgorithm:     "FFSPLIT",
		HeartbeatInterval:     30 * time.Second,
		CastVoteTimerInterval: time.Second,
		ReconnectBackoff:      time.Second,
		MaxMessageLen:         wire.MaxMessageLen,
	}
}
