// Package config holds the daemon configuration for both qnetd and
// qdevice, loaded from flags and an optional TOML file, grounded on
// the teacher's config.Parameters / StrictMode-SoftMode convention.
package config

import "time"

// ServerConfig configures the qnetd arbiter daemon.
type ServerConfig struct {
	// ListenAddress is the TCP address qnetd binds and listens on.
	ListenAddress string `toml:"listen_address"`
	// TLSCertFile and TLSKeyFile are the server's STARTTLS credentials.
	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`
	// TLSClientCACertFile verifies client certificates when
	// RequireClientCert is set (mutual TLS).
	TLSClientCACertFile string `toml:"tls_client_ca_cert_file"`
	RequireTLS          bool   `toml:"require_tls"`
	RequireClientCert   bool   `toml:"require_client_cert"`

	// MaxMessageLen bounds the negotiated msg_len ceiling (spec.md §4.1).
	MaxMessageLen int `toml:"max_message_len"`
	// SendQueueMaxCount and SendQueueMaxBytes bound each session's
	// send-buffer list (spec.md §4.3).
	SendQueueMaxCount int `toml:"send_queue_max_count"`
	SendQueueMaxBytes int `toml:"send_queue_max_bytes"`

	// MetricsListenAddress, if non-empty, serves Prometheus metrics.
	MetricsListenAddress string `toml:"metrics_listen_address"`
}

// ClientConfig configures the qdevice arbiter client daemon.
type ClientConfig struct {
	ClusterName      string        `toml:"cluster_name"`
	ServerAddress    string        `toml:"server_address"`
	NodeID           uint32        `toml:"node_id"`
	Ring0Addr        string        `toml:"ring0_addr"`
	ClearNodeHighBit bool          `toml:"clear_node_high_bit"`
	DecisionAlgorithm string       `toml:"decision_algorithm"`

	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`
	TLSCAFile   string `toml:"tls_ca_file"`
	UseTLS      bool   `toml:"use_tls"`

	HeartbeatInterval   time.Duration `toml:"heartbeat_interval"`
	CastVoteTimerInterval time.Duration `toml:"cast_vote_timer_interval"`
	ReconnectBackoff    time.Duration `toml:"reconnect_backoff"`

	MaxMessageLen int `toml:"max_message_len"`

	MetricsListenAddress string `toml:"metrics_listen_address"`
}
