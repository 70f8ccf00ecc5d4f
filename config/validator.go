package config

import (
	"net"

	"github.com/luxfi/qdevice/algorithm"
)

// Validate checks a ServerConfig for internal consistency, returning
// every violation found rather than stopping at the first (the
// teacher's StrictMode accumulation pattern).
func (c *ServerConfig) Validate() error {
	var errs ValidationErrors
	if c.ListenAddress == "" {
		errs.add("listen_address", "must not be empty")
	} else if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		errs.add("listen_address", "must be host:port")
	}
	if c.RequireTLS && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		errs.add("tls_cert_file/tls_key_file", "both required when require_tls is set")
	}
	if c.RequireClientCert && c.TLSClientCACertFile == "" {
		errs.add("tls_client_ca_cert_file", "required when require_client_cert is set")
	}
	if c.MaxMessageLen <= 0 {
		errs.add("max_message_len", "must be positive")
	}
	if c.SendQueueMaxCount <= 0 {
		errs.add("send_queue_max_count", "must be positive")
	}
	if c.SendQueueMaxBytes <= 0 {
		errs.add("send_queue_max_bytes", "must be positive")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Validate checks a ClientConfig for internal consistency.
func (c *ClientConfig) Validate() error {
	var errs ValidationErrors
	if c.ClusterName == "" {
		errs.add("cluster_name", "must not be empty")
	}
	if c.ServerAddress == "" {
		errs.add("server_address", "must not be empty")
	}
	if c.NodeID == 0 && c.Ring0Addr == "" {
		errs.add("node_id/ring0_addr", "at least one must be set so a node_id can be derived")
	}
	if _, ok := algorithm.New(c.DecisionAlgorithm); !ok {
		errs.add("decision_algorithm", "unrecognized decision algorithm: "+c.DecisionAlgorithm)
	}
	if c.UseTLS && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		errs.add("tls_cert_file/tls_key_file", "both required when use_tls is set")
	}
	if c.HeartbeatInterval <= 0 {
		errs.add("heartbeat_interval", "must be positive")
	}
	if c.CastVoteTimerInterval <= 0 {
		errs.add("cast_vote_timer_interval", "must be positive")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
