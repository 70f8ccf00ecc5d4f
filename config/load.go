package config

import "github.com/BurntSushi/toml"

// LoadServerFile reads a qnetd TOML configuration file, starting from
// DefaultServerConfig so unset fields keep their defaults.
func LoadServerFile(path string) (*ServerConfig, error) {
	c := DefaultServerConfig()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

// LoadClientFile reads a qdevice TOML configuration file, starting from
// DefaultClientConfig so unset fields keep their defaults.
func LoadClientFile(path string) (*ClientConfig, error) {
	c := DefaultClientConfig()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, err
	}
	return c, c.Validate()
}
