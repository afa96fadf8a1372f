// Package config defines the node's TOML-loaded configuration record.
package config

// ClientEntry is one bootstrap peer entry.
type ClientEntry struct {
	Host      string
	Port      uint16
	Reconnect bool
}

// Config is the full node configuration, loaded from TOML by cmd/mccloud
// and consumed by node.Node.
type Config struct {
	Host    string
	Port    uint16
	Thin    bool
	Folder  string
	KeyFile string
	Clients []ClientEntry
}

// Default returns the configuration defaults: loopback, the reference
// port, a local data folder, and no bootstrap peers.
func Default() Config {
	return Config{
		Host:    "127.0.0.1",
		Port:    39093,
		Thin:    false,
		Folder:  "data/",
		KeyFile: "data/node.key",
	}
}
