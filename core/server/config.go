package server

import "fmt"

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Validate checks that the port is usable.
func (c Config) Validate() error {
	var n int
	if _, err := fmt.Sscanf(c.Port, "%d", &n); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("invalid server port %q", c.Port)
	}
	return nil
}
