// Package config loads the daemon configuration from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/die-net/socks5d/internal/logging"
)

type Config struct {
	SOCKS5Listen       string         `yaml:"socks5Listen"`
	Upstream           string         `yaml:"upstream"`
	DNSServer          string         `yaml:"dnsServer"`
	DialTimeout        time.Duration  `yaml:"dialTimeout"`
	NegotiationTimeout time.Duration  `yaml:"negotiationTimeout"`
	TCPKeepAlive       string         `yaml:"tcpKeepAlive"`
	Username           string         `yaml:"username"`
	Password           string         `yaml:"password"`
	ReplyOnDialError   bool           `yaml:"replyOnDialError"`
	DebugListen        string         `yaml:"debugListen"`
	Log                logging.Config `yaml:"log"`
}

// Default returns the built-in settings. Upstream follows ALL_PROXY when it
// is set in the environment.
func Default() Config {
	return Config{
		SOCKS5Listen:       "127.0.0.1:1080",
		Upstream:           defaultUpstream(),
		DialTimeout:        10 * time.Second,
		NegotiationTimeout: 10 * time.Second,
		TCPKeepAlive:       "45:45:3",
		Log:                logging.Default(),
	}
}

// Load reads the YAML file at path over Default. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}

// Validate reports settings the daemon cannot start with.
func (c Config) Validate() error {
	if c.SOCKS5Listen == "" {
		return errors.New("socks5 listen address is empty")
	}
	if c.Username != "" && c.Password == "" {
		return errors.New("username set without password")
	}
	if c.Password != "" && c.Username == "" {
		return errors.New("password set without username")
	}
	if len(c.Username) > 255 || len(c.Password) > 255 {
		return errors.New("username and password must be at most 255 bytes")
	}
	return nil
}
