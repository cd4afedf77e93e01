package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	// StaleTimeout is how long a connection may go without any inbound
	// activity before the registry sweep closes it.
	StaleTimeout time.Duration
}

const defaultStaleTimeout = 5 * time.Minute

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		StaleTimeout:   defaultStaleTimeout,
	}, nil
}
