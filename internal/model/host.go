package model

import (
	"crypto/rand"
	"encoding/hex"
)

type AuthMethod string

const (
	AuthPassword            AuthMethod = "password"
	AuthKey                 AuthMethod = "key"
	AuthAgent               AuthMethod = "agent"
	AuthKeyboardInteractive AuthMethod = "keyboard-interactive"
)

type HostKeyMode string

const (
	HostKeyKnownHosts HostKeyMode = "known_hosts"
	HostKeyInsecure   HostKeyMode = "insecure"
)

type AuthConfig struct {
	Method   AuthMethod `json:"method"`
	KeyPath  string     `json:"keyPath,omitempty"`  // when method=key
	Password string     `json:"password,omitempty"` // when method=password (stored in config)
}

type HostKeyConfig struct {
	Mode HostKeyMode `json:"mode,omitempty"` // known_hosts / insecure
}

type ConnectionDriver string

const (
	DriverSSH   ConnectionDriver = "ssh"
	DriverLocal ConnectionDriver = "local"
)

type LocalConfig struct {
	// Path to the executable started under a PTY, e.g. /bin/bash or a site tool.
	Path string `json:"path,omitempty"`

	// Command is the first command written to the session after connect (best-effort).
	Command string `json:"command,omitempty"`

	// Args are passed as-is (no shell). Placeholders supported:
	// {host} {port} {user} {name} {id}
	Args []string `json:"args,omitempty"`

	// Optional working directory for the process.
	WorkDir string `json:"workDir,omitempty"`

	// Optional extra environment variables (merged with the current environment).
	Env map[string]string `json:"env,omitempty"`
}

type SFTPCredentials string

const (
	SFTPCredsConnection SFTPCredentials = "connection"
	SFTPCredsCustom     SFTPCredentials = "custom"
)

type SFTPConfig struct {
	Enabled     bool            `json:"enabled"`
	Credentials SFTPCredentials `json:"credentials,omitempty"` // connection / custom
	User        string          `json:"user,omitempty"`        // when credentials=custom
	Password    string          `json:"password,omitempty"`    // when credentials=custom
}

type Host struct {
	ID  int    `json:"id"`
	UID string `json:"uid,omitempty"`

	Name string `json:"name"`

	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`

	// Connection driver for this host. Defaults to "ssh".
	Driver ConnectionDriver `json:"driver,omitempty"`

	Auth    AuthConfig    `json:"auth"`
	HostKey HostKeyConfig `json:"hostKey"`

	Local *LocalConfig `json:"local,omitempty"`

	SFTP *SFTPConfig `json:"sftp,omitempty"`

	// Legacy flag kept for config migration.
	SFTPEnabled bool `json:"sftpEnabled,omitempty"`
}

type Network struct {
	ID    int    `json:"id"`
	UID   string `json:"uid,omitempty"`
	Name  string `json:"name"`
	Hosts []Host `json:"hosts"`
}

type AppConfig struct {
	Version  int       `json:"version"`
	DeviceID string    `json:"deviceId,omitempty"`
	Networks []Network `json:"networks"`
}

// NewID returns a random 16-byte hex identifier.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
