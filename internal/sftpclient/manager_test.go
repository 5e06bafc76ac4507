package sftpclient

import (
	"testing"

	"github.com/vivyterm/vivyterm/internal/model"
)

func TestCleanRemotePath(t *testing.T) {
	cases := map[string]string{
		"":           ".",
		" /tmp ":     "/tmp",
		"foo/../bar": "bar",
		"a\\b":       "a/b",
		"~/data":     "~/data",
	}
	for in, expected := range cases {
		if got := cleanRemotePath(in); got != expected {
			t.Fatalf("cleanRemotePath(%q) = %q, want %q", in, got, expected)
		}
	}
}

func TestSFTPCustomPasswordCache(t *testing.T) {
	mgr := NewManager(model.AppConfig{})

	host := model.Host{
		ID:   7,
		Name: "h1",
		User: "u1",
		SFTP: &model.SFTPConfig{
			Enabled:     true,
			Credentials: model.SFTPCredsCustom,
			User:        "sftp-user",
		},
	}

	mgr.SetCustomPassword(host.ID, "secret")

	user, pwFn, err := mgr.sftpAuth(host, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != "sftp-user" {
		t.Fatalf("unexpected user: %q", user)
	}
	pw, err := pwFn()
	if err != nil {
		t.Fatalf("unexpected pw error: %v", err)
	}
	if pw != "secret" {
		t.Fatalf("unexpected password: %q", pw)
	}
}

func TestSFTPConnectionCredentials(t *testing.T) {
	mgr := NewManager(model.AppConfig{})

	host := model.Host{
		ID:   3,
		User: "deploy",
		Auth: model.AuthConfig{Method: model.AuthAgent},
		SFTP: &model.SFTPConfig{
			Enabled:     true,
			Credentials: model.SFTPCredsConnection,
		},
	}

	user, pwFn, err := mgr.sftpAuth(host, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != "deploy" {
		t.Fatalf("unexpected user: %q", user)
	}
	// Non-password auth never needs the provider.
	if pw, err := pwFn(); err != nil || pw != "" {
		t.Fatalf("expected empty password for agent auth, got %q err=%v", pw, err)
	}
}

func TestSFTPCustomCredentialsRequireUser(t *testing.T) {
	mgr := NewManager(model.AppConfig{})

	host := model.Host{
		ID: 4,
		SFTP: &model.SFTPConfig{
			Enabled:     true,
			Credentials: model.SFTPCredsCustom,
		},
	}

	if _, _, err := mgr.sftpAuth(host, nil); err == nil {
		t.Fatal("expected error for custom credentials without user")
	}
}

func TestIsSFTPEnabled(t *testing.T) {
	if isSFTPEnabled(model.Host{}) {
		t.Fatal("bare host should not enable sftp")
	}
	if !isSFTPEnabled(model.Host{SFTPEnabled: true}) {
		t.Fatal("legacy flag should enable sftp")
	}
	if isSFTPEnabled(model.Host{SFTPEnabled: true, SFTP: &model.SFTPConfig{Enabled: false}}) {
		t.Fatal("sftp block should override the legacy flag")
	}
}
