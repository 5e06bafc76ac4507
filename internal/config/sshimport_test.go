package config

import (
	"bufio"
	"os"
	"strings"
	"testing"

	"github.com/vivyterm/vivyterm/internal/model"
)

const sampleSSHConfig = `
# fleet hosts
Host web1
    HostName web1.internal
    User deploy
    Port 2222
    IdentityFile ~/.ssh/fleet_ed25519

Host *
    ServerAliveInterval 30

Host bastion
    User ops

Host db?
    HostName ignored.example
`

func TestParseSSHConfig(t *testing.T) {
	hosts, err := parseSSHConfig("test", bufio.NewScanner(strings.NewReader(sampleSSHConfig)))
	if err != nil {
		t.Fatal(err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d: %+v", len(hosts), hosts)
	}

	web := hosts[0]
	if web.Alias != "web1" || web.HostName != "web1.internal" || web.User != "deploy" || web.Port != 2222 {
		t.Fatalf("unexpected web1 block: %+v", web)
	}
	if web.KeyPath != "~/.ssh/fleet_ed25519" {
		t.Fatalf("unexpected identity file: %q", web.KeyPath)
	}

	bastion := hosts[1]
	if bastion.Alias != "bastion" {
		t.Fatalf("unexpected second host: %+v", bastion)
	}
	if bastion.HostName != "bastion" {
		t.Fatalf("alias should default the hostname, got %q", bastion.HostName)
	}
	if bastion.Port != 22 {
		t.Fatalf("port should default to 22, got %d", bastion.Port)
	}
}

func TestParseSSHConfigInvalidPort(t *testing.T) {
	in := "Host h\nPort 99999\n"
	if _, err := parseSSHConfig("test", bufio.NewScanner(strings.NewReader(in))); err == nil {
		t.Fatal("expected an error for an out-of-range port")
	}
}

func TestImportSSHConfigMerge(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config"
	if err := os.WriteFile(path, []byte(sampleSSHConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := model.AppConfig{
		Networks: []model.Network{
			{
				ID:   1,
				Name: "SSH Config",
				Hosts: []model.Host{
					{ID: 1, Name: "bastion", Host: "old.internal", Port: 22, User: "ops"},
				},
			},
		},
	}

	cfg, summary, err := ImportSSHConfig(cfg, path, "")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Added != 1 {
		t.Fatalf("expected 1 added, got %d", summary.Added)
	}
	if summary.Updated != 1 {
		t.Fatalf("expected 1 updated, got %d", summary.Updated)
	}

	netw := cfg.Networks[0]
	if len(netw.Hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %d", len(netw.Hosts))
	}

	var bastion *model.Host
	for i := range netw.Hosts {
		if netw.Hosts[i].Name == "bastion" {
			bastion = &netw.Hosts[i]
		}
	}
	if bastion == nil {
		t.Fatal("bastion missing after import")
	}
	if bastion.ID != 1 {
		t.Fatalf("update should keep the host ID, got %d", bastion.ID)
	}
	if bastion.Host != "bastion" {
		t.Fatalf("update should replace the hostname, got %q", bastion.Host)
	}
	if bastion.Auth.Method != model.AuthAgent {
		t.Fatalf("host without identity file should use agent auth, got %q", bastion.Auth.Method)
	}
}

func TestImportSSHConfigReimportSkips(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config"
	if err := os.WriteFile(path, []byte(sampleSSHConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, first, err := ImportSSHConfig(model.AppConfig{}, path, "Fleet")
	if err != nil {
		t.Fatal(err)
	}
	if first.NetworkID == 0 {
		t.Fatalf("import into a new network must report its assigned ID: %+v", first)
	}
	if first.NetworkID != cfg.Networks[0].ID {
		t.Fatalf("summary ID %d does not match network ID %d", first.NetworkID, cfg.Networks[0].ID)
	}
	cfg, summary, err := ImportSSHConfig(cfg, path, "Fleet")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Added != 0 || summary.Updated != 0 || summary.Skipped != 2 {
		t.Fatalf("reimport should skip everything: %+v", summary)
	}
	if len(cfg.Networks) != 1 || len(cfg.Networks[0].Hosts) != 2 {
		t.Fatalf("unexpected inventory after reimport: %+v", cfg.Networks)
	}
}
