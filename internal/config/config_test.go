package config

import (
	"testing"

	"github.com/vivyterm/vivyterm/internal/model"
)

func TestStripSecrets(t *testing.T) {
	cfg := model.AppConfig{
		Networks: []model.Network{
			{
				ID:   1,
				Name: "n1",
				Hosts: []model.Host{
					{
						ID:   1,
						Name: "h1",
						Auth: model.AuthConfig{
							Method:   model.AuthPassword,
							Password: "secret",
						},
						SFTP: &model.SFTPConfig{
							Enabled:     true,
							Credentials: model.SFTPCredsCustom,
							User:        "u",
							Password:    "sftp-secret",
						},
					},
				},
			},
		},
	}

	if !StripSecrets(&cfg) {
		t.Fatal("expected secrets to be stripped")
	}

	host := cfg.Networks[0].Hosts[0]
	if host.Auth.Password != "" {
		t.Fatalf("auth password not cleared: %q", host.Auth.Password)
	}
	if host.SFTP != nil && host.SFTP.Password != "" {
		t.Fatalf("sftp password not cleared: %q", host.SFTP.Password)
	}
}

func TestNormalizeSFTP(t *testing.T) {
	cfg := model.AppConfig{
		Networks: []model.Network{
			{
				ID:   1,
				Name: "n1",
				Hosts: []model.Host{
					{
						ID:          1,
						Name:        "h1",
						SFTPEnabled: true,
					},
				},
			},
		},
	}

	if !normalizeSFTP(&cfg) {
		t.Fatal("expected normalizeSFTP to report changes")
	}

	host := cfg.Networks[0].Hosts[0]
	if host.SFTP == nil || !host.SFTP.Enabled {
		t.Fatal("expected SFTP to be enabled")
	}
	if host.SFTP.Credentials != model.SFTPCredsConnection {
		t.Fatalf("unexpected credentials mode: %q", host.SFTP.Credentials)
	}
}

func TestNormalizeDriversMigratesProcess(t *testing.T) {
	cfg := model.AppConfig{
		Networks: []model.Network{
			{
				ID:   1,
				Name: "n1",
				Hosts: []model.Host{
					{ID: 1, Name: "legacy", Driver: model.ConnectionDriver(legacyDriverProcess)},
					{ID: 2, Name: "shell", Local: &model.LocalConfig{Path: "/bin/bash"}},
					{ID: 3, Name: "plain"},
				},
			},
		},
	}

	if !normalizeDrivers(&cfg) {
		t.Fatal("expected normalizeDrivers to report changes")
	}

	hosts := cfg.Networks[0].Hosts
	if hosts[0].Driver != model.DriverLocal {
		t.Fatalf("legacy process driver not migrated: %q", hosts[0].Driver)
	}
	if hosts[1].Driver != model.DriverLocal {
		t.Fatalf("host with local block should use local driver: %q", hosts[1].Driver)
	}
	if hosts[2].Driver != model.DriverSSH {
		t.Fatalf("default driver should be ssh: %q", hosts[2].Driver)
	}
}

func TestNormalizeIDsUniqueAcrossNetworks(t *testing.T) {
	cfg := model.AppConfig{
		Networks: []model.Network{
			{
				ID:    1,
				Name:  "n1",
				Hosts: []model.Host{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}},
			},
			{
				ID:    2,
				Name:  "n2",
				Hosts: []model.Host{{ID: 1, Name: "c"}, {ID: 0, Name: "d"}},
			},
		},
	}

	if !normalizeIDs(&cfg) {
		t.Fatal("expected normalizeIDs to report changes")
	}

	seen := map[int]string{}
	for _, n := range cfg.Networks {
		for _, h := range n.Hosts {
			if h.ID <= 0 {
				t.Fatalf("host %s has non-positive ID %d", h.Name, h.ID)
			}
			if prev, dup := seen[h.ID]; dup {
				t.Fatalf("ID %d assigned to both %s and %s", h.ID, prev, h.Name)
			}
			seen[h.ID] = h.Name
		}
	}
}
