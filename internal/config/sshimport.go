package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vivyterm/vivyterm/internal/model"
)

type SSHImportSummary struct {
	Source      string   `json:"source"`
	NetworkName string   `json:"networkName"`
	NetworkID   int      `json:"networkId"`
	Added       int      `json:"added"`
	Updated     int      `json:"updated"`
	Skipped     int      `json:"skipped"`
	AddedHosts  []string `json:"addedHosts,omitempty"`
}

type sshConfigHost struct {
	Alias    string
	HostName string
	User     string
	Port     int
	KeyPath  string
}

// ImportSSHConfig reads an OpenSSH client config and merges its Host blocks
// into the given network (created when missing). Existing hosts are matched
// by name; wildcard patterns and proxy-only blocks are skipped.
func ImportSSHConfig(
	cfg model.AppConfig,
	path string,
	networkName string,
) (model.AppConfig, SSHImportSummary, error) {
	if path == "" {
		return cfg, SSHImportSummary{}, errors.New("ssh config path is empty")
	}
	if strings.TrimSpace(networkName) == "" {
		networkName = "SSH Config"
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, SSHImportSummary{}, err
	}
	defer f.Close()

	hosts, err := parseSSHConfig(f.Name(), bufio.NewScanner(f))
	if err != nil {
		return cfg, SSHImportSummary{}, err
	}
	if len(hosts) == 0 {
		return cfg, SSHImportSummary{}, errors.New("no usable Host blocks found")
	}

	netw := findOrCreateNetwork(&cfg, networkName)

	byName := map[string]int{}
	for i, h := range netw.Hosts {
		byName[h.Name] = i
	}

	summary := SSHImportSummary{
		Source:      path,
		NetworkName: netw.Name,
	}

	for _, sh := range hosts {
		host := model.Host{
			Name:   sh.Alias,
			Host:   sh.HostName,
			Port:   sh.Port,
			User:   sh.User,
			Driver: model.DriverSSH,
			Auth:   sshImportAuth(sh),
			HostKey: model.HostKeyConfig{
				Mode: model.HostKeyKnownHosts,
			},
		}

		if idx, ok := byName[sh.Alias]; ok {
			existing := &netw.Hosts[idx]
			if existing.Host == host.Host && existing.Port == host.Port && existing.User == host.User {
				summary.Skipped++
				continue
			}
			host.ID = existing.ID
			host.UID = existing.UID
			*existing = host
			summary.Updated++
			continue
		}

		netw.Hosts = append(netw.Hosts, host)
		byName[sh.Alias] = len(netw.Hosts) - 1
		summary.Added++
		summary.AddedHosts = append(summary.AddedHosts, sh.Alias)
	}

	_ = normalizeIDs(&cfg)
	_ = normalizeUIDs(&cfg)

	// A freshly created network only gets its ID here.
	summary.NetworkID = netw.ID

	return cfg, summary, nil
}

func sshImportAuth(sh sshConfigHost) model.AuthConfig {
	if sh.KeyPath != "" {
		return model.AuthConfig{
			Method:  model.AuthKey,
			KeyPath: sh.KeyPath,
		}
	}
	// No identity file: assume the agent carries the key.
	return model.AuthConfig{Method: model.AuthAgent}
}

func parseSSHConfig(source string, sc *bufio.Scanner) ([]sshConfigHost, error) {
	var out []sshConfigHost
	var cur *sshConfigHost

	flush := func() {
		if cur == nil {
			return
		}
		if cur.HostName == "" {
			cur.HostName = cur.Alias
		}
		if cur.Port == 0 {
			cur.Port = 22
		}
		out = append(out, *cur)
		cur = nil
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := splitSSHConfigLine(line)
		if !ok {
			continue
		}

		switch strings.ToLower(key) {
		case "host":
			flush()
			// Only single concrete aliases are importable.
			aliases := strings.Fields(value)
			if len(aliases) != 1 || strings.ContainsAny(aliases[0], "*?!") {
				continue
			}
			cur = &sshConfigHost{Alias: aliases[0]}

		case "hostname":
			if cur != nil {
				cur.HostName = value
			}

		case "user":
			if cur != nil {
				cur.User = value
			}

		case "port":
			if cur != nil {
				p, err := strconv.Atoi(value)
				if err != nil || p <= 0 || p > 65535 {
					return nil, fmt.Errorf("%s:%d: invalid port %q", source, lineNo, value)
				}
				cur.Port = p
			}

		case "identityfile":
			if cur != nil && cur.KeyPath == "" {
				cur.KeyPath = value
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()

	return out, nil
}

func splitSSHConfigLine(line string) (key, value string, ok bool) {
	// ssh_config allows both "Key Value" and "Key=Value".
	if i := strings.IndexAny(line, " \t="); i > 0 {
		key = line[:i]
		value = strings.Trim(strings.TrimLeft(line[i:], " \t="), `"`)
		return key, value, value != ""
	}
	return "", "", false
}

func findOrCreateNetwork(cfg *model.AppConfig, name string) *model.Network {
	for i := range cfg.Networks {
		if cfg.Networks[i].Name == name {
			return &cfg.Networks[i]
		}
	}
	cfg.Networks = append(cfg.Networks, model.Network{Name: name})
	return &cfg.Networks[len(cfg.Networks)-1]
}
