package cli

import (
	"testing"
	"time"

	"github.com/vivyterm/vivyterm/internal/model"
	"github.com/vivyterm/vivyterm/internal/session"
	"github.com/vivyterm/vivyterm/internal/sftpclient"
)

func TestEscapeFilterDetach(t *testing.T) {
	esc := escapeState{atLineStart: true}

	out, detach := esc.filter([]byte("~."), true)
	if !detach {
		t.Fatal("~. at line start should detach")
	}
	if len(out) != 0 {
		t.Fatalf("detach should swallow the sequence, got %q", out)
	}
}

func TestEscapeFilterHeldTildeForwarded(t *testing.T) {
	esc := escapeState{atLineStart: true}

	out, detach := esc.filter([]byte("~x"), true)
	if detach {
		t.Fatal("~x should not detach")
	}
	if string(out) != "~x" {
		t.Fatalf("held tilde should be forwarded, got %q", out)
	}
}

func TestEscapeFilterMidLineTilde(t *testing.T) {
	esc := escapeState{atLineStart: true}

	out, detach := esc.filter([]byte("a~."), true)
	if detach {
		t.Fatal("mid-line ~. should not detach")
	}
	if string(out) != "a~." {
		t.Fatalf("mid-line input should pass through, got %q", out)
	}
}

func TestEscapeFilterAfterNewline(t *testing.T) {
	esc := escapeState{atLineStart: true}

	out, detach := esc.filter([]byte("ls\r"), true)
	if detach || string(out) != "ls\r" {
		t.Fatalf("unexpected filter result: out=%q detach=%v", out, detach)
	}

	// The carriage return re-arms the escape.
	if _, detach = esc.filter([]byte("~."), true); !detach {
		t.Fatal("~. after newline should detach")
	}
}

func TestEscapeFilterSplitAcrossReads(t *testing.T) {
	esc := escapeState{atLineStart: true}

	out, detach := esc.filter([]byte("~"), true)
	if detach || len(out) != 0 {
		t.Fatalf("lone tilde should be held, got out=%q detach=%v", out, detach)
	}
	if _, detach = esc.filter([]byte("."), true); !detach {
		t.Fatal("dot completing the sequence should detach")
	}
}

func TestEscapeFilterNonInteractive(t *testing.T) {
	esc := escapeState{atLineStart: true}

	out, detach := esc.filter([]byte("~."), false)
	if detach {
		t.Fatal("non-interactive input should never detach")
	}
	if string(out) != "~." {
		t.Fatalf("non-interactive input should pass through, got %q", out)
	}
}

func TestResolveHostByIDAndName(t *testing.T) {
	cfg := model.AppConfig{
		Networks: []model.Network{
			{
				ID:   1,
				Name: "fleet",
				Hosts: []model.Host{
					{ID: 3, Name: "web1", Host: "web1.internal", Port: 22, User: "deploy"},
				},
			},
		},
	}

	h, err := resolveHost(cfg, "3")
	if err != nil || h.Name != "web1" {
		t.Fatalf("lookup by ID failed: %+v err=%v", h, err)
	}

	h, err = resolveHost(cfg, "web1")
	if err != nil || h.ID != 3 {
		t.Fatalf("lookup by name failed: %+v err=%v", h, err)
	}

	if _, err := resolveHost(cfg, "99"); err == nil {
		t.Fatal("unknown numeric ID should error, not fall through to ad-hoc")
	}
}

func TestAdHocHost(t *testing.T) {
	h, err := adHocHost("deploy@edge.example:2022")
	if err != nil {
		t.Fatal(err)
	}
	if h.User != "deploy" || h.Host != "edge.example" || h.Port != 2022 {
		t.Fatalf("unexpected ad-hoc host: %+v", h)
	}
	if h.Driver != model.DriverSSH {
		t.Fatalf("ad-hoc hosts are ssh, got %q", h.Driver)
	}
	if h.HostKey.Mode != model.HostKeyKnownHosts {
		t.Fatalf("ad-hoc hosts should verify host keys, got %q", h.HostKey.Mode)
	}

	if _, err := adHocHost("deploy@edge.example:notaport"); err == nil {
		t.Fatal("expected error for bad port")
	}

	t.Setenv("USER", "fallback")
	h, err = adHocHost("edge.example")
	if err != nil {
		t.Fatal(err)
	}
	if h.User != "fallback" || h.Port != 22 {
		t.Fatalf("unexpected defaults: %+v", h)
	}
}

func TestAdHocHostIPv6(t *testing.T) {
	t.Setenv("USER", "ops")

	h, err := adHocHost("[::1]:2222")
	if err != nil {
		t.Fatal(err)
	}
	if h.Host != "::1" || h.Port != 2222 {
		t.Fatalf("bracketed IPv6 with port mis-parsed: %+v", h)
	}

	h, err = adHocHost("deploy@[fe80::1]")
	if err != nil {
		t.Fatal(err)
	}
	if h.Host != "fe80::1" || h.Port != 22 || h.User != "deploy" {
		t.Fatalf("bracketed IPv6 without port mis-parsed: %+v", h)
	}

	h, err = adHocHost("::1")
	if err != nil {
		t.Fatal(err)
	}
	if h.Host != "::1" || h.Port != 22 {
		t.Fatalf("bare IPv6 literal mis-parsed: %+v", h)
	}

	if _, err := adHocHost("a:b:c"); err == nil {
		t.Fatal("multi-colon non-address target should error")
	}
	if _, err := adHocHost("[::1"); err == nil {
		t.Fatal("unterminated bracket should error")
	}
}

func TestParseForwardSpec(t *testing.T) {
	listen, target, err := parseForwardSpec("8080:localhost:80")
	if err != nil || listen != "127.0.0.1:8080" || target != "localhost:80" {
		t.Fatalf("got listen=%q target=%q err=%v", listen, target, err)
	}

	listen, target, err = parseForwardSpec("0.0.0.0:8080:db.internal:5432")
	if err != nil || listen != "0.0.0.0:8080" || target != "db.internal:5432" {
		t.Fatalf("got listen=%q target=%q err=%v", listen, target, err)
	}

	if _, _, err := parseForwardSpec("8080"); err == nil {
		t.Fatal("expected error for short spec")
	}
}

func TestSplitSCPArg(t *testing.T) {
	cases := []struct {
		in   string
		host string
		path string
	}{
		{"web1:/etc/app.conf", "web1", "/etc/app.conf"},
		{"./local.txt", "", "./local.txt"},
		{"/abs/file", "", "/abs/file"},
		{"plain.txt", "", "plain.txt"},
		{"../up.txt", "", "../up.txt"},
	}
	for _, c := range cases {
		host, path := splitSCPArg(c.in)
		if host != c.host || path != c.path {
			t.Fatalf("splitSCPArg(%q) = (%q, %q), want (%q, %q)", c.in, host, path, c.host, c.path)
		}
	}
}

func TestNotifyResizeStopClosesChannel(t *testing.T) {
	ch := make(chan struct{}, 1)
	stop := notifyResize(ch)
	stop()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("resize channel not closed after stop; its consumer would leak")
		}
	}
}

func TestEnsureInventoryRegistersAdHoc(t *testing.T) {
	app := &App{
		Sessions: session.NewManager(model.AppConfig{}),
		SFTP:     sftpclient.NewManager(model.AppConfig{}),
	}

	host := model.Host{Name: "deploy@edge", Host: "edge", Port: 22, User: "deploy", Driver: model.DriverSSH}
	id := ensureInventory(app, host)
	if id <= 0 {
		t.Fatalf("expected a positive ID, got %d", id)
	}

	got, ok := app.Sessions.FindHost(id)
	if !ok {
		t.Fatal("ad-hoc host not registered with the session manager")
	}
	if got.Host != "edge" {
		t.Fatalf("unexpected registered host: %+v", got)
	}

	// A second ad-hoc host lands in the same transient network with a new ID.
	id2 := ensureInventory(app, model.Host{Name: "x", Host: "x", Port: 22, User: "u", Driver: model.DriverSSH})
	if id2 == id {
		t.Fatalf("IDs should be distinct, both %d", id)
	}
	cfg := app.Sessions.Config()
	if len(cfg.Networks) != 1 || cfg.Networks[0].Name != "ad-hoc" {
		t.Fatalf("expected a single ad-hoc network, got %+v", cfg.Networks)
	}
}
