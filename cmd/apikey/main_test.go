package main

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/screenleads/backend/pkg/auth/apikey"
	"github.com/screenleads/backend/pkg/storage"
	"github.com/screenleads/backend/pkg/storage/memory"
)

// trackedStore records the config path it was opened with and whether it
// was closed.
type trackedStore struct {
	*memory.Store
	configPath string
	closed     bool
}

func (s *trackedStore) Close() error {
	s.closed = true
	return nil
}

func openerFor(s *trackedStore) opener {
	return func(_ context.Context, configPath string) (keyStore, error) {
		s.configPath = configPath
		return s, nil
	}
}

var keyLine = regexp.MustCompile(`(?m)^key:\s+(\S+)$`)
var idLine = regexp.MustCompile(`(?m)^id:\s+(\d+)$`)

func TestCreate(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantLive    bool
		wantPerms   []string
		wantCompany int64
		wantExpiry  bool
		wantConfig  string
	}{
		{
			name: "test key",
			args: []string{"create", "-client", "kiosk-1"},
		},
		{
			name:        "live scoped key",
			args:        []string{"create", "-config", "/etc/sl.yaml", "-client", "kiosk-1", "-company", "7", "-perms", "devices:read, companies:read,", "-live", "-ttl", "1h"},
			wantLive:    true,
			wantPerms:   []string{"devices:read", "companies:read"},
			wantCompany: 7,
			wantExpiry:  true,
			wantConfig:  "/etc/sl.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &trackedStore{Store: memory.New()}
			var stdout, stderr bytes.Buffer
			if err := run(context.Background(), tt.args, openerFor(store), &stdout, &stderr); err != nil {
				t.Fatalf("run: %v (stderr %q)", err, stderr.String())
			}
			if !store.closed {
				t.Error("store was not closed")
			}
			if store.configPath != tt.wantConfig {
				t.Errorf("config path = %q, want %q", store.configPath, tt.wantConfig)
			}

			m := keyLine.FindStringSubmatch(stdout.String())
			if m == nil {
				t.Fatalf("no key in output %q", stdout.String())
			}
			key := m[1]
			if apikey.IsLive(key) != tt.wantLive {
				t.Errorf("key %q live = %v, want %v", key, !tt.wantLive, tt.wantLive)
			}
			idm := idLine.FindStringSubmatch(stdout.String())
			if idm == nil {
				t.Fatalf("no id in output %q", stdout.String())
			}

			// The printed key authenticates against what was stored.
			authn := &apikey.Authenticator{Store: store}
			p, err := authn.Authenticate(context.Background(), "kiosk-1", key)
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if strconv.FormatInt(p.KeyID, 10) != idm[1] {
				t.Errorf("printed id %s, stored %d", idm[1], p.KeyID)
			}
			if !slices.Equal(p.Permissions, tt.wantPerms) {
				t.Errorf("permissions = %v, want %v", p.Permissions, tt.wantPerms)
			}
			switch {
			case tt.wantCompany == 0 && p.CompanyScope != nil:
				t.Errorf("company scope = %d, want none", *p.CompanyScope)
			case tt.wantCompany != 0 && (p.CompanyScope == nil || *p.CompanyScope != tt.wantCompany):
				t.Errorf("company scope = %v, want %d", p.CompanyScope, tt.wantCompany)
			}

			rec, err := store.FindActiveKey(context.Background(), "kiosk-1", key[:apikey.PrefixLength])
			if err != nil {
				t.Fatalf("FindActiveKey: %v", err)
			}
			if (rec.ExpiresAt != nil) != tt.wantExpiry {
				t.Errorf("expires_at = %v, want set = %v", rec.ExpiresAt, tt.wantExpiry)
			}
			if strings.Contains(rec.KeyHash, key) {
				t.Error("plaintext key stored")
			}
		})
	}
}

func TestRevoke(t *testing.T) {
	store := &trackedStore{Store: memory.New()}
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"create", "-client", "kiosk-1"}, openerFor(store), &stdout, &stderr); err != nil {
		t.Fatalf("create: %v", err)
	}
	key := keyLine.FindStringSubmatch(stdout.String())[1]
	id := idLine.FindStringSubmatch(stdout.String())[1]

	stdout.Reset()
	if err := run(context.Background(), []string{"revoke", "-id", id}, openerFor(store), &stdout, &stderr); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if got := stdout.String(); got != "revoked "+id+"\n" {
		t.Errorf("output = %q", got)
	}

	authn := &apikey.Authenticator{Store: store}
	if _, err := authn.Authenticate(context.Background(), "kiosk-1", key); !errors.Is(err, apikey.ErrInvalidKey) {
		t.Errorf("revoked key Authenticate = %v, want ErrInvalidKey", err)
	}

	err := run(context.Background(), []string{"revoke", "-id", "9999"}, openerFor(store), &stdout, &stderr)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("revoke unknown id = %v, want ErrNotFound", err)
	}
}

func TestRunRejectsBadInvocations(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"no command", nil, errUsage},
		{"unknown command", []string{"rotate"}, errUsage},
		{"create without client", []string{"create"}, nil},
		{"revoke without id", []string{"revoke"}, nil},
		{"unknown flag", []string{"create", "-bogus"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opened := false
			open := func(context.Context, string) (keyStore, error) {
				opened = true
				return &trackedStore{Store: memory.New()}, nil
			}
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, open, &stdout, &stderr)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if opened {
				t.Error("store opened for an invalid invocation")
			}
			if stdout.Len() != 0 {
				t.Errorf("unexpected output %q", stdout.String())
			}
		})
	}
}

func TestCreateOpenFailure(t *testing.T) {
	boom := errors.New("connection refused")
	open := func(context.Context, string) (keyStore, error) { return nil, boom }

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"create", "-client", "kiosk-1"}, open, &stdout, &stderr)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
	if stdout.Len() != 0 {
		t.Errorf("key printed despite failure: %q", stdout.String())
	}
}
