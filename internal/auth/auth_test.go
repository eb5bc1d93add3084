package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestTokenFile_SaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")

	tf := &TokenFile{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
	}
	if err := tf.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("token file mode = %o, want 600", got)
	}

	loaded, err := LoadTokenFile(path)
	if err != nil {
		t.Fatalf("LoadTokenFile: %v", err)
	}
	if loaded.AccessToken != "access" || loaded.RefreshToken != "refresh" {
		t.Errorf("loaded = %+v, want original tokens", loaded)
	}
	if !loaded.ExpiresAt.Equal(tf.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", loaded.ExpiresAt, tf.ExpiresAt)
	}
}

func TestLoadTokenFile_MissingAccessToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte(`{"refresh_token":"only"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTokenFile(path); err == nil {
		t.Fatal("LoadTokenFile accepted a file without an access token")
	}
}

func TestTokenFile_IsExpired(t *testing.T) {
	fresh := &TokenFile{ExpiresAt: time.Now().Add(time.Hour)}
	if fresh.IsExpired(time.Minute) {
		t.Error("token valid for an hour reported expired")
	}

	closing := &TokenFile{ExpiresAt: time.Now().Add(30 * time.Second)}
	if !closing.IsExpired(time.Minute) {
		t.Error("token inside the renewal margin should report expired")
	}

	opaque := &TokenFile{}
	if opaque.IsExpired(time.Minute) {
		t.Error("token without expiry should never report expired")
	}
}

func TestRemoveTokenFile_IgnoresAbsence(t *testing.T) {
	if err := RemoveTokenFile(filepath.Join(t.TempDir(), "nope.json")); err != nil {
		t.Fatalf("RemoveTokenFile on missing file: %v", err)
	}
}

func TestProvider_HeaderWithoutCredentials(t *testing.T) {
	p := NewProvider(Config{TokenFile: filepath.Join(t.TempDir(), "token.json")})

	_, err := p.Header(context.Background())
	if !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("err = %v, want ErrLoginRequired", err)
	}
}

func TestProvider_SetTokenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	p := NewProvider(Config{TokenFile: path})

	err := p.SetToken(&oauth2.Token{
		AccessToken: "fresh",
		Expiry:      time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	header, err := p.Header(context.Background())
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	if header != "Bearer fresh" {
		t.Errorf("Header = %q, want Bearer fresh", header)
	}

	// A second provider picks up the persisted token.
	p2 := NewProvider(Config{TokenFile: path})
	header, err = p2.Header(context.Background())
	if err != nil {
		t.Fatalf("Header from persisted file: %v", err)
	}
	if header != "Bearer fresh" {
		t.Errorf("Header = %q, want Bearer fresh", header)
	}
}

func TestProvider_Forget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	p := NewProvider(Config{TokenFile: path})
	if err := p.SetToken(&oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	p.Forget()

	// The file survives Forget, so the header loads it again.
	if _, err := p.Header(context.Background()); err != nil {
		t.Fatalf("Header after Forget: %v", err)
	}
}

func TestExpiryFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	raw := unverifiedJWT(t, map[string]any{"exp": exp})

	got := expiryFromToken(raw)
	if got.Unix() != exp {
		t.Errorf("expiry = %v, want unix %d", got, exp)
	}

	if !expiryFromToken("not-a-jwt").IsZero() {
		t.Error("opaque token should yield zero expiry")
	}
	if !expiryFromToken(unverifiedJWT(t, map[string]any{"sub": "x"})).IsZero() {
		t.Error("token without exp should yield zero expiry")
	}
}

// unverifiedJWT builds a JWT-shaped token with an unsigned payload. The
// parser never checks the signature, so a dummy one is enough.
func unverifiedJWT(t *testing.T, claims map[string]any) string {
	t.Helper()

	enc := func(v any) string {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return base64.RawURLEncoding.EncodeToString(data)
	}

	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	return fmt.Sprintf("%s.%s.%s", enc(header), enc(claims), "sig")
}

func TestStaticSource(t *testing.T) {
	s := StaticSource("fixed")

	header, err := s.Header(context.Background())
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	if header != "Bearer fixed" {
		t.Errorf("Header = %q, want Bearer fixed", header)
	}

	if err := s.Reauthenticate(context.Background()); !errors.Is(err, ErrLoginRequired) {
		t.Errorf("Reauthenticate = %v, want ErrLoginRequired", err)
	}
}
