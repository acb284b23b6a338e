package wgtool

import (
	"testing"

	"github.com/kuuji/roxi/internal/wgconf"
)

func TestDerivePublicKeyMatchesWgconf(t *testing.T) {
	priv, err := wgconf.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error: %v", err)
	}

	got := DerivePublicKey(priv)
	want := wgconf.PublicKey(priv)
	if got.String() != want.String() {
		t.Fatalf("DerivePublicKey() = %v, want %v", got, want)
	}
}

func TestReadDevicePublicKeyFailsForMissingInterface(t *testing.T) {
	if _, err := ReadDevicePublicKey("wg-does-not-exist-in-this-test-environment"); err == nil {
		t.Fatal("expected an error querying a nonexistent WireGuard device")
	}
}
