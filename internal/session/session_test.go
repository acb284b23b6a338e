package session

import (
	"errors"
	"testing"
	"time"

	"github.com/kuuji/roxi/internal/rerr"
	"github.com/kuuji/roxi/pkg/wire"
)

func TestAuthenticateGoodKey(t *testing.T) {
	t.Parallel()

	tbl := NewTable("correct-horse")
	cfg := ClientConfig{SharedKey: "correct-horse"}

	if err := tbl.Authenticate("1.2.3.4", cfg, time.Hour); err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if !tbl.Exists("1.2.3.4") {
		t.Fatal("session should exist after successful authenticate")
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
}

func TestAuthenticateBadKeyDoesNotInsert(t *testing.T) {
	t.Parallel()

	tbl := NewTable("correct-horse")
	cfg := ClientConfig{SharedKey: "wrong"}

	err := tbl.Authenticate("1.2.3.4", cfg, time.Hour)
	if !errors.Is(err, rerr.ErrInvalidSharedKey) {
		t.Fatalf("Authenticate() error = %v, want ErrInvalidSharedKey", err)
	}
	if tbl.Exists("1.2.3.4") {
		t.Fatal("session should not exist after failed authenticate")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", tbl.Len())
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	tbl := NewTable("k")
	if err := tbl.Authenticate("c1", ClientConfig{SharedKey: "k"}, time.Hour); err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if !tbl.Exists("c1") {
		t.Fatal("expected session to exist")
	}
	tbl.Remove("c1")
	if tbl.Exists("c1") {
		t.Fatal("expected session to be removed")
	}
}

func TestGetPeerForGatewayExcludesRequester(t *testing.T) {
	t.Parallel()

	tbl := NewTable("k")
	addr1, _ := wire.NewAddress([]byte{10, 0, 0, 1}, 1)
	addr2, _ := wire.NewAddress([]byte{10, 0, 0, 2}, 2)

	_ = tbl.Authenticate("c1", ClientConfig{SharedKey: "k", GatewayAddr: addr1}, time.Hour)
	_ = tbl.Authenticate("c2", ClientConfig{SharedKey: "k", GatewayAddr: addr2}, time.Hour)

	for i := 0; i < 20; i++ {
		got, err := tbl.GetPeerForGateway("c1")
		if err != nil {
			t.Fatalf("GetPeerForGateway() error: %v", err)
		}
		if got != addr2 {
			t.Fatalf("GetPeerForGateway(c1) = %v, want %v (c1's own address must never be returned)", got, addr2)
		}
	}
}

func TestGetPeerForGatewayOnlySelfFails(t *testing.T) {
	t.Parallel()

	tbl := NewTable("k")
	addr1, _ := wire.NewAddress([]byte{10, 0, 0, 1}, 1)
	_ = tbl.Authenticate("c1", ClientConfig{SharedKey: "k", GatewayAddr: addr1}, time.Hour)

	_, err := tbl.GetPeerForGateway("c1")
	if !errors.Is(err, rerr.ErrNoAvailablePeers) {
		t.Fatalf("GetPeerForGateway() error = %v, want ErrNoAvailablePeers", err)
	}
}

func TestCleanupDropsExpiredSessions(t *testing.T) {
	t.Parallel()

	tbl := NewTable("k")
	_ = tbl.Authenticate("c1", ClientConfig{SharedKey: "k"}, time.Nanosecond)
	time.Sleep(time.Millisecond)

	tbl.Cleanup()
	if tbl.Exists("c1") {
		t.Fatal("expired session should have been evicted by Cleanup")
	}
}

func TestClearEmptiesTable(t *testing.T) {
	t.Parallel()

	tbl := NewTable("k")
	_ = tbl.Authenticate("c1", ClientConfig{SharedKey: "k"}, time.Hour)
	_ = tbl.Authenticate("c2", ClientConfig{SharedKey: "k"}, time.Hour)

	tbl.Clear()
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d after Clear(), want 0", tbl.Len())
	}
}

func TestIdempotentAuthenticateSameClient(t *testing.T) {
	t.Parallel()

	tbl := NewTable("k")
	addr1, _ := wire.NewAddress([]byte{1, 1, 1, 1}, 1)
	addr2, _ := wire.NewAddress([]byte{2, 2, 2, 2}, 2)

	_ = tbl.Authenticate("c1", ClientConfig{SharedKey: "k", GatewayAddr: addr1}, time.Hour)
	_ = tbl.Authenticate("c1", ClientConfig{SharedKey: "k", GatewayAddr: addr2}, time.Hour)

	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (at most one entry per ClientId)", tbl.Len())
	}
}
