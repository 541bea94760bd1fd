package memuser

import (
	"context"
	"testing"

	"github.com/vigil-auth/vigil"
	"github.com/vigil-auth/vigil/password"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	hasher, err := password.NewHasher(password.Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return NewWithHasher(hasher)
}

func TestAddUserAndLookups(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	added, err := store.AddUser(vigil.User{
		Login:        "alice",
		Name:         "Alice Doe",
		SerialNumber: "serial-123",
		Active:       true,
		Roles:        []string{"operator"},
	}, "alice-password-1")
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	if added.UUID == "" {
		t.Fatal("expected a generated uuid")
	}

	byLogin, err := store.UserByLoginAndPassword(ctx, "alice", "alice-password-1")
	if err != nil {
		t.Fatalf("by login: %v", err)
	}
	if byLogin == nil || byLogin.UUID != added.UUID {
		t.Fatalf("unexpected user by login: %+v", byLogin)
	}

	bySerial, err := store.UserBySerial(ctx, "serial-123")
	if err != nil {
		t.Fatalf("by serial: %v", err)
	}
	if bySerial == nil || bySerial.UUID != added.UUID {
		t.Fatalf("unexpected user by serial: %+v", bySerial)
	}

	byUUID, err := store.UserByUUID(ctx, added.UUID)
	if err != nil {
		t.Fatalf("by uuid: %v", err)
	}
	if byUUID == nil || byUUID.Login != "alice" {
		t.Fatalf("unexpected user by uuid: %+v", byUUID)
	}
}

func TestWrongPasswordReturnsNoUser(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, err := store.AddUser(vigil.User{Login: "alice"}, "right-password"); err != nil {
		t.Fatalf("add user: %v", err)
	}

	user, err := store.UserByLoginAndPassword(ctx, "alice", "wrong-password")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user != nil {
		t.Fatal("wrong password must resolve to no user, not an error")
	}
}

func TestUUIDForKeyResolvesLoginAndSerial(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	added, err := store.AddUser(vigil.User{Login: "bob", SerialNumber: "serial-bob"}, "bob-password-1")
	if err != nil {
		t.Fatalf("add user: %v", err)
	}

	for _, key := range []string{"bob", "serial-bob"} {
		id, err := store.UUIDForKey(ctx, key)
		if err != nil {
			t.Fatalf("uuid for %q: %v", key, err)
		}
		if id != added.UUID {
			t.Fatalf("uuid for %q = %q, want %q", key, id, added.UUID)
		}
	}

	id, err := store.UUIDForKey(ctx, "nobody")
	if err != nil {
		t.Fatalf("uuid for absent key: %v", err)
	}
	if id != "" {
		t.Fatalf("absent key resolved to %q, want empty", id)
	}
}

func TestPermissionsForDeduplicatesAndSkipsBlanks(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	store.AddRole("operator", []string{"read", "write", ""})
	store.AddRole("auditor", []string{"read", "export"})

	perms, err := store.PermissionsFor(ctx, []string{"operator", "auditor", "missing"})
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}

	want := []string{"read", "write", "export"}
	if len(perms) != len(want) {
		t.Fatalf("permissions = %v, want %v", perms, want)
	}
	for i, p := range want {
		if perms[i] != p {
			t.Fatalf("permissions = %v, want %v", perms, want)
		}
	}
}

func TestSetLockedByLoginAndSerial(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	added, err := store.AddUser(vigil.User{Login: "carol", SerialNumber: "serial-carol"}, "carol-password")
	if err != nil {
		t.Fatalf("add user: %v", err)
	}

	if err := store.SetLocked(ctx, "serial-carol", true); err != nil {
		t.Fatalf("lock by serial: %v", err)
	}
	locked, err := store.IsLocked(ctx, added.UUID)
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if !locked {
		t.Fatal("expected locked after SetLocked by serial")
	}

	if err := store.SetLocked(ctx, "carol", false); err != nil {
		t.Fatalf("unlock by login: %v", err)
	}
	locked, err = store.IsLocked(ctx, added.UUID)
	if err != nil {
		t.Fatalf("is locked: %v", err)
	}
	if locked {
		t.Fatal("expected unlocked after SetLocked by login")
	}

	// Locking a key that matches no account is a silent no-op.
	if err := store.SetLocked(ctx, "nobody", true); err != nil {
		t.Fatalf("lock absent key: %v", err)
	}
}

func TestDuplicateUserRejected(t *testing.T) {
	store := testStore(t)

	if _, err := store.AddUser(vigil.User{Login: "dave"}, "dave-password-1"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if _, err := store.AddUser(vigil.User{Login: "dave"}, "other-password"); err == nil {
		t.Fatal("expected duplicate login rejection")
	}
}
