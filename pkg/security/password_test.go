package security_test

import (
	"strings"
	"testing"

	"github.com/toolyard/marketplace-backend/pkg/config"
	"github.com/toolyard/marketplace-backend/pkg/security"
)

func testHasher(memoryKB int) *security.Hasher {
	return security.NewHasher(config.PasswordConfig{
		ArgonMemoryKB:    memoryKB,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	})
}

func TestHashAndVerify(t *testing.T) {
	h := testHasher(8192)
	hash, err := h.Hash("very-secure-password1")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected hash layout: %s", hash)
	}

	if ok, err := h.Verify("very-secure-password1", hash); err != nil || !ok {
		t.Fatalf("expected correct password to verify, ok=%v err=%v", ok, err)
	}
	if ok, err := h.Verify("bogus-password", hash); err != nil || ok {
		t.Fatalf("expected wrong password to fail, ok=%v err=%v", ok, err)
	}
	if _, err := h.Hash(""); err == nil {
		t.Fatal("expected empty password to be rejected")
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := testHasher(8192)
	for _, encoded := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$a2V5",
	} {
		if _, err := h.Verify("irrelevant", encoded); err != security.ErrInvalidHash {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", encoded, err)
		}
	}
}

func TestNeedsRehashTracksCost(t *testing.T) {
	old := testHasher(8192)
	hash, err := old.Hash("toolbox42")
	if err != nil {
		t.Fatal(err)
	}
	if old.NeedsRehash(hash) {
		t.Fatal("hash made with current params should not need a rehash")
	}
	current := testHasher(16384)
	if !current.NeedsRehash(hash) {
		t.Fatal("expected memory cost change to require a rehash")
	}
	if ok, _ := current.Verify("toolbox42", hash); !ok {
		t.Fatal("older hashes must still verify")
	}
}

func TestCheckPasswordPolicy(t *testing.T) {
	cases := map[string]bool{
		"short1":                 false,
		"allletters":             false,
		"12345678":               false,
		"toolbox42":              true,
		"wrench-set-9x":          true,
		"säge1234":               true,
		strings.Repeat("a1", 65): false,
	}
	for password, ok := range cases {
		err := security.CheckPasswordPolicy(password)
		if ok && err != nil {
			t.Fatalf("expected %q to pass policy, got %v", password, err)
		}
		if !ok && err == nil {
			t.Fatalf("expected %q to fail policy", password)
		}
	}
}
