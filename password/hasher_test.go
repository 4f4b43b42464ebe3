package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("Str0ng!Pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := h.Verify("Str0ng!Pass", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("Str0ng!Pasz", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestHashIsSalted(t *testing.T) {
	h := newTestHasher(t)
	a, _ := h.Hash("Str0ng!Pass")
	b, _ := h.Hash("Str0ng!Pass")
	if a == b {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := newTestHasher(t)
	for _, bad := range []string{"", "plain", "$argon2id$v=19$m=1,t=1,p=1$AAAA$AAAA", "$argon2i$v=19$m=8192,t=1,p=1$x$y"} {
		if _, err := h.Verify("whatever", bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	h := newTestHasher(t)
	legacy, err := bcrypt.GenerateFromPassword([]byte("Legacy#Pass1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	ok, err := h.Verify("Legacy#Pass1", string(legacy))
	if err != nil || !ok {
		t.Fatalf("expected bcrypt match, got ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("wrong", string(legacy))
	if err != nil || ok {
		t.Fatalf("expected bcrypt mismatch, got ok=%v err=%v", ok, err)
	}

	upgrade, err := h.NeedsUpgrade(string(legacy))
	if err != nil || !upgrade {
		t.Fatalf("bcrypt hashes must be flagged for upgrade, got %v %v", upgrade, err)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newTestHasher(t)
	hash, err := weak.Hash("Str0ng!Pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	stronger := testConfig()
	stronger.Time = 2
	strong, err := NewHasher(stronger)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	if up, _ := strong.NeedsUpgrade(hash); !up {
		t.Fatal("expected upgrade for weaker parameters")
	}
	if up, _ := weak.NeedsUpgrade(hash); up {
		t.Fatal("expected no upgrade for current parameters")
	}
}

func TestNewHasherRejectsWeakConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Memory = 1024
	if _, err := NewHasher(cfg); err == nil {
		t.Fatal("expected error for memory below minimum")
	}
}

func TestInHistory(t *testing.T) {
	h := newTestHasher(t)

	var history []string
	for _, p := range []string{"Old#Pass1", "Old#Pass2", "Old#Pass3", "Old#Pass4", "Old#Pass5", "Old#Pass6"} {
		hash, err := h.Hash(p)
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		history = PushHistory(history, hash)
	}

	if len(history) != HistorySize {
		t.Fatalf("history length = %d, want %d", len(history), HistorySize)
	}
	if !h.InHistory("Old#Pass6", history) {
		t.Fatal("most recent password must be found")
	}
	if !h.InHistory("Old#Pass2", history) {
		t.Fatal("fifth most recent password must be found")
	}
	if h.InHistory("Old#Pass1", history) {
		t.Fatal("sixth most recent password must have aged out")
	}
	if h.InHistory("Brand#New1", history) {
		t.Fatal("unrelated password must not match")
	}
}
