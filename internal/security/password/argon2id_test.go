package password

import (
	"strings"
	"testing"
)

func TestHashVerify_RoundTrip(t *testing.T) {
	phc, err := Hash(Default, "s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$") {
		t.Fatalf("unexpected PHC prefix: %q", phc)
	}
	if !Verify("s3cret-pass", phc) {
		t.Fatal("expected verify ok")
	}
	if Verify("wrong-pass", phc) {
		t.Fatal("expected verify to fail for wrong password")
	}
}

func TestHash_EmptyRejected(t *testing.T) {
	if _, err := Hash(Default, ""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestVerify_Garbage(t *testing.T) {
	bads := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=1,t=1,p=1$AAAA$AAAA", // variante no soportada
		"$argon2id$v=18$m=1,t=1,p=1$AAAA$AAAA",
		"$argon2id$v=19$m=1,t=1,p=1$!!!$AAAA", // salt no base64
	}
	for _, b := range bads {
		if Verify("x", b) {
			t.Fatalf("expected verify false for %q", b)
		}
	}
}

func TestHash_Salted(t *testing.T) {
	a, _ := Hash(Default, "same")
	b, _ := Hash(Default, "same")
	if a == b {
		t.Fatal("two hashes of the same password must differ (random salt)")
	}
}
