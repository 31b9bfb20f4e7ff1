package validation

import (
	"strings"
	"testing"
)

func TestValidEmail_Valid(t *testing.T) {
	valids := []string{
		"a@b.co",
		"user@example.com",
		"User.Name+tag@sub.example.org",
		"  padded@example.com  ", // trim antes de validar
	}
	for _, v := range valids {
		if !ValidEmail(v) {
			t.Fatalf("expected valid: %q", v)
		}
	}
}

func TestValidEmail_Invalid(t *testing.T) {
	invalids := []string{
		"",
		"not-an-email",
		"missing@tld",
		"@example.com",
		"two@@example.com",
		"spaces in@example.com",
	}
	for _, v := range invalids {
		if ValidEmail(v) {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}

func TestSignup_Order(t *testing.T) {
	cases := []struct {
		name                      string
		email, password, confirm  string
		wantField, wantMsgContain string
	}{
		{"bad email", "not-an-email", "abcdef", "abcdef", "email", "valid email"},
		{"short password", "a@b.co", "abc", "abc", "password", "at least 6"},
		{"mismatch", "a@b.co", "abcdef", "abcdeg", "confirm", "do not match"},
		{"email checked first", "nope", "abc", "xyz", "email", "valid email"},
	}
	for _, tc := range cases {
		err := Signup(tc.email, tc.password, tc.confirm)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		fe, ok := err.(*FieldError)
		if !ok {
			t.Fatalf("%s: expected *FieldError, got %T", tc.name, err)
		}
		if fe.Field != tc.wantField {
			t.Fatalf("%s: field = %q, want %q", tc.name, fe.Field, tc.wantField)
		}
		if !strings.Contains(fe.Message, tc.wantMsgContain) {
			t.Fatalf("%s: message %q should contain %q", tc.name, fe.Message, tc.wantMsgContain)
		}
	}
}

func TestSignup_OK(t *testing.T) {
	if err := Signup("user@example.com", "abcdef", "abcdef"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogin(t *testing.T) {
	if err := Login("", "x"); err == nil {
		t.Fatal("expected error for empty email")
	}
	if err := Login("a@b.co", ""); err == nil {
		t.Fatal("expected error for empty password")
	}
	if err := Login("a@b.co", "pw"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  USER@Example.COM "); got != "user@example.com" {
		t.Fatalf("got %q", got)
	}
}
