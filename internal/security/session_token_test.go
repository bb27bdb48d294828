package security

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewToken_ShapeAndUniqueness(t *testing.T) {
	var g TokenGenerator
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		tok, err := g.NewToken()
		if err != nil {
			t.Fatalf("NewToken: %v", err)
		}
		if err := CheckTokenShape(tok); err != nil {
			t.Fatalf("CheckTokenShape(%q): %v", tok, err)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestNewToken_RandFailure(t *testing.T) {
	g := TokenGenerator{Rand: bytes.NewReader([]byte{1, 2, 3})}
	if _, err := g.NewToken(); err == nil {
		t.Fatal("NewToken with short entropy source should fail")
	}
}

func TestCheckTokenShape(t *testing.T) {
	valid := TokenPrefix + strings.Repeat("A", encodedTokenLen)
	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{"valid", valid, true},
		{"valid url alphabet", TokenPrefix + strings.Repeat("-_", encodedTokenLen/2) + "x", true},
		{"empty", "", false},
		{"no prefix", strings.Repeat("A", encodedTokenLen), false},
		{"short", TokenPrefix + "abc", false},
		{"long", valid + "A", false},
		{"bad char", TokenPrefix + strings.Repeat("A", encodedTokenLen-1) + "+", false},
		{"padding", TokenPrefix + strings.Repeat("A", encodedTokenLen-1) + "=", false},
		{"whitespace", " " + valid, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckTokenShape(tc.token)
			if tc.ok && err != nil {
				t.Errorf("CheckTokenShape(%q) = %v, want nil", tc.token, err)
			}
			if !tc.ok && !errors.Is(err, ErrMalformedToken) {
				t.Errorf("CheckTokenShape(%q) = %v, want ErrMalformedToken", tc.token, err)
			}
		})
	}
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("token-1")
	if h1 != HashToken("token-1") {
		t.Error("HashToken not deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 (BLAKE2b-256 hex)", len(h1))
	}
	if h1 == HashToken("token-2") {
		t.Error("different tokens produced the same hash")
	}
	if !TokenHashEqual("token-1", h1) {
		t.Error("TokenHashEqual should match")
	}
	if TokenHashEqual("token-2", h1) {
		t.Error("TokenHashEqual should reject a different token")
	}
}

func TestRedactToken(t *testing.T) {
	tok := TokenPrefix + "abcdefghijklmnop"
	got := RedactToken(tok)
	if strings.Contains(got, "ghijklmnop") {
		t.Errorf("RedactToken leaked the secret: %q", got)
	}
	if !strings.HasPrefix(got, TokenPrefix+"abcdef") {
		t.Errorf("RedactToken = %q", got)
	}
}
