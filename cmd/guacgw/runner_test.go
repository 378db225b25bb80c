package main

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/guacgw/gateway/config"
	"github.com/guacgw/gateway/gatewayerr"
	"github.com/guacgw/gateway/tunnel"
)

// encodeTestToken builds a valid token envelope around plaintext, the
// inverse of token.Decrypt.
func encodeTestToken(t *testing.T, password, plaintext string) string {
	t.Helper()
	key := sha256.Sum256([]byte(password))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	padLen := block.BlockSize() - len(plaintext)%block.BlockSize()
	padded := append([]byte(plaintext), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	iv := make([]byte, block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("rand iv: %v", err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(iv) + ":" + base64.StdEncoding.EncodeToString(ciphertext)
}

type stubClient struct {
	mu     sync.Mutex
	closed bool
	code   int
}

func (s *stubClient) ReceiveText() (string, error) { return "", nil }
func (s *stubClient) SendText(string) error        { return nil }
func (s *stubClient) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.code = code
	return nil
}

func testRunner() *sessionRunner {
	return &sessionRunner{
		ctx: context.Background(),
		cfg: &config.Config{
			Password: "s3cret",
			Client: config.ClientConfig{
				DefaultArguments: map[string]map[string]string{"rdp": {}},
			},
		},
		log: zerolog.Nop(),
	}
}

func TestRun_MissingToken_ClosesWithoutDialing(t *testing.T) {
	r := testRunner()
	// An unset guacd hostname guarantees any dial attempt would fail
	// loudly; the point is that Run never gets that far.
	client := &stubClient{}

	if got := r.Run(1, client, map[string]string{}); got {
		t.Error("Run = true, want false for a missing token")
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if !client.closed {
		t.Fatal("client socket was not closed")
	}
	if client.code != tunnel.CloseInternalServerErr {
		t.Errorf("close code = %d, want %d", client.code, tunnel.CloseInternalServerErr)
	}
}

func TestResolveArguments_MissingToken(t *testing.T) {
	r := testRunner()
	_, _, gerr := r.resolveArguments(map[string]string{})
	if gerr == nil || gerr.Kind != gatewayerr.BadToken {
		t.Fatalf("gerr = %v, want kind BadToken", gerr)
	}
}

func TestResolveArguments_UnknownType(t *testing.T) {
	r := testRunner()
	tok := encodeTestToken(t, "s3cret", `{"type":"gopher","arguments":{}}`)
	_, _, gerr := r.resolveArguments(map[string]string{"token": tok})
	if gerr == nil || gerr.Kind != gatewayerr.BadToken {
		t.Fatalf("gerr = %v, want kind BadToken for unknown protocol type", gerr)
	}
}

func TestQueryFromURL_LowercasesAndTakesFirst(t *testing.T) {
	raw := url.Values{"Token": {"abc", "def"}, "WIDTH": {"1920"}}
	got := queryFromURL(raw)
	if got["token"] != "abc" {
		t.Errorf("token = %q, want abc", got["token"])
	}
	if got["width"] != "1920" {
		t.Errorf("width = %q, want 1920", got["width"])
	}
}
