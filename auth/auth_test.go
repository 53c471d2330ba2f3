package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogonPassword(t *testing.T) {

	password := LogonPassword("secret", "20241105-14:30:00.123", "A", 1, "ALPHA_8", "TRUEX", "key-id")
	assert.NotEmpty(t, password)
	//
	// Deterministic for the same inputs, sensitive to any of them.
	//
	assert.Equal(t, password, LogonPassword("secret", "20241105-14:30:00.123", "A", 1, "ALPHA_8", "TRUEX", "key-id"))
	assert.NotEqual(t, password, LogonPassword("secret", "20241105-14:30:00.123", "A", 2, "ALPHA_8", "TRUEX", "key-id"))
	assert.NotEqual(t, password, LogonPassword("other", "20241105-14:30:00.123", "A", 1, "ALPHA_8", "TRUEX", "key-id"))

}

func TestClientID(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, clientPath, r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("x-truex-auth-timestamp"))
		assert.NotEmpty(t, r.Header.Get("x-truex-auth-signature"))
		assert.Equal(t, "key-id", r.Header.Get("x-truex-auth-token"))
		w.Write([]byte(`[{"id":17,"info":{"mnemonic":"OTHER"}},{"id":42,"info":{"mnemonic":"ALPHA"}}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{APIKeyID: "key-id", APIKeySecret: "secret", Mnemonic: "ALPHA"})

	id, err := client.ClientID(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, "42", id)

	client = NewClient(server.URL, Credentials{APIKeyID: "key-id", APIKeySecret: "secret", Mnemonic: "MISSING"})
	_, err = client.ClientID(context.Background())
	assert.NotNil(t, err)

}
