// Package auth covers the two credential exchanges the venue requires: the
// HMAC password stamped on the FIX Logon, and the REST lookup resolving a
// mnemonic to its client ID.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Credentials for one simulated client.
type Credentials struct {
	APIKeyID     string
	APIKeySecret string
	Mnemonic     string
}

// LogonPassword returns the Password(554) value for a Logon whose header
// carries the given values: base64 of HMAC-SHA256 over the concatenation of
// SendingTime, MsgType, MsgSeqNum, SenderCompID, TargetCompID and Username,
// keyed with the API secret.
func LogonPassword(secret, sendingTime, msgType string, msgSeqNum int, senderCompID, targetCompID, username string) string {
	payload := sendingTime + msgType + strconv.Itoa(msgSeqNum) + senderCompID + targetCompID + username
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

const clientPath = "/api/v1/client"

// A Client resolves client IDs from the venue REST API.
type Client struct {
	address     string
	credentials Credentials
	client      *http.Client
}

// NewClient returns a [*Client] ready to use. The address is the scheme and
// host of the venue API, without a trailing slash.
func NewClient(address string, credentials Credentials) *Client {
	return &Client{
		address:     address,
		credentials: credentials,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// ClientID returns the ID registered for the mnemonic in the [Credentials].
func (x *Client) ClientID(ctx context.Context) (string, error) {

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, x.address+clientPath, nil)
	if err != nil {
		return "", err
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	payload := timestamp + http.MethodGet + clientPath
	mac := hmac.New(sha256.New, []byte(x.credentials.APIKeySecret))
	mac.Write([]byte(payload))

	request.Header.Set("x-truex-auth-timestamp", timestamp)
	request.Header.Set("x-truex-auth-signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	request.Header.Set("x-truex-auth-token", x.credentials.APIKeyID)
	request.Header.Set("Content-Type", "application/json")

	response, err := x.client.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth: client lookup status %d", response.StatusCode)
	}

	var entries []struct {
		ID   json.Number `json:"id"`
		Info struct {
			Mnemonic string `json:"mnemonic"`
		} `json:"info"`
	}
	if err := json.NewDecoder(response.Body).Decode(&entries); err != nil {
		return "", err
	}

	for _, entry := range entries {
		if entry.Info.Mnemonic == x.credentials.Mnemonic {
			return entry.ID.String(), nil
		}
	}
	return "", fmt.Errorf("auth: no client for mnemonic %s", x.credentials.Mnemonic)
}
