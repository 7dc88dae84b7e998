package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAes256RoundTrip(t *testing.T) {
	key, err := GenerateRandomBytes(32)
	require.NoError(t, err)
	iv, err := GenerateRandomBytes(16)
	require.NoError(t, err)

	for _, plain := range []string{"", "x", "exactly sixteen!", `{"id":1,"jsonrpc":"2.0","method":"personal_sign"}   `} {
		cipherText, err := Aes256Encrypt([]byte(plain), key, iv)
		require.NoError(t, err)
		assert.Zero(t, len(cipherText)%16)

		got, err := Aes256Decrypt(cipherText, key, iv)
		require.NoError(t, err)
		assert.Equal(t, plain, string(got), "trailing spaces must survive")
	}
}

func TestAes256Decrypt_BadInput(t *testing.T) {
	key, _ := GenerateRandomBytes(32)
	iv, _ := GenerateRandomBytes(16)
	_, err := Aes256Decrypt([]byte("short"), key, iv)
	assert.Error(t, err)
	_, err = Aes256Decrypt(make([]byte, 16), key, []byte("bad iv"))
	assert.Error(t, err)
}

func TestPairingURI(t *testing.T) {
	key := []byte{0xde, 0xad, 0xbe, 0xef}
	uri := PairingURI("topic-1", "https://b.bridge.walletconnect.org", key)
	assert.Equal(t, "wc:topic-1@1?bridge=https%3A%2F%2Fb.bridge.walletconnect.org&key=deadbeef", uri)

	topic, bridgeURL, gotKey, err := ParsePairingURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "topic-1", topic)
	assert.Equal(t, "https://b.bridge.walletconnect.org", bridgeURL)
	assert.Equal(t, key, gotKey)

	_, _, _, err = ParsePairingURI("http://example.com")
	assert.Error(t, err)
}

func TestGetWebSocketURL(t *testing.T) {
	assert.Equal(t, "wss://a.bridge.walletconnect.org?protocol=wc&version=1&env=browser",
		GetWebSocketURL("https://a.bridge.walletconnect.org", "wc", "1"))
	assert.Equal(t, "ws://127.0.0.1:1234?protocol=wc&version=1&env=browser",
		GetWebSocketURL("http://127.0.0.1:1234", "wc", "1"))
}

func TestRandomBridgeURL(t *testing.T) {
	assert.Equal(t, "https://bridge.example", RandomBridgeURL([]string{"https://bridge.example"}))
	assert.Regexp(t, `^https://[a-z0-9]\.bridge\.walletconnect\.org$`, RandomBridgeURL(nil))
}
