// Package bridge holds the WalletConnect v1 bridge helpers: URL selection,
// pairing URIs and the payload cipher.
//
// Handshake, as implemented by internal/walletconnect:
//  1. subscribe to our own client id topic on the bridge websocket,
//  2. publish an encrypted wc_sessionRequest on the handshake topic,
//  3. the wallet scans the pairing URI, answers on our topic with its accounts,
//  4. further JSON-RPC requests go to the wallet peer id topic.
//
// Payload encryption follows
// https://github.com/WalletConnect/walletconnect-monorepo/blob/6d440e7990ecfab3b1dca10a8ff45f72af0e1541/legacy/client/src/crypto.ts#L39
package bridge

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"
)

const (
	alphanumerical  = "abcdefghijklmnopqrstuvwxyz0123456789"
	bridgeURLFormat = "https://%v.bridge.walletconnect.org"
)

var random = rand.New(rand.NewSource(time.Now().UnixNano()))

// RandomBridgeURL picks one of the configured bridges, or one of the public
// walletconnect.org bridges when none are configured.
func RandomBridgeURL(configured []string) string {
	if len(configured) > 0 {
		return configured[random.Intn(len(configured))]
	}
	c := alphanumerical[random.Intn(len(alphanumerical))]
	return fmt.Sprintf(bridgeURLFormat, string(c))
}

// GetWebSocketURL turns a bridge URL into its websocket endpoint.
func GetWebSocketURL(bridgeURL, protocol, version string) string {
	switch {
	case strings.HasPrefix(bridgeURL, "https"):
		bridgeURL = strings.Replace(bridgeURL, "https", "wss", 1)
	case strings.HasPrefix(bridgeURL, "http"):
		bridgeURL = strings.Replace(bridgeURL, "http", "ws", 1)
	}
	return bridgeURL + "?protocol=" + protocol + "&version=" + version + "&env=browser"
}

// PairingURI is the wc: URI a wallet scans to join the handshake topic.
func PairingURI(handshakeTopic, bridgeURL string, key []byte) string {
	return fmt.Sprintf("wc:%s@1?bridge=%s&key=%s",
		handshakeTopic, url.QueryEscape(bridgeURL), hex.EncodeToString(key))
}

// ParsePairingURI splits a wc: URI into its topic, bridge and key.
func ParsePairingURI(uri string) (topic, bridgeURL string, key []byte, err error) {
	if !strings.HasPrefix(uri, "wc:") {
		return "", "", nil, fmt.Errorf("not a walletconnect uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, "wc:")
	at := strings.Index(rest, "@")
	q := strings.Index(rest, "?")
	if at < 0 || q < at {
		return "", "", nil, fmt.Errorf("malformed walletconnect uri: %q", uri)
	}
	topic = rest[:at]
	values, err := url.ParseQuery(rest[q+1:])
	if err != nil {
		return "", "", nil, err
	}
	key, err = hex.DecodeString(values.Get("key"))
	if err != nil {
		return "", "", nil, err
	}
	return topic, values.Get("bridge"), key, nil
}
