package walletconnect

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/atomic"
	"moff.io/wallet-verify/pkg/bridge"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
)

// Peer is the wallet side of an approved session.
type Peer struct {
	Approved bool       `json:"approved"`
	Meta     clientMeta `json:"peerMeta"`
	ChainID  int        `json:"chainId"`
	Accounts []string   `json:"accounts"`
	PeerID   string     `json:"peerId"`
}

type wcMessagePayload struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

func newWCMessagePayloadFromBytes(data []byte) (*wcMessagePayload, error) {
	var payload wcMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.Wrap(err, "unmarshal wallet connect message payload")
	}
	return &payload, nil
}

func (e *wcMessagePayload) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

type peer struct {
	PeerID   string      `json:"peerId"`
	PeerMeta clientMeta  `json:"peerMeta"`
	ChainID  interface{} `json:"chainId"`
}

type clientMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

const (
	messageTypePub = "pub"
	messageTypeSub = "sub"
	messageTypeAck = "ack"
)

type wcMessage struct {
	Topic string `json:"topic"`
	// pub sub ack
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func newWCMessageFromBytes(data []byte) (*wcMessage, error) {
	var msg wcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal wallet connect message")
	}
	return &msg, nil
}

func (msg *wcMessage) Marshal() []byte {
	bytes, _ := json.Marshal(msg)
	return bytes
}

type jsonRpcRequest struct {
	Id      int64         `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Request ids follow the bridge convention of microseconds since epoch and
// only need to be unique per session.
var lastPayloadID = atomic.NewInt64(time.Now().UnixNano() / 1000)

func payloadID() int64 {
	return lastPayloadID.Inc()
}

func newJSONRpcRequest(method string, params ...interface{}) *jsonRpcRequest {
	r := &jsonRpcRequest{
		Id:      payloadID(),
		JSONRpc: "2.0",
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

func (e *jsonRpcRequest) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal:%v", err)
	}
	return string(s)
}

func encryptPayload(key []byte, jsonRpc string) (*wcMessagePayload, error) {
	iv, err := bridge.GenerateRandomBytes(128 / 8)
	if err != nil {
		return nil, errors.Wrap(err, "generate random bytes")
	}
	data, err := bridge.Aes256Encrypt([]byte(jsonRpc), key, iv)
	if err != nil {
		return nil, err
	}
	unsigned := append(append([]byte{}, data...), iv...)
	hmac := bridge.HmacSha256(unsigned, key)
	return &wcMessagePayload{
		Data: hex.EncodeToString(data),
		IV:   hex.EncodeToString(iv),
		Hmac: hex.EncodeToString(hmac),
	}, nil
}

func decryptPayload(key []byte, payload string) (string, error) {
	mp, err := newWCMessagePayloadFromBytes([]byte(payload))
	if err != nil {
		return "", err
	}
	iv, err := hex.DecodeString(mp.IV)
	if err != nil {
		return "", errors.Wrap(err, "decode iv hex")
	}
	cipher, err := hex.DecodeString(mp.Data)
	if err != nil {
		return "", errors.Wrap(err, "decode cipher hex")
	}
	unsigned := append(append([]byte{}, cipher...), iv...)
	if hex.EncodeToString(bridge.HmacSha256(unsigned, key)) != mp.Hmac {
		return "", errors.New("inconsistent session message hmac")
	}
	data, err := bridge.Aes256Decrypt(cipher, key, iv)
	if err != nil {
		return "", errors.Wrap(err, "aes256 decrypt")
	}
	return string(data), nil
}
