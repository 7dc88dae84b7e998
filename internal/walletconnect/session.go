// Package walletconnect is a WalletConnect v1 wallet provider. The user scans
// the pairing QR code with a phone wallet, the session approval carries the
// account and personal_sign requests travel through the same bridge socket.
// Interaction flow: https://docs.walletconnect.com/tech-spec#establishing-connection
package walletconnect

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
	"github.com/tidwall/gjson"
	"moff.io/wallet-verify/internal/config"
	"moff.io/wallet-verify/internal/wallet"
	"moff.io/wallet-verify/pkg/bridge"
	"moff.io/wallet-verify/pkg/concurrent"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
)

var (
	errSessionClosed = errors.New("session closed")
)

// Locator hands out one pairing session per verification page. The limiter
// bounds the number of bridge sockets open at the same time.
type Locator struct {
	cfg     config.WalletConnect
	limiter concurrent.Limiter
}

func NewLocator(cfg config.WalletConnect) *Locator {
	return &Locator{
		cfg:     cfg,
		limiter: concurrent.NewLimiter(cfg.MaxSessions),
	}
}

func (l *Locator) Locate(ctx context.Context) (wallet.Provider, error) {
	return l.NewSession(), nil
}

// Pairs is true, every session is paired through its QR code.
func (l *Locator) Pairs() bool {
	return true
}

func (l *Locator) NewSession() *Session {
	encryptionKey, err := bridge.GenerateRandomBytes(256 / 8)
	if err != nil {
		// crypto/rand failing leaves nothing sensible to do
		panic(err)
	}
	readTimeout := l.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 5 * time.Minute
	}
	return &Session{
		appMeta: clientMeta{
			Description: "Link your wallet to your Discord account",
			URL:         l.cfg.AppURL,
			Name:        l.cfg.AppName,
			Icons:       []string{},
		},
		limiter:        l.limiter,
		readTimeout:    readTimeout,
		bridgeURL:      bridge.RandomBridgeURL(l.cfg.BridgeURLs),
		handshakeTopic: uuid.NewString(),
		clientID:       uuid.NewString(),
		encryptionKey:  encryptionKey,
	}
}

// Session is one WalletConnect pairing. It implements wallet.Provider and
// wallet.Pairer.
type Session struct {
	appMeta     clientMeta
	limiter     concurrent.Limiter
	readTimeout time.Duration

	bridgeURL      string
	handshakeTopic string
	clientID       string
	encryptionKey  []byte

	// serializes interactions, the socket allows a single reader
	op sync.Mutex
	// guards the fields below
	mu       sync.Mutex
	conn     *websocket.Conn
	acquired bool
	closed   bool
	peer     *Peer
}

func (s *Session) PairingURI() string {
	return bridge.PairingURI(s.handshakeTopic, s.bridgeURL, s.encryptionKey)
}

// QRCode returns the pairing URI as a PNG QR code.
func (s *Session) QRCode() ([]byte, error) {
	uri := s.PairingURI()
	log.Debugf("wallet connect - generated uri:%v", uri)
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return nil, errors.WrapAndReport(err, "encode wallet connect qr code")
	}
	return png, nil
}

// RequestAccounts publishes the session request and waits until the user
// scanned the QR code and approved it in the wallet.
func (s *Session) RequestAccounts(ctx context.Context) (string, error) {
	s.op.Lock()
	defer s.op.Unlock()
	if p := s.currentPeer(); p != nil {
		return p.Accounts[0], nil
	}
	conn, _, err := s.open(ctx)
	if err != nil {
		return "", err
	}
	p, err := s.createSession(ctx, conn)
	if err != nil {
		s.closeConn()
		return "", err
	}
	s.mu.Lock()
	s.peer = p
	s.mu.Unlock()
	log.Infof("wallet connect - session approved by %v on chain %v", p.Accounts[0], p.ChainID)
	return p.Accounts[0], nil
}

// SignMessage asks the paired wallet for a personal_sign of text. A socket
// lost by an earlier attempt is reopened for the same pairing.
func (s *Session) SignMessage(ctx context.Context, text string) (string, error) {
	s.op.Lock()
	defer s.op.Unlock()
	p := s.currentPeer()
	if p == nil {
		return "", wallet.ErrNotConnected
	}
	conn, fresh, err := s.open(ctx)
	if err != nil {
		return "", err
	}
	if fresh {
		if err := s.send(conn, &wcMessage{Topic: s.clientID, Type: messageTypeSub, Silent: true}); err != nil {
			s.dropConn()
			return "", err
		}
	}
	req := newJSONRpcRequest("personal_sign", hexutil.Encode([]byte(text)), p.Accounts[0])
	if err := s.publish(conn, p.PeerID, req); err != nil {
		s.dropConn()
		return "", err
	}
	result, err := s.awaitResponse(ctx, conn, req)
	if err != nil {
		return "", err
	}
	signature := result.String()
	if signature == "" {
		return "", errors.Errorf("empty personal_sign result: %v", result.Raw)
	}
	return signature, nil
}

// Close drops the bridge socket and frees the session slot.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeConn()
	return nil
}

func (s *Session) currentPeer() *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// open returns the bridge socket, dialing a new one when there is none.
// fresh reports whether the socket was just dialed.
func (s *Session) open(ctx context.Context) (conn *websocket.Conn, fresh bool, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, false, errSessionClosed
	}
	if s.conn != nil {
		conn := s.conn
		s.mu.Unlock()
		return conn, false, nil
	}
	s.mu.Unlock()

	if err := s.limiter.AddContext(ctx); err != nil {
		return nil, false, errors.Wrap(err, "wait for a free wallet connect session")
	}
	wsURL := bridge.GetWebSocketURL(s.bridgeURL, "wc", "1")
	conn, _, err = websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		s.limiter.Done()
		return nil, false, errors.WrapAndReport(err, "dial to wallet connect bridge url")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		s.limiter.Done()
		return nil, false, errSessionClosed
	}
	s.conn = conn
	s.acquired = true
	return conn, true, nil
}

// dropConn closes the socket and frees its slot but keeps the pairing.
func (s *Session) dropConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.acquired {
		s.acquired = false
		s.limiter.Done()
	}
}

// closeConn drops the socket and forgets the pairing.
func (s *Session) closeConn() {
	s.dropConn()
	s.mu.Lock()
	s.peer = nil
	s.mu.Unlock()
}

func (s *Session) createSession(ctx context.Context, conn *websocket.Conn) (*Peer, error) {
	if err := s.send(conn, &wcMessage{Topic: s.clientID, Type: messageTypeSub, Silent: true}); err != nil {
		return nil, err
	}
	req := newJSONRpcRequest("wc_sessionRequest", peer{
		PeerID:   s.clientID,
		PeerMeta: s.appMeta,
	})
	if err := s.publish(conn, s.handshakeTopic, req); err != nil {
		return nil, err
	}
	result, err := s.awaitResponse(ctx, conn, req)
	if err != nil {
		return nil, err
	}
	var p Peer
	if err := json.Unmarshal([]byte(result.Raw), &p); err != nil {
		return nil, errors.Wrap(err, "unmarshal wallet info")
	}
	if !p.Approved {
		return nil, errors.Wrap(wallet.ErrUserRejected, "session not approved")
	}
	if len(p.Accounts) == 0 {
		return nil, errors.New("no wallet accounts acquired")
	}
	return &p, nil
}

func (s *Session) publish(conn *websocket.Conn, topic string, req *jsonRpcRequest) error {
	payload, err := encryptPayload(s.encryptionKey, req.Marshal())
	if err != nil {
		return err
	}
	log.Debugf("wallet connect - publish %v to %v", req.Method, topic)
	return s.send(conn, &wcMessage{
		Topic:   topic,
		Type:    messageTypePub,
		Payload: payload.Marshal(),
		Silent:  true,
	})
}

func (s *Session) send(conn *websocket.Conn, msg *wcMessage) error {
	if err := conn.WriteMessage(websocket.TextMessage, msg.Marshal()); err != nil {
		return errors.Wrap(err, "write wallet connect message to bridge")
	}
	return nil
}

// awaitResponse reads bridge messages until the answer to req arrives.
func (s *Session) awaitResponse(ctx context.Context, conn *websocket.Conn, req *jsonRpcRequest) (gjson.Result, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// unblock the pending read
			_ = conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	for {
		payload, err := s.read(ctx, conn)
		if err != nil {
			// a failed read leaves the socket unusable
			if errors.Is(err, errSessionClosed) {
				s.closeConn()
			} else {
				s.dropConn()
			}
			if ctx.Err() != nil {
				return gjson.Result{}, errors.Wrap(ctx.Err(), "wait for wallet response")
			}
			return gjson.Result{}, err
		}
		if gjson.Get(payload, "id").Int() != req.Id {
			log.Debugf("wallet connect - skip unrelated payload while waiting for %v", req.Method)
			continue
		}
		if e := gjson.Get(payload, "error"); e.Exists() {
			return gjson.Result{}, responseError(req.Method, e)
		}
		return gjson.Get(payload, "result"), nil
	}
}

func (s *Session) read(ctx context.Context, conn *websocket.Conn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	deadline := time.Now().Add(s.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", errors.Wrap(err, "set websocket read timeout")
	}
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", errSessionClosed
			}
			return "", errors.Wrap(err, "read wallet connect message")
		}
		if msgType != websocket.TextMessage {
			return "", errors.Errorf("unsupported message type %v", msgType)
		}
		msg, err := newWCMessageFromBytes(data)
		if err != nil {
			return "", err
		}
		if msg.Type != messageTypePub {
			continue
		}
		if err := s.send(conn, &wcMessage{Topic: s.clientID, Type: messageTypeAck, Silent: true}); err != nil {
			return "", err
		}
		payload, err := decryptPayload(s.encryptionKey, msg.Payload)
		if err != nil {
			return "", err
		}
		if sessionClosed := checkSessionUpdate(payload); sessionClosed {
			return "", errSessionClosed
		}
		return payload, nil
	}
}

// checkSessionUpdate reports whether the wallet ended the session.
func checkSessionUpdate(jsonRpc string) (sessionClosed bool) {
	if gjson.Get(jsonRpc, "method").String() != "wc_sessionUpdate" {
		return false
	}
	approved := gjson.Get(jsonRpc, "params.0.approved")
	if !approved.Exists() || approved.Bool() {
		return false
	}
	log.Warnf("wallet connect - session closed from request %v", jsonRpc)
	return true
}

func responseError(method string, e gjson.Result) error {
	code := e.Get("code").Int()
	message := e.Get("message").String()
	if code == wallet.RejectedCode || strings.Contains(strings.ToLower(message), "reject") {
		return errors.Wrapf(wallet.ErrUserRejected, "%s: %s", method, message)
	}
	return errors.Errorf("%s failed: %s (code %d)", method, message, code)
}
