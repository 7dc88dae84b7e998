// Package verify holds the per-page verification flow: Discord login, wallet
// connection, challenge signing and backend verification.
//
// A View never holds its lock while talking to Discord, the wallet or the
// backend, so a slow wallet does not block rendering the page. Every step
// reports its outcome as the view status; step errors never leave the view.
package verify

import (
	"context"
	"sync"
	"time"

	"moff.io/wallet-verify/internal/wallet"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
	"moff.io/wallet-verify/pkg/log/meta"
)

type DiscordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Submission is the body of the backend verify-wallet call.
type Submission struct {
	UserID    string `json:"userId"`
	DiscordID string `json:"discordId"`
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
}

// Backend is the verification service owned by the bot.
type Backend interface {
	// DiscordAuth exchanges an OAuth authorization code for the Discord user.
	DiscordAuth(ctx context.Context, code string) (*DiscordUser, error)
	// VerifyWallet submits a signed challenge and returns the optional server message.
	VerifyWallet(ctx context.Context, s Submission) (string, error)
}

// VerifiedHook runs after the backend accepted a submission.
type VerifiedHook func(ctx context.Context, s Submission, message string)

// ChainHooks runs the non nil hooks in order.
func ChainHooks(hooks ...VerifiedHook) VerifiedHook {
	var chained []VerifiedHook
	for _, h := range hooks {
		if h != nil {
			chained = append(chained, h)
		}
	}
	return func(ctx context.Context, s Submission, message string) {
		for _, h := range chained {
			h(ctx, s, message)
		}
	}
}

// Progress is how far the wallet side of the flow got. A signature only
// exists together with the address that made it.
type Progress int

const (
	ProgressNone Progress = iota
	ProgressWalletConnected
	ProgressMessageSigned
	ProgressVerified
)

func (p Progress) String() string {
	switch p {
	case ProgressWalletConnected:
		return "wallet_connected"
	case ProgressMessageSigned:
		return "message_signed"
	case ProgressVerified:
		return "verified"
	default:
		return "none"
	}
}

type Dependencies struct {
	Backend Backend
	Wallets wallet.Locator
	// LoginURL builds the Discord authorize URL carrying the user id as state.
	LoginURL   func(userID string) string
	OnVerified VerifiedHook
	Now        func() time.Time
}

type View struct {
	id        string
	identity  Identity
	createdAt time.Time
	deps      Dependencies

	mu          sync.Mutex
	status      string
	discordUser *DiscordUser
	progress    Progress
	wallet      string
	signature   string
	provider    wallet.Provider
	closed      bool
}

func NewView(id string, identity Identity, deps Dependencies) *View {
	if deps.Wallets == nil {
		deps.Wallets = wallet.None()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &View{
		id:        id,
		identity:  identity,
		createdAt: deps.Now(),
		deps:      deps,
	}
}

func (v *View) ID() string {
	return v.id
}

func (v *View) Identity() Identity {
	return v.identity
}

func (v *View) CreatedAt() time.Time {
	return v.createdAt
}

// Load runs what a page load triggers: the link check and, right after the
// Discord redirect, the code exchange.
func (v *View) Load(ctx context.Context) {
	if !v.identity.Valid() {
		v.setStatus(StatusInvalidLink)
		return
	}
	if v.identity.Code != "" {
		v.ExchangeDiscordCode(ctx, v.identity.Code)
	}
}

func (v *View) ExchangeDiscordCode(ctx context.Context, code string) {
	ctx = v.logContext(ctx)
	if !v.identity.Valid() {
		v.setStatus(StatusInvalidLink)
		return
	}
	user, err := v.deps.Backend.DiscordAuth(ctx, code)
	if err == nil && user == nil {
		err = errors.New("empty discord user")
	}
	if err != nil {
		log.Warnf("view %v: discord auth failed:%v", v.id, err)
		v.setStatus(StatusDiscordAuthFailed)
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.discordUser == nil {
		v.discordUser = user
		log.Infof("view %v: discord user %v logged in", v.id, user.ID)
	}
	v.status = StatusLoggedIn(v.discordUser.Username)
}

func (v *View) ConnectWallet(ctx context.Context) {
	ctx = v.logContext(ctx)
	v.mu.Lock()
	if !v.identity.Valid() {
		v.status = StatusInvalidLink
		v.mu.Unlock()
		return
	}
	if v.progress >= ProgressWalletConnected {
		v.status = StatusWalletConnected
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()

	p, err := v.locateProvider(ctx)
	if err != nil {
		if errors.Is(err, wallet.ErrNoProvider) {
			v.setStatus(StatusNoWallet)
			return
		}
		log.Warnf("view %v: locate wallet:%v", v.id, err)
		v.setStatus(StatusConnectFailed)
		return
	}
	address, err := p.RequestAccounts(ctx)
	if err != nil {
		log.Warnf("view %v: connect wallet:%v", v.id, err)
		v.setStatus(StatusConnectFailed)
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.progress == ProgressNone {
		v.wallet = address
		v.progress = ProgressWalletConnected
		log.Infof("view %v: wallet %v connected", v.id, address)
	}
	v.status = StatusWalletConnected
}

func (v *View) SignMessage(ctx context.Context) {
	ctx = v.logContext(ctx)
	v.mu.Lock()
	if !v.identity.Valid() {
		v.status = StatusInvalidLink
		v.mu.Unlock()
		return
	}
	if v.progress < ProgressWalletConnected || v.provider == nil {
		v.status = StatusConnectFirst
		v.mu.Unlock()
		return
	}
	p := v.provider
	v.mu.Unlock()

	signature, err := p.SignMessage(ctx, ChallengeMessage(v.identity.UserID))
	if err != nil {
		log.Warnf("view %v: sign challenge:%v", v.id, err)
		v.setStatus(StatusSigningFailed)
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.progress == ProgressWalletConnected {
		v.signature = signature
		v.progress = ProgressMessageSigned
	}
	v.status = StatusSigned
}

func (v *View) VerifyWallet(ctx context.Context) {
	ctx = v.logContext(ctx)
	v.mu.Lock()
	if !v.identity.Valid() {
		v.status = StatusInvalidLink
		v.mu.Unlock()
		return
	}
	if v.discordUser == nil || v.progress < ProgressMessageSigned {
		v.status = StatusSignAndLoginFirst
		v.mu.Unlock()
		return
	}
	submission := Submission{
		UserID:    v.identity.UserID,
		DiscordID: v.discordUser.ID,
		Wallet:    v.wallet,
		Signature: v.signature,
	}
	v.mu.Unlock()

	message, err := v.deps.Backend.VerifyWallet(ctx, submission)
	if err != nil {
		log.Warnf("view %v: verify wallet:%v", v.id, err)
		v.setStatus(StatusVerifyFailed)
		return
	}
	if message == "" {
		message = StatusVerified
	}
	v.mu.Lock()
	v.progress = ProgressVerified
	v.status = message
	v.mu.Unlock()
	log.Infof("view %v: wallet %v verified for discord user %v", v.id, submission.Wallet, submission.DiscordID)

	if v.deps.OnVerified != nil {
		v.deps.OnVerified(ctx, submission, message)
	}
}

// Pairing returns the out of band pairing of the wallet while the wallet
// still has to be connected. Locators that do not pair are never asked for a provider.
func (v *View) Pairing(ctx context.Context) (wallet.Pairer, bool) {
	if !wallet.Pairs(v.deps.Wallets) {
		return nil, false
	}
	v.mu.Lock()
	connectable := v.identity.Valid() && v.progress == ProgressNone
	v.mu.Unlock()
	if !connectable {
		return nil, false
	}
	p, err := v.locateProvider(ctx)
	if err != nil {
		return nil, false
	}
	pairer, ok := p.(wallet.Pairer)
	return pairer, ok
}

// Close releases the wallet provider. The view is unusable for wallet steps afterwards.
func (v *View) Close() {
	v.mu.Lock()
	p := v.provider
	v.provider = nil
	v.closed = true
	v.mu.Unlock()
	if p != nil {
		wallet.Close(p)
	}
}

// locateProvider returns the provider of this view, locating it on first use.
func (v *View) locateProvider(ctx context.Context) (wallet.Provider, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, errors.New("view closed")
	}
	if v.provider != nil {
		p := v.provider
		v.mu.Unlock()
		return p, nil
	}
	v.mu.Unlock()

	p, err := v.deps.Wallets.Locate(ctx)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.provider != nil {
		// lost a race against a concurrent request or Close
		winner := v.provider
		go wallet.Close(p)
		if winner == nil {
			return nil, errors.New("view closed")
		}
		return winner, nil
	}
	v.provider = p
	return p, nil
}

func (v *View) setStatus(status string) {
	v.mu.Lock()
	v.status = status
	v.mu.Unlock()
}

func (v *View) logContext(ctx context.Context) context.Context {
	ctx = meta.Begin(ctx)
	meta.WithValue(ctx, meta.ViewIDKey, v.id)
	return ctx
}
