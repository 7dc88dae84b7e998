package databus

import (
	"context"
	"encoding/json"
	"time"

	"moff.io/wallet-verify/internal/verify"
	"moff.io/wallet-verify/pkg/log"
)

// WalletVerified is published once the backend linked a wallet to a Discord account.
type WalletVerified struct {
	UserID     string    `json:"user_id"`
	DiscordID  string    `json:"discord_id"`
	Wallet     string    `json:"wallet"`
	Message    string    `json:"message"`
	VerifiedAt time.Time `json:"verified_at"`

	topic string
}

func (e *WalletVerified) Serialize() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal wallet verified event:%v", err)
		return nil
	}
	return data
}

func (e *WalletVerified) Topic() string {
	return e.topic
}

// NewWalletVerifiedHook publishes a WalletVerified event for every accepted
// submission. Publishing runs in the background and its failures are only logged.
func NewWalletVerifiedHook(p Publisher, topic string) verify.VerifiedHook {
	return func(_ context.Context, s verify.Submission, message string) {
		e := &WalletVerified{
			UserID:     s.UserID,
			DiscordID:  s.DiscordID,
			Wallet:     s.Wallet,
			Message:    message,
			VerifiedAt: time.Now().UTC(),
			topic:      topic,
		}
		go func() {
			if err := p.Publish(e); err != nil {
				log.Errorf("publish wallet verified event for %v:%v", s.DiscordID, err)
			}
		}()
	}
}
