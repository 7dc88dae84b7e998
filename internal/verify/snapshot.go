package verify

import (
	"time"

	"moff.io/wallet-verify/pkg/common"
)

// Snapshot is a consistent copy of the view state, with the step guards
// already evaluated.
type Snapshot struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Status      string       `json:"status,omitempty"`
	DiscordUser *DiscordUser `json:"discord_user,omitempty"`
	Progress    string       `json:"progress"`
	Wallet      string       `json:"wallet,omitempty"`
	Signature   string       `json:"signature,omitempty"`
	Challenge   string       `json:"challenge,omitempty"`
	LoginURL    string       `json:"login_url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`

	CanLogin   bool `json:"can_login"`
	CanConnect bool `json:"can_connect"`
	CanSign    bool `json:"can_sign"`
	CanVerify  bool `json:"can_verify"`
}

// ShortSignature is the signature prefix shown on the page.
func (s Snapshot) ShortSignature() string {
	return common.Abbreviate(s.Signature, 10)
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	valid := v.identity.Valid()
	s := Snapshot{
		ID:        v.id,
		UserID:    v.identity.UserID,
		Status:    v.status,
		Progress:  v.progress.String(),
		Wallet:    v.wallet,
		Signature: v.signature,
		CreatedAt: v.createdAt,

		CanLogin:   valid && v.discordUser == nil,
		CanConnect: valid && v.progress == ProgressNone,
		CanSign:    valid && v.progress >= ProgressWalletConnected,
		CanVerify:  valid && v.discordUser != nil && v.progress >= ProgressMessageSigned,
	}
	if v.discordUser != nil {
		user := *v.discordUser
		s.DiscordUser = &user
	}
	if valid {
		s.Challenge = ChallengeMessage(v.identity.UserID)
		if s.CanLogin && v.deps.LoginURL != nil {
			s.LoginURL = v.deps.LoginURL(v.identity.UserID)
		}
	}
	return s
}
