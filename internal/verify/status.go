package verify

import "fmt"

// Status texts shown to the user.
const (
	StatusInvalidLink       = "❌ Invalid verification link."
	StatusDiscordAuthFailed = "❌ Discord authentication failed."
	StatusNoWallet          = "❌ No crypto wallet found. Please install MetaMask."
	StatusWalletConnected   = "✅ Wallet connected!"
	StatusConnectFailed     = "❌ Failed to connect wallet."
	StatusConnectFirst      = "❌ Connect your wallet first."
	StatusSigned            = "✅ Signed successfully!"
	StatusSigningFailed     = "❌ Signing failed."
	StatusSignAndLoginFirst = "❌ Sign the message and log in with Discord first."
	StatusVerified          = "✅ Wallet verified successfully!"
	StatusVerifyFailed      = "❌ Verification failed."

	statusLoggedInFormat = "✅ Logged in as %s"
)

func StatusLoggedIn(username string) string {
	return fmt.Sprintf(statusLoggedInFormat, username)
}
