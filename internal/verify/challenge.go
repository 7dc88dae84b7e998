package verify

const challengePrefix = "Verify your wallet for Discord: "

// ChallengeMessage is the text the wallet signs. It is byte-identical for the same user id.
func ChallengeMessage(userID string) string {
	return challengePrefix + userID
}
