package verify

import "net/url"

// Query parameters read from the verification link.
const (
	ParamUser  = "user"
	ParamCode  = "code"
	ParamState = "state"
)

// Identity is what a page load knows about the user before any step ran.
type Identity struct {
	// UserID is the Discord user id the link was issued for.
	UserID string
	// Code is the OAuth authorization code, present after the Discord redirect.
	Code string
}

// ParseIdentity reads the link parameters. The OAuth state carries the user id
// through the Discord redirect, so it wins over the original user parameter.
func ParseIdentity(query url.Values) Identity {
	userID := query.Get(ParamState)
	if userID == "" {
		userID = query.Get(ParamUser)
	}
	return Identity{
		UserID: userID,
		Code:   query.Get(ParamCode),
	}
}

func (in Identity) Valid() bool {
	return in.UserID != ""
}
