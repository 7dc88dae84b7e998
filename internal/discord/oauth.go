package discord

import (
	"github.com/bwmarrin/discordgo"
	"golang.org/x/oauth2"
)

// ScopeIdentify grants read access to the user id and name, nothing more.
const ScopeIdentify = "identify"

// Endpoint is Discord's OAuth2 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:   discordgo.EndpointDiscord + "oauth2/authorize",
	TokenURL:  discordgo.EndpointAPI + "oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// NewOAuthConfig describes the authorization code flow of the verification
// page. The code is exchanged by the backend, so no client secret is needed here.
func NewOAuthConfig(clientID, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    clientID,
		Endpoint:    Endpoint,
		RedirectURL: redirectURI,
		Scopes:      []string{ScopeIdentify},
	}
}

// LoginURL returns a function building the authorize URL. The user id travels
// through the redirect as the OAuth state.
func LoginURL(conf *oauth2.Config) func(userID string) string {
	return func(userID string) string {
		return conf.AuthCodeURL(userID)
	}
}
