package discord

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"moff.io/wallet-verify/internal/config"
	"moff.io/wallet-verify/pkg/common"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
)

const verifyCommandName = "verify"

var (
	verifyCommand = &discordgo.ApplicationCommand{
		Name:        verifyCommandName,
		Description: "Link your crypto wallet to your Discord account",
	}

	botAuthor = &discordgo.MessageEmbedAuthor{
		Name: "Wallet verification",
	}
)

// Bot answers the /verify slash command with a personal link to the
// verification page.
type Bot struct {
	cfg     config.DiscordBot
	pageURL string
	session *discordgo.Session
}

func NewBot(bot config.DiscordBot, pageURL string) (*Bot, error) {
	ses, err := discordgo.New("Bot " + bot.AuthToken)
	if err != nil {
		return nil, errors.ErrorfAndReport("create new discord session:%v", err)
	}
	ses.Identify.Intents = discordgo.IntentsGuilds
	b := &Bot{
		cfg:     bot,
		pageURL: pageURL,
		session: ses,
	}
	ses.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Infof("Bot is running as %v#%v!", r.User.Username, r.User.Discriminator)
	})
	ses.AddHandler(b.interactionEventHandler)
	return b, nil
}

// Start opens the gateway, registers the slash command and blocks until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	if err := b.session.Open(); err != nil {
		log.Error(errors.ErrorfAndReport("Cannot open the session: %v", err))
		return
	}
	defer b.session.Close()
	if _, err := b.session.ApplicationCommandCreate(b.cfg.AppID, "", verifyCommand); err != nil {
		log.Error(errors.ErrorfAndReport("Cannot register command %v: %v", verifyCommandName, err))
		return
	}
	log.Infof("Registered /%v command", verifyCommandName)
	<-ctx.Done()
	log.Infof("Discord bot shutting down")
}

func (b *Bot) interactionEventHandler(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("interaction handler:%v", r)
		}
	}()
	if !b.handles(i) {
		return
	}
	defer logHandlerDuration("verify command", time.Now())
	userID := interactionUserID(i)
	if userID == "" {
		log.Warnf("verify command without user, interaction %v", i.ID)
		return
	}
	if err := s.InteractionRespond(i.Interaction, verifyResponse(VerificationLink(b.pageURL, userID))); err != nil {
		log.Error(errors.WrapAndReport(err, "respond verify command"))
		return
	}
	if joined := common.DecodeTimeInSnowflake(userID); joined != nil {
		log.Infof("sent verification link to user %v (account created %v)", userID, joined.Format(time.RFC3339))
	}
}

// handles reports whether i is a /verify command addressed to this application.
func (b *Bot) handles(i *discordgo.InteractionCreate) bool {
	if i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return false
	}
	if !b.cfg.IsMe(i.AppID) {
		return false
	}
	return i.ApplicationCommandData().Name == verifyCommandName
}

// VerificationLink is the page URL carrying the Discord user id.
func VerificationLink(pageURL, userID string) string {
	sep := "?"
	if strings.Contains(pageURL, "?") {
		sep = "&"
	}
	return pageURL + sep + "user=" + url.QueryEscape(userID)
}

// interactionUserID returns the invoking user, in a guild or in a DM.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func verifyResponse(link string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{
				{
					Type:  discordgo.EmbedTypeRich,
					Title: "Verify your wallet",
					Description: "Open the link below, log in with Discord, connect your wallet and sign the message.\n" +
						"\n**Signing is free and does not send a transaction. We will NEVER ask for your seed phrase.**",
					// left bar color
					Color:  5793266,
					Author: botAuthor,
				},
			},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label: "Verify wallet",
							Style: discordgo.LinkButton,
							URL:   link,
						},
					},
				},
			},
		},
	}
}

func logHandlerDuration(handler string, start time.Time) {
	log.Debugf("duration - Handler %v cost %v", handler, time.Since(start))
}
