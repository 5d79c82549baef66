package gateway

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

// Listener receives session lifecycle events. *health.Reporter implements it.
type Listener interface {
	MarkConnected()
	MarkReady(sessionID string, guilds int)
	SetGuilds(guilds int)
	MarkDisconnected()
}

// DiscordConn adapts a discordgo session to Conn.
type DiscordConn struct {
	session *discordgo.Session
}

var _ Conn = (*DiscordConn)(nil)

// NewDiscordConn creates a bot session and routes its lifecycle events to l.
// The session is not opened.
func NewDiscordConn(token string, l Listener) (*DiscordConn, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	s.ShouldReconnectOnError = true

	for _, h := range handlers(l) {
		s.AddHandler(h)
	}

	return &DiscordConn{session: s}, nil
}

// handlers routes session events to l. The listener logs connection
// changes.
func handlers(l Listener) []any {
	return []any{
		func(_ *discordgo.Session, _ *discordgo.Connect) {
			l.MarkConnected()
		},
		func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			l.MarkDisconnected()
		},
		func(_ *discordgo.Session, r *discordgo.Ready) {
			l.MarkReady(r.SessionID, len(r.Guilds))
		},
		func(_ *discordgo.Session, _ *discordgo.Resumed) {
			logrus.Info("Gateway session resumed")
			l.MarkConnected()
		},
		func(s *discordgo.Session, _ *discordgo.GuildCreate) {
			l.SetGuilds(guildCount(s))
		},
		func(s *discordgo.Session, _ *discordgo.GuildDelete) {
			l.SetGuilds(guildCount(s))
		},
	}
}

func guildCount(s *discordgo.Session) int {
	s.State.RLock()
	defer s.State.RUnlock()
	return len(s.State.Guilds)
}

func (d *DiscordConn) Open() error {
	return d.session.Open()
}

func (d *DiscordConn) Close() error {
	return d.session.Close()
}

func (d *DiscordConn) LastHeartbeatAck() time.Time {
	d.session.RLock()
	defer d.session.RUnlock()
	return d.session.LastHeartbeatAck
}

func (d *DiscordConn) HeartbeatLatency() time.Duration {
	return d.session.HeartbeatLatency()
}
