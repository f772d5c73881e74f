package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const maxDiscordMessageLen = 1900

// discordNotifier posts connection alerts to a channel. Alerts inside one
// cooldown are coalesced into a single message.
type discordNotifier struct {
	channelID string
	cooldown  time.Duration
	send      func(channelID, content string) error
	close     func() error
	disabled  bool
}

func newDiscordNotifier(cfg Config) (*discordNotifier, error) {
	token := strings.TrimSpace(cfg.DiscordBotToken)
	if token == "" || cfg.DiscordChannelID == "" {
		return nil, nil
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &discordNotifier{
		channelID: cfg.DiscordChannelID,
		cooldown:  defaultDiscordCooldown,
		send: func(channelID, content string) error {
			_, err := dg.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
				Content:         content,
				AllowedMentions: &discordgo.MessageAllowedMentions{},
			})
			return err
		},
		close: dg.Close,
	}, nil
}

// alertLine renders events worth waking someone for. Share outcomes and
// job changes are too frequent and are never posted.
func alertLine(ev Event) (string, bool) {
	ts := ev.At.UTC().Format("15:04:05")
	switch ev.Kind {
	case EventConnectionState:
		switch ev.State {
		case StateAuthorized:
			return fmt.Sprintf("`%s` connected to %s", ts, ev.Endpoint), true
		case StateFailed:
			if ev.Reason == "" {
				return fmt.Sprintf("`%s` lost %s", ts, ev.Endpoint), true
			}
			return fmt.Sprintf("`%s` lost %s: %s", ts, ev.Endpoint, ev.Reason), true
		}
	case EventEndpointsUnavailable:
		if ev.Wait > 0 {
			return fmt.Sprintf("`%s` all endpoints unavailable, retrying in %s", ts, humanDuration(ev.Wait)), true
		}
		return fmt.Sprintf("`%s` all endpoints unavailable: %s", ts, ev.Reason), true
	case EventBreakerTransition:
		if ev.Breaker == breakerOpen {
			return fmt.Sprintf("`%s` circuit open for %s", ts, ev.Endpoint), true
		}
	case EventReconnectSuspended:
		return fmt.Sprintf("`%s` reconnection paused by gate", ts), true
	}
	return "", false
}

func (n *discordNotifier) Run(ctx context.Context, hub *EventHub) {
	ch := hub.Subscribe(128)
	defer hub.Unsubscribe(ch)
	if n.close != nil {
		defer func() { _ = n.close() }()
	}
	ticker := time.NewTicker(n.cooldown)
	defer ticker.Stop()

	var pending []string
	for {
		select {
		case <-ctx.Done():
			n.flush(pending)
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if line, ok := alertLine(ev); ok {
				pending = append(pending, line)
			}
		case <-ticker.C:
			pending = n.flush(pending)
		}
	}
}

// flush posts pending lines and returns what is left to retry.
func (n *discordNotifier) flush(lines []string) []string {
	if len(lines) == 0 || n.disabled {
		return lines[:0]
	}
	msg := joinAlertLines(lines)
	if err := n.send(n.channelID, msg); err != nil {
		logger.Warn("discord notify send failed", "error", err)
		if isDiscordPermanentError(err) {
			n.disabled = true
			logger.Error("discord alerts disabled", "error", err)
			return lines[:0]
		}
		if len(lines) > 50 {
			lines = lines[len(lines)-50:]
		}
		return lines
	}
	return lines[:0]
}

func joinAlertLines(lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		if b.Len()+len(l)+1 > maxDiscordMessageLen {
			fmt.Fprintf(&b, "\n... and %d more", len(lines)-i)
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l)
	}
	return b.String()
}

func isDiscordPermanentError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, discordgo.ErrUnauthorized) {
		return true
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}
