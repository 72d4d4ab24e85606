// Package notify fans rendered reports out to the configured push
// channels. Channel delivery itself is injected as a Sender per channel;
// this package owns account parsing, the per-channel account cap, paired
// credential validation and the push-window gate.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trendradar/internal/config"
)

// DefaultMaxAccounts caps the fan-out per channel when the config does
// not set its own limit.
const DefaultMaxAccounts = 3

// ParseAccounts splits a multi-account credential on ';', trimming
// whitespace and dropping empty entries.
func ParseAccounts(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var accounts []string
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			accounts = append(accounts, part)
		}
	}
	return accounts
}

// LimitAccounts caps accounts at max, warning when entries are dropped.
// Non-positive max falls back to DefaultMaxAccounts.
func LimitAccounts(accounts []string, max int, channel string, log zerolog.Logger) []string {
	if max <= 0 {
		max = DefaultMaxAccounts
	}
	if len(accounts) <= max {
		return accounts
	}
	log.Warn().
		Str("channel", channel).
		Int("configured", len(accounts)).
		Int("max", max).
		Msg("too many accounts, extra entries ignored")
	return accounts[:max]
}

// ValidatePaired checks that every key in m carries the same number of
// accounts. Channels with paired credentials (bot token + chat id, topic
// + token) are skipped entirely on mismatch. Returns the shared
// cardinality.
func ValidatePaired(m map[string][]string, channel string, keys []string) (int, error) {
	count := -1
	for _, key := range keys {
		n := len(m[key])
		if count == -1 {
			count = n
			continue
		}
		if n != count {
			return 0, fmt.Errorf("%s: %s has %d entries, expected %d", channel, key, n, count)
		}
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

// Account is one delivery target. Primary holds the webhook URL, bot
// token or topic; Secondary holds the paired value (chat id, access
// token) when the channel uses pairs. Label distinguishes accounts in
// multi-account fan-outs and is empty for a single account.
type Account struct {
	Primary   string
	Secondary string
	Label     string
}

// Sender delivers one rendered report body to one account. Implementations
// live outside the engine; tests inject fakes.
type Sender func(ctx context.Context, acct Account, body string) error

// Dispatcher fans one report body out to every configured channel.
type Dispatcher struct {
	cfg     config.Notification
	senders map[string]Sender
	log     zerolog.Logger
}

// NewDispatcher builds a dispatcher over the notification config. Senders
// are registered separately so the engine never links channel delivery
// code.
func NewDispatcher(cfg config.Notification, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		senders: make(map[string]Sender),
		log:     logger.With().Str("component", "notify").Logger(),
	}
}

// RegisterSender wires the delivery function of one channel. Known
// channel names: feishu, dingtalk, wework, telegram, ntfy.
func (d *Dispatcher) RegisterSender(channel string, s Sender) {
	d.senders[channel] = s
}

// Configured reports whether any channel carries credentials.
func (d *Dispatcher) Configured() bool {
	ch := d.cfg.Channels
	return ch.FeishuURL != "" ||
		ch.DingtalkURL != "" ||
		ch.WeworkURL != "" ||
		(ch.TelegramBotToken != "" && ch.TelegramChatID != "") ||
		(ch.NtfyServerURL != "" && ch.NtfyTopic != "")
}

// DispatchAll delivers body to every configured channel and reports the
// per-channel outcome. A channel succeeds when at least one of its
// accounts accepted the message. Channels without credentials are absent
// from the result map; configured channels without a registered sender
// report false.
func (d *Dispatcher) DispatchAll(ctx context.Context, body string) map[string]bool {
	results := make(map[string]bool)
	ch := d.cfg.Channels

	if accounts := ParseAccounts(ch.FeishuURL); len(accounts) > 0 {
		results["feishu"] = d.sendSimple(ctx, "feishu", accounts, body)
	}
	if accounts := ParseAccounts(ch.DingtalkURL); len(accounts) > 0 {
		results["dingtalk"] = d.sendSimple(ctx, "dingtalk", accounts, body)
	}
	if accounts := ParseAccounts(ch.WeworkURL); len(accounts) > 0 {
		results["wework"] = d.sendSimple(ctx, "wework", accounts, body)
	}
	if ch.TelegramBotToken != "" && ch.TelegramChatID != "" {
		results["telegram"] = d.sendTelegram(ctx, body)
	}
	if ch.NtfyServerURL != "" && ch.NtfyTopic != "" {
		results["ntfy"] = d.sendNtfy(ctx, body)
	}

	return results
}

// sendSimple fans out to channels whose accounts are a single value each.
func (d *Dispatcher) sendSimple(ctx context.Context, channel string, accounts []string, body string) bool {
	accounts = LimitAccounts(accounts, d.cfg.MaxAccounts, channel, d.log)
	targets := make([]Account, len(accounts))
	for i, a := range accounts {
		targets[i] = Account{Primary: a, Label: accountLabel(i, len(accounts))}
	}
	return d.fanOut(ctx, channel, targets, body)
}

func (d *Dispatcher) sendTelegram(ctx context.Context, body string) bool {
	tokens := ParseAccounts(d.cfg.Channels.TelegramBotToken)
	chatIDs := ParseAccounts(d.cfg.Channels.TelegramChatID)

	n, err := ValidatePaired(map[string][]string{
		"bot_token": tokens,
		"chat_id":   chatIDs,
	}, "telegram", []string{"bot_token", "chat_id"})
	if err != nil || n == 0 {
		if err != nil {
			d.log.Error().Err(err).Msg("telegram credentials unpaired, channel skipped")
		}
		return false
	}

	tokens = LimitAccounts(tokens, d.cfg.MaxAccounts, "telegram", d.log)
	chatIDs = chatIDs[:len(tokens)]

	targets := make([]Account, len(tokens))
	for i := range tokens {
		targets[i] = Account{Primary: tokens[i], Secondary: chatIDs[i], Label: accountLabel(i, len(tokens))}
	}
	return d.fanOut(ctx, "telegram", targets, body)
}

func (d *Dispatcher) sendNtfy(ctx context.Context, body string) bool {
	topics := ParseAccounts(d.cfg.Channels.NtfyTopic)
	tokens := ParseAccounts(d.cfg.Channels.NtfyToken)

	if len(topics) == 0 {
		return false
	}
	// Tokens are optional, but when present they pair one-to-one with
	// topics.
	if len(tokens) > 0 && len(tokens) != len(topics) {
		d.log.Error().
			Int("topics", len(topics)).
			Int("tokens", len(tokens)).
			Msg("ntfy topic/token counts differ, channel skipped")
		return false
	}

	topics = LimitAccounts(topics, d.cfg.MaxAccounts, "ntfy", d.log)
	if len(tokens) > len(topics) {
		tokens = tokens[:len(topics)]
	}

	targets := make([]Account, len(topics))
	for i, topic := range topics {
		token := ""
		if i < len(tokens) {
			token = tokens[i]
		}
		targets[i] = Account{Primary: topic, Secondary: token, Label: accountLabel(i, len(topics))}
	}
	return d.fanOut(ctx, "ntfy", targets, body)
}

// fanOut delivers to every account of one channel; any success counts.
func (d *Dispatcher) fanOut(ctx context.Context, channel string, targets []Account, body string) bool {
	sender, ok := d.senders[channel]
	if !ok {
		d.log.Warn().Str("channel", channel).Msg("channel configured but no sender registered")
		return false
	}

	ok = false
	for _, acct := range targets {
		if err := sender(ctx, acct, body); err != nil {
			d.log.Warn().
				Str("channel", channel).
				Str("account", acct.Label).
				Err(err).
				Msg("send failed")
			continue
		}
		ok = true
	}
	return ok
}

// accountLabel names the account in multi-account fan-outs.
func accountLabel(i, total int) string {
	if total <= 1 {
		return ""
	}
	return fmt.Sprintf("账号%d", i+1)
}

// SplitBatches cuts body into chunks of at most size runes, preferring
// line boundaries. A single line longer than size is hard-split. Senders
// use this to respect per-channel message limits.
func SplitBatches(body string, size int) []string {
	if size <= 0 || len([]rune(body)) <= size {
		return []string{body}
	}

	var batches []string
	var current []rune
	for _, line := range strings.Split(body, "\n") {
		runes := []rune(line)
		// Hard-split lines that alone exceed the batch size.
		for len(runes) > size {
			if len(current) > 0 {
				batches = append(batches, string(current))
				current = nil
			}
			batches = append(batches, string(runes[:size]))
			runes = runes[size:]
		}
		// +1 for the newline separator.
		if len(current) > 0 && len(current)+1+len(runes) > size {
			batches = append(batches, string(current))
			current = nil
		}
		if len(current) > 0 {
			current = append(current, '\n')
		}
		current = append(current, runes...)
	}
	if len(current) > 0 {
		batches = append(batches, string(current))
	}
	return batches
}

// Window is a daily wall-clock push range. A window whose end precedes
// its start crosses midnight. Empty or malformed bounds leave the window
// open.
type Window struct {
	Start string // "HH:MM"
	End   string // "HH:MM"
}

// WindowFromConfig adapts the config push window.
func WindowFromConfig(pw config.PushWindow) Window {
	return Window{Start: pw.Start, End: pw.End}
}

// InRange reports whether now's wall-clock time falls inside the window.
func (w Window) InRange(now time.Time) bool {
	start, okStart := parseClock(w.Start)
	end, okEnd := parseClock(w.End)
	if !okStart || !okEnd {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur <= end
	}
	// Crosses midnight: e.g. 22:00–06:00.
	return cur >= start || cur <= end
}

// parseClock converts "HH:MM" to minutes past midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
