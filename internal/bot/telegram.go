package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coinchart/internal/domain"
	"coinchart/pkg/logger"

	tele "gopkg.in/telebot.v3"
)

const (
	replyTimeout   = 10 * time.Second
	signalsPerChat = 3
)

type TokenLookup interface {
	GetToken(ctx context.Context, symbol, source string) (*domain.Token, error)
}

// StartTelegramBot starts long polling in the background and returns the bot
// so the caller can stop it. It returns nil when token is empty.
func StartTelegramBot(token string, tokens TokenLookup, log *logger.Logger) (*tele.Bot, error) {
	if token == "" {
		log.Info("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil, nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/token", func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		return c.Send(tokenReply(ctx, tokens, c.Args()))
	})
	b.Handle("/signals", func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		return c.Send(signalsReply(ctx, tokens, c.Args()))
	})

	log.Info("Telegram bot started")
	go b.Start()
	return b, nil
}

func lookup(ctx context.Context, tokens TokenLookup, cmd string, args []string) (*domain.Token, string) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, fmt.Sprintf("Usage: /%s PEPE [source]", cmd)
	}
	symbol := strings.ToUpper(strings.TrimSpace(args[0]))
	source := ""
	if len(args) > 1 {
		source = args[1]
	}

	tok, err := tokens.GetToken(ctx, symbol, source)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Sprintf("Unknown token: %s", symbol)
	case err != nil:
		return nil, fmt.Sprintf("Error fetching %s: %v", symbol, err)
	}
	return tok, ""
}

func tokenReply(ctx context.Context, tokens TokenLookup, args []string) string {
	tok, msg := lookup(ctx, tokens, "token", args)
	if tok == nil {
		return msg
	}
	return fmt.Sprintf(
		"%s (%s) on %s\nPrice: $%s\nMarket cap: $%s\n24h Volume: $%s\n24h Change: %s%%\nRank: %d\nRisk: %d/100",
		tok.Symbol, tok.Name, tok.Source,
		tok.Price.String(), tok.MarketCap.StringFixed(0), tok.Volume24h.StringFixed(0),
		tok.PercentChange24h.StringFixed(2), tok.Rank, tok.RiskLevel,
	)
}

func signalsReply(ctx context.Context, tokens TokenLookup, args []string) string {
	tok, msg := lookup(ctx, tokens, "signals", args)
	if tok == nil {
		return msg
	}
	latest := tok.LatestSignals(signalsPerChat)
	if len(latest) == 0 {
		return fmt.Sprintf("No signals for %s yet", tok.Symbol)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Latest signals for %s", tok.Symbol)
	for i := len(latest) - 1; i >= 0; i-- {
		s := latest[i]
		fmt.Fprintf(&sb, "\n%s %s @ $%s: %s", s.Timestamp.UTC().Format("2006-01-02 15:04"), s.Type, s.Price.String(), s.Description)
	}
	return sb.String()
}
