package application

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"

	"voicechat/internal/domain"
)

// ChatCompleter sends an ordered conversation to a chat-completion endpoint
// and returns the reply text. Implementations wrap domain.ErrRateLimited when
// the upstream answers with a rate-limit status.
type ChatCompleter interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

const DefaultPersona = "You are a sales person selling cars and houses. Ask relevant questions. " +
	"Keep your answer under 25 words with simple language to understand."

// Style suffixes appended to the persona, one per request.
const (
	StyleHumour           = " Your response will include some humour."
	StyleFriendlyQuestion = " Your response will include a rather user friendly question."
)

const (
	RateLimitedFallback = "Rate limit exceeded. Please wait a moment and try again."
	GenericFallback     = "Sorry, I'm having trouble connecting right now."
)

const (
	DefaultWindowSize  = 5
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
)

// Coin picks the style suffix: true selects humour.
type Coin func() bool

func FairCoin() bool {
	return rand.IntN(2) == 0
}

type ChatOrchestrator struct {
	completer ChatCompleter
	history   HistoryStore
	persona   string
	window    int
	coin      Coin
	logger    *slog.Logger
}

type ChatOption func(*ChatOrchestrator)

func WithPersona(persona string) ChatOption {
	return func(c *ChatOrchestrator) {
		if persona != "" {
			c.persona = persona
		}
	}
}

func WithWindow(n int) ChatOption {
	return func(c *ChatOrchestrator) {
		if n > 0 {
			c.window = n
		}
	}
}

func WithCoin(coin Coin) ChatOption {
	return func(c *ChatOrchestrator) {
		if coin != nil {
			c.coin = coin
		}
	}
}

func NewChatOrchestrator(completer ChatCompleter, history HistoryStore, logger *slog.Logger, opts ...ChatOption) *ChatOrchestrator {
	c := &ChatOrchestrator{
		completer: completer,
		history:   history,
		persona:   DefaultPersona,
		window:    DefaultWindowSize,
		coin:      FairCoin,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SystemInstruction builds a fresh persona turn for one request.
func (c *ChatOrchestrator) SystemInstruction() domain.Turn {
	if c.coin() {
		return domain.SystemTurn(c.persona + StyleHumour)
	}
	return domain.SystemTurn(c.persona + StyleFriendlyQuestion)
}

// Window assembles instruction, recent history and the new user turn.
func (c *ChatOrchestrator) Window(ctx context.Context, userText string) []domain.Turn {
	recent := c.history.LoadWindow(ctx, c.window)

	messages := make([]domain.Turn, 0, len(recent)+2)
	messages = append(messages, c.SystemInstruction())
	messages = append(messages, recent...)
	messages = append(messages, domain.UserTurn(userText))
	return messages
}

// GetReply never fails: completion errors turn into fallback text tagged with
// the reason.
func (c *ChatOrchestrator) GetReply(ctx context.Context, userText string) domain.Reply {
	req := domain.CompletionRequest{
		Messages:    c.Window(ctx, userText),
		MaxTokens:   DefaultMaxTokens,
		Candidates:  1,
		Temperature: DefaultTemperature,
	}

	if c.completer == nil {
		c.logger.Warn("chat completion not configured")
		return domain.Reply{Text: GenericFallback, Kind: domain.ReplyFallback, Err: domain.ErrUnavailable}
	}

	text, err := c.completer.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			c.logger.Warn("chat completion rate limited", "error", err)
			return domain.Reply{Text: RateLimitedFallback, Kind: domain.ReplyRateLimited, Err: err}
		}
		c.logger.Error("chat completion failed", "error", err)
		return domain.Reply{Text: GenericFallback, Kind: domain.ReplyFallback, Err: err}
	}

	return domain.Reply{Text: text, Kind: domain.ReplyModel}
}
