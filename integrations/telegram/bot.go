// Package telegram runs a Telegram bot that answers messages through
// the chat core, keeping a per-chat conversation history.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v3"

	"github.com/roraos/roraos-go/core"
)

// maxMessageLen stays under Telegram's 4096 character limit.
const maxMessageLen = 4000

// Config holds bot configuration.
type Config struct {
	Token string

	// AllowedIDs restricts the bot to these Telegram user IDs.
	// Empty means everyone is allowed.
	AllowedIDs []int64

	// Model used for replies. Defaults to "gpt-4o".
	Model core.ModelID

	// SystemPrompt for multi-turn conversations.
	SystemPrompt string

	// Store keeps per-chat history. Defaults to an in-memory store.
	Store core.Store

	Logger *slog.Logger
}

// Bot bridges Telegram chats to the RoraOS API.
type Bot struct {
	mu      sync.Mutex
	cfg     Config
	client  *core.Client
	allowed map[int64]bool
	log     *slog.Logger

	bot     *tele.Bot
	convs   map[int64]*core.Conversation
	running bool
}

// New creates a Bot. The client is used for all replies.
func New(client *core.Client, cfg Config) *Bot {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Store == nil {
		cfg.Store = core.NewMemoryStore(core.DefaultMaxMessages)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	allowed := make(map[int64]bool, len(cfg.AllowedIDs))
	for _, id := range cfg.AllowedIDs {
		allowed[id] = true
	}
	return &Bot{
		cfg:     cfg,
		client:  client,
		allowed: allowed,
		log:     log,
		convs:   make(map[int64]*core.Conversation),
	}
}

// conversation returns the per-chat conversation, creating it on first use.
func (b *Bot) conversation(chatID int64) *core.Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()

	conv, ok := b.convs[chatID]
	if !ok {
		opts := []core.ConversationOption{
			core.WithStore(b.cfg.Store),
			core.WithSummarization(core.SummarizeConfig{Enabled: true}),
		}
		if b.cfg.SystemPrompt != "" {
			opts = append(opts, core.WithSystemPrompt(b.cfg.SystemPrompt))
		}
		conv = core.NewConversation(b.client, "tg:"+strconv.FormatInt(chatID, 10), b.cfg.Model, opts...)
		b.convs[chatID] = conv
	}
	return conv
}

func (b *Bot) authorized(sender *tele.User) bool {
	if len(b.allowed) == 0 {
		return true
	}
	return b.allowed[sender.ID]
}

// Start begins long polling. It returns once polling is running; use the
// context to stop the bot.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  b.cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}

	bot.Handle("/start", func(c tele.Context) error {
		if !b.authorized(c.Sender()) {
			return nil
		}
		return c.Send("Hi! Send me a message and I'll answer. /ask <question> for a one-off question, /clear to reset our conversation.")
	})

	bot.Handle("/ask", func(c tele.Context) error {
		if !b.authorized(c.Sender()) {
			return nil
		}
		question := c.Message().Payload
		if question == "" {
			return c.Send("Usage: /ask <question>")
		}
		return b.answerOneOff(ctx, c, question)
	})

	bot.Handle("/clear", func(c tele.Context) error {
		if !b.authorized(c.Sender()) {
			return nil
		}
		if err := b.conversation(c.Chat().ID).Clear(ctx); err != nil {
			b.log.Error("clear failed", "chat", c.Chat().ID, "err", err)
			return c.Send("Could not clear the conversation, please try again.")
		}
		return c.Send("Conversation cleared.")
	})

	bot.Handle(tele.OnText, func(c tele.Context) error {
		sender := c.Sender()
		if !b.authorized(sender) {
			b.log.Warn("unauthorized user", "id", sender.ID, "username", sender.Username)
			return nil
		}
		return b.answer(ctx, c)
	})

	b.bot = bot
	b.running = true

	go bot.Start()

	go func() {
		<-ctx.Done()
		bot.Stop()
	}()

	return nil
}

// Stop halts polling.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bot != nil {
		b.bot.Stop()
	}
	b.running = false
}

func (b *Bot) answer(ctx context.Context, c tele.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	reply, err := b.conversation(c.Chat().ID).Send(ctx, c.Text())
	if err != nil {
		b.log.Error("chat failed", "chat", c.Chat().ID, "err", err)
		return c.Send("Something went wrong, please try again.")
	}
	return b.send(c, reply)
}

// answerOneOff answers without touching the conversation history.
func (b *Bot) answerOneOff(ctx context.Context, c tele.Context, question string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := b.oneOffBuilder(question).GetResponse(ctx)
	if err != nil {
		b.log.Error("ask failed", "chat", c.Chat().ID, "err", err)
		return c.Send("Something went wrong, please try again.")
	}
	return b.send(c, resp.Output)
}

// oneOffBuilder builds a single-turn request, system prompt first.
func (b *Bot) oneOffBuilder(question string) *core.ChatBuilder {
	builder := b.client.Chat(b.cfg.Model)
	if b.cfg.SystemPrompt != "" {
		builder = builder.System(b.cfg.SystemPrompt)
	}
	return builder.User(question)
}

// send delivers text, splitting it to stay under the Telegram limit.
func (b *Bot) send(c tele.Context, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if err := c.Send(chunk); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// to break at a newline when one is close to the cut point. Cuts always
// land on rune boundaries.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	var parts []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			// Not valid UTF-8; fall back to a hard byte cut.
			cut = limit
		}
		if i := lastNewline(text[:cut]); i > limit/2 {
			cut = i
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	return append(parts, text)
}

func lastNewline(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return i + 1
		}
	}
	return -1
}
