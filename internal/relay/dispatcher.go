package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/relaybots/relay/backend/go-services/internal/guard"
	"github.com/relaybots/relay/backend/go-services/internal/store"
	"github.com/relaybots/relay/backend/go-services/internal/telegram"
	"github.com/relaybots/relay/backend/go-services/pkg/logger"
)

// BotType selects greeting and command set.
type BotType string

const (
	BotBase            BotType = "base"
	BotCustomerService BotType = "customer_service"
	BotReport          BotType = "report"
)

// ParseBotType accepts exactly the known bot type names.
func ParseBotType(s string) (BotType, error) {
	switch t := BotType(strings.TrimSpace(s)); t {
	case BotBase, BotCustomerService, BotReport:
		return t, nil
	}
	return "", fmt.Errorf("unknown bot type %q (want base, customer_service or report)", s)
}

const (
	replyBusy     = "The service is busy right now, please try again in a moment."
	replyFailure  = "Sorry, something went wrong. Please try again later."
	usageRegister = "Usage: /register <device_id>"
	usageUpload   = "Usage: /upload <device_id>"
)

var greetings = map[BotType]string{
	BotBase:            "Hello! This bot relays your messages to our team.",
	BotCustomerService: "Welcome to customer service. Send your question and an agent will answer here.",
	BotReport:          "Report bot ready. Use /register <device_id> to add a device and /upload <device_id> to report an upload.",
}

// Sender delivers a reply.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Dispatcher turns Telegram updates into store writes and replies.
type Dispatcher struct {
	rec     *Recorder
	sender  Sender
	botType BotType
}

func NewDispatcher(rec *Recorder, sender Sender) *Dispatcher {
	return &Dispatcher{rec: rec, sender: sender, botType: rec.botType}
}

// Handle processes one update. Store errors are reported to the chat and only
// unexpected ones are returned.
func (d *Dispatcher) Handle(ctx context.Context, u telegram.Update) error {
	msg := u.Message
	if msg == nil || msg.From == nil {
		return nil
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	user := store.User{
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		Username:  msg.From.Username,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}
	err := d.rec.RecordInbound(ctx, user, store.Message{
		ChatID: store.ChatID(chatID),
		Text:   msg.Text,
		UserID: user.UserID,
	})
	if err != nil {
		return d.fail(ctx, chatID, "", err)
	}

	cmd, arg := parseCommand(msg.Text)
	switch {
	case cmd == "/start" || cmd == "/help":
		return d.reply(ctx, chatID, greetings[d.botType])
	case cmd == "/register" && d.botType == BotReport:
		return d.register(ctx, chatID, user.UserID, arg)
	case cmd == "/upload" && d.botType == BotReport:
		return d.upload(ctx, chatID, arg)
	case cmd == "" && d.botType == BotCustomerService:
		return d.reply(ctx, chatID, "Thanks! Your message was forwarded to an agent.")
	}
	return nil
}

func (d *Dispatcher) register(ctx context.Context, chatID, ownerID, deviceID string) error {
	if deviceID == "" {
		return d.reply(ctx, chatID, usageRegister)
	}
	dev, created, err := d.rec.RegisterDevice(ctx, deviceID, ownerID)
	if err != nil {
		return d.fail(ctx, chatID, usageRegister, err)
	}
	if !created {
		return d.reply(ctx, chatID, fmt.Sprintf("Device %s is already registered (since %s).", dev.DeviceID, dev.RegisteredAt))
	}
	return d.reply(ctx, chatID, fmt.Sprintf("Device %s registered.", dev.DeviceID))
}

func (d *Dispatcher) upload(ctx context.Context, chatID, deviceID string) error {
	if deviceID == "" {
		return d.reply(ctx, chatID, usageUpload)
	}
	dev, err := d.rec.RecordUpload(ctx, deviceID)
	if err != nil {
		return d.fail(ctx, chatID, usageUpload, err)
	}
	return d.reply(ctx, chatID, fmt.Sprintf("Upload from %s recorded at %s.", dev.DeviceID, *dev.LastUpload))
}

// fail replies according to the error type. usage is sent with validation errors.
func (d *Dispatcher) fail(ctx context.Context, chatID, usage string, err error) error {
	var (
		le *guard.LockTimeoutError
		ve *store.ValidationError
	)
	switch {
	case errors.As(err, &le):
		logger.Warnf("chat %s: %v", chatID, err)
		return d.reply(ctx, chatID, replyBusy)
	case errors.As(err, &ve):
		text := ve.Error()
		if usage != "" {
			text += "\n" + usage
		}
		return d.reply(ctx, chatID, text)
	}
	_ = d.reply(ctx, chatID, replyFailure)
	return err
}

func (d *Dispatcher) reply(ctx context.Context, chatID, text string) error {
	if d.sender == nil || text == "" {
		return nil
	}
	return d.sender.SendMessage(ctx, chatID, text)
}

// parseCommand splits "/cmd@bot arg" into ("/cmd", "arg").
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd, arg, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}
