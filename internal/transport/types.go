package transport

import (
	"context"
	"errors"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// IdentityID returns the sender of the update (0 if unknown).
func (u Update) IdentityID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.FromID
	case u.Callback != nil:
		return u.Callback.FromID
	}
	return 0
}

// MediaKind names the attachment carried by a message.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

type Message struct {
	ID            int
	ChatID        int64
	FromID        int64
	FromUsername  string
	FromFirstName string
	Text          string // text or caption
	IsPrivate     bool

	Media MediaKind
	// FileID is the platform reference of a document attachment.
	FileID   string
	FileName string
}

// Ref returns the reference used to copy this message elsewhere.
func (m *Message) Ref() MessageRef {
	return MessageRef{ChatID: m.ChatID, MessageID: m.ID}
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Document describes an asset sent by its platform file reference.
type Document struct {
	FileID  string
	Caption string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	SendDocument(ctx context.Context, to ChatTarget, doc Document, opt *SendOptions) (MessageRef, error)
	// CopyMessage re-sends src to another chat without a forward header,
	// keeping media and caption.
	CopyMessage(ctx context.Context, to ChatTarget, src MessageRef, opt *SendOptions) (MessageRef, error)
	// ChatMemberStatus returns the platform status of userID in group
	// (e.g. "member", "administrator", "creator", "left", "kicked").
	ChatMemberStatus(ctx context.Context, group string, userID int64) (string, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandScope selects who sees a command menu. ChatID 0 means all private chats.
type CommandScope struct {
	ChatID int64
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, scope CommandScope, cmds []BotCommand) error
}

// Outcome classifies a single outbound delivery attempt.
type Outcome int

const (
	Delivered Outcome = iota
	// RecipientUnreachable: the recipient blocked the bot, deleted the account
	// or the chat no longer exists. Retrying will not help.
	RecipientUnreachable
	// TransientError: anything else (network, rate limit, server error).
	TransientError
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case RecipientUnreachable:
		return "unreachable"
	default:
		return "transient"
	}
}

// ErrUnreachable is wrapped by adapters around send errors that mean the
// recipient can no longer be reached.
var ErrUnreachable = errors.New("recipient unreachable")

// Classify maps a send error to an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Delivered
	case errors.Is(err, ErrUnreachable):
		return RecipientUnreachable
	default:
		return TransientError
	}
}
