package line

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/chatrelay/chatrelay/internal/sessions"
	"github.com/chatrelay/chatrelay/pkg/models"
)

const unsupportedMessageReply = "Not support this message type"

// imagePlaceholder stands in for image content in persisted history; raw
// bytes are attached for the current turn only.
const imagePlaceholder = "[User sent an image]"

// TurnRunner executes one conversation turn for a user. Implemented by the
// web server's turn service.
type TurnRunner interface {
	RunTurn(ctx context.Context, userID string, history []models.Message) (*models.TurnResult, error)
}

// Messenger is the subset of Client the webhook needs.
type Messenger interface {
	Reply(ctx context.Context, replyToken string, texts ...string) error
	MessageContent(ctx context.Context, messageID string) ([]byte, string, error)
	ExternalContent(ctx context.Context, url string) ([]byte, string, error)
}

// Webhook receives LINE platform events, verifies their signature, and runs
// conversation turns for message events.
type Webhook struct {
	channelSecret string
	messenger     Messenger
	store         sessions.Store
	runner        TurnRunner
	logger        *slog.Logger
}

func NewWebhook(channelSecret string, messenger Messenger, store sessions.Store, runner TurnRunner, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		channelSecret: channelSecret,
		messenger:     messenger,
		store:         store,
		runner:        runner,
		logger:        logger,
	}
}

type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		ID              string `json:"id"`
		Type            string `json:"type"`
		Text            string `json:"text"`
		ContentProvider struct {
			Type               string `json:"type"`
			OriginalContentURL string `json:"originalContentUrl"`
		} `json:"contentProvider"`
	} `json:"message"`
}

// ServeHTTP verifies the signature over the raw body, then handles every
// event. Per-event failures are reported back into the chat, not as an HTTP
// error: the platform retries non-200 responses and a retry would replay the
// whole batch.
func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusInternalServerError)
		return
	}
	if !ValidateSignature(h.channelSecret, body, r.Header.Get("X-Line-Signature")) {
		h.logger.Warn("webhook signature rejected", "remote_addr", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var payload struct {
		Events []webhookEvent `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("webhook body unparseable", "error", err)
		http.Error(w, "bad payload", http.StatusInternalServerError)
		return
	}

	for _, event := range payload.Events {
		if err := h.handleEvent(r.Context(), event); err != nil {
			h.logger.Error("webhook event failed", "user_id", event.Source.UserID, "error", err)
			h.replyError(r.Context(), event.ReplyToken, err)
		}
	}
	w.WriteHeader(http.StatusOK)
}

// handleEvent dispatches one platform event. Events other than messages get
// the fixed unsupported-type reply when they carry a reply token; events
// without one (unfollow, unsend, ...) have no channel to answer on.
func (h *Webhook) handleEvent(ctx context.Context, event webhookEvent) error {
	if event.Type != "message" {
		if event.ReplyToken == "" {
			return nil
		}
		return h.messenger.Reply(ctx, event.ReplyToken, unsupportedMessageReply)
	}
	return h.handleMessage(ctx, event)
}

func (h *Webhook) handleMessage(ctx context.Context, event webhookEvent) error {
	userID := event.Source.UserID
	if userID == "" {
		return fmt.Errorf("event without user id")
	}

	var incoming models.Message
	var persistedText string
	switch event.Message.Type {
	case "text":
		incoming = models.Message{Role: models.RoleUser, Content: event.Message.Text}
		persistedText = event.Message.Text
	case "image":
		image, mimeType, err := h.fetchImage(ctx, event)
		if err != nil {
			return err
		}
		incoming = models.Message{
			Role: models.RoleUser,
			Parts: []models.ContentPart{{
				Type:     "image",
				Image:    image,
				MimeType: mimeType,
			}},
		}
		persistedText = imagePlaceholder
	default:
		return h.messenger.Reply(ctx, event.ReplyToken, unsupportedMessageReply)
	}

	history, err := h.store.GetMessages(ctx, userID)
	if err != nil {
		// Degrade to an empty history rather than dropping the turn.
		h.logger.Warn("history load failed", "user_id", userID, "error", err)
		history = nil
	}

	result, err := h.runner.RunTurn(ctx, userID, append(append([]models.Message{}, history...), incoming))
	if err != nil {
		return err
	}
	if err := h.messenger.Reply(ctx, event.ReplyToken, result.Text); err != nil {
		return err
	}

	if result.SkipPersist {
		return nil
	}
	persisted := append(append([]models.Message{}, history...),
		models.Message{Role: models.RoleUser, Content: persistedText},
		models.Message{Role: models.RoleAssistant, Content: result.Text},
	)
	if err := h.store.SetMessages(ctx, userID, persisted); err != nil {
		// The user already has the reply; losing one history write is
		// recoverable.
		h.logger.Warn("history write failed", "user_id", userID, "error", err)
	}
	return nil
}

func (h *Webhook) fetchImage(ctx context.Context, event webhookEvent) ([]byte, string, error) {
	if event.Message.ContentProvider.Type == "external" {
		return h.messenger.ExternalContent(ctx, event.Message.ContentProvider.OriginalContentURL)
	}
	return h.messenger.MessageContent(ctx, event.Message.ID)
}

func (h *Webhook) replyError(ctx context.Context, replyToken string, failure error) {
	text := fmt.Sprintf("[Error]: %s (%d)", failure.Error(), http.StatusInternalServerError)
	if err := h.messenger.Reply(ctx, replyToken, text); err != nil {
		h.logger.Error("error reply failed", "error", err)
	}
}
