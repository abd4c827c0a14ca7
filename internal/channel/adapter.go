// Package channel translates messaging-platform webhook payloads into the
// engine's internal query shape and validates webhook signatures.
package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/answerline/answer-engine/internal/domain"
)

// Inbound is a platform message normalized to the query shape.
type Inbound struct {
	TenantID uuid.UUID `json:"tenantId"`
	UserID   uuid.UUID `json:"userId"`
	Channel  string    `json:"channel"`
	Message  string    `json:"message"`
	// PlatformUserID is the raw channel identifier the user id was derived
	// from (phone number, Teams id, Telegram id).
	PlatformUserID string `json:"platformUserId"`
}

// VerifySignature checks an X-Hub-Signature-256 header ("sha256=<hex>")
// against the raw request body. An empty secret disables validation.
func VerifySignature(body []byte, signatureHeader, secret string) bool {
	if secret == "" {
		return true
	}
	if signatureHeader == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	got := strings.TrimPrefix(signatureHeader, "sha256=")
	return hmac.Equal([]byte(expected), []byte(got))
}

// Sign produces the X-Hub-Signature-256 header value for a body; used by
// tests and outbound callbacks.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type whatsappPayload struct {
	TenantID string `json:"tenantId"`
	Entry    []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type telegramPayload struct {
	TenantID string `json:"tenantId"`
	Message  struct {
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Text string `json:"text"`
	} `json:"message"`
}

type teamsPayload struct {
	TenantID string `json:"tenantId"`
	From     struct {
		ID string `json:"id"`
	} `json:"from"`
	Text string `json:"text"`
}

// Normalize extracts the tenant, user, and message text from a platform
// payload. Platform user identifiers are not UUIDs; the user id is derived
// deterministically so the same sender always lands in the same conversation.
func Normalize(channelName string, body []byte) (*Inbound, error) {
	var tenantRaw, platformUser, message string

	switch strings.ToLower(channelName) {
	case "whatsapp":
		var p whatsappPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, domain.Validation("malformed WhatsApp payload")
		}
		tenantRaw = p.TenantID
		if len(p.Entry) > 0 && len(p.Entry[0].Changes) > 0 {
			msgs := p.Entry[0].Changes[0].Value.Messages
			if len(msgs) > 0 {
				platformUser = msgs[0].From
				message = msgs[0].Text.Body
			}
		}
	case "telegram":
		var p telegramPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, domain.Validation("malformed Telegram payload")
		}
		tenantRaw = p.TenantID
		if p.Message.From.ID != 0 {
			platformUser = strconv.FormatInt(p.Message.From.ID, 10)
		}
		message = p.Message.Text
	case "teams":
		var p teamsPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, domain.Validation("malformed Teams payload")
		}
		tenantRaw = p.TenantID
		platformUser = p.From.ID
		message = p.Text
	default:
		return nil, domain.Validation("unknown channel: " + channelName)
	}

	if platformUser == "" {
		return nil, domain.Validation("payload has no sender identifier")
	}
	if strings.TrimSpace(message) == "" {
		return nil, domain.Validation("payload has no message text")
	}

	tenantID, err := uuid.Parse(tenantRaw)
	if err != nil {
		return nil, domain.Validation("invalid or missing tenantId")
	}

	return &Inbound{
		TenantID:       tenantID,
		UserID:         DeriveUserID(channelName, platformUser),
		Channel:        strings.ToLower(channelName),
		Message:        message,
		PlatformUserID: platformUser,
	}, nil
}

// DeriveUserID maps a platform sender identifier to a stable UUID.
func DeriveUserID(channelName, platformUser string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(channelName)+":"+platformUser))
}
