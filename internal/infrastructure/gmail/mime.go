package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/jhillyerd/enmime/v2"

	"autoreply/internal/domain/email"
)

// EncodeDraft renders draft as an HTML MIME message encoded the way the
// Gmail API expects for Message.Raw (base64url).
func EncodeDraft(draft *email.ReplyDraft) (string, error) {
	b := enmime.Builder().
		From(draft.FromName, draft.From).
		To("", draft.To).
		Subject(draft.Subject).
		HTML([]byte(draft.HTMLBody))

	if draft.InReplyTo != "" {
		b = b.Header("In-Reply-To", draft.InReplyTo).
			Header("References", draft.InReplyTo)
	}

	part, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("build reply: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return "", fmt.Errorf("encode reply: %w", err)
	}

	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}
