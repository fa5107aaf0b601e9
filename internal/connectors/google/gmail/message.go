package gmail

import (
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
)

// messageToItem converts a Gmail message to a pipeline item. When fetched
// with Format("raw"), msg.Raw contains the base64url-encoded RFC 2822
// message, which becomes the item payload. The API serves the field
// without padding, so decoding must accept both padded and unpadded form.
func messageToItem(msg *gmail.Message) (*domain.Item, error) {
	var payload []byte
	if msg.Raw != "" {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(msg.Raw, "="))
		if err != nil {
			return nil, fmt.Errorf("decoding raw message %s: %w", msg.Id, err)
		}
		payload = decoded
	}

	return &domain.Item{
		ID:      msg.Id,
		Payload: payload,
		Metadata: map[string]any{
			"thread_id":     msg.ThreadId,
			"labels":        msg.LabelIds,
			"snippet":       msg.Snippet,
			"internal_date": msg.InternalDate,
			"size_estimate": msg.SizeEstimate,
		},
	}, nil
}
