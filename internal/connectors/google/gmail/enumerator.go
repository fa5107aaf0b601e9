package gmail

import (
	"context"
	"fmt"

	"google.golang.org/api/gmail/v1"

	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-cli/internal/logger"
)

// defaultPageSize is the messages.list page size.
const defaultPageSize = 500

// Ensure Enumerator implements the interface.
var _ driven.ItemEnumerator = (*Enumerator)(nil)

// Enumerator lists candidate message IDs for a Gmail search query via
// messages.list pagination. Gmail returns messages in descending internal
// date order, which is stable for a fixed mailbox, so the enumeration
// order holds across resumed runs as long as the mailbox is not mutated
// between them.
type Enumerator struct {
	svc      *gmail.Service
	pageSize int64
}

// NewEnumerator creates an enumerator over the given Gmail service.
func NewEnumerator(svc *gmail.Service) *Enumerator {
	return &Enumerator{svc: svc, pageSize: defaultPageSize}
}

// Enumerate returns the full candidate message ID set for the query,
// in API order.
func (e *Enumerator) Enumerate(ctx context.Context, query string) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		call := e.svc.Users.Messages.List("me").
			Q(query).
			MaxResults(e.pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}

		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}

		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	logger.Debug("Enumerated %d messages for query %q", len(ids), query)
	return ids, nil
}
