package gmail

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/mailsync-cli/internal/connectors/google"
	"github.com/custodia-labs/mailsync-cli/internal/core/domain"
	"github.com/custodia-labs/mailsync-cli/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-cli/internal/logger"
)

const (
	// defaultBatchURL is the Gmail HTTP batch endpoint.
	defaultBatchURL = "https://gmail.googleapis.com/batch/gmail/v1"

	// maxBatchRequests is the protocol bound on requests per batch call.
	maxBatchRequests = 100
)

// BackoffRecorder receives Retry-After hints from 429 responses.
// Implemented by ratelimit.Limiter.
type BackoffRecorder interface {
	RecordRateLimitError(retryAfterSeconds int)
}

// Ensure Transport implements the interface.
var _ driven.BatchTransport = (*Transport)(nil)

// Transport executes message operations against the Gmail API. Batch
// calls use the multipart/mixed HTTP batch endpoint, packing up to 100
// sub-requests per round-trip and demultiplexing the response into
// per-item outcomes. Single-item calls go through the generated client.
type Transport struct {
	svc      *gmailapi.Service
	client   *http.Client
	batchURL string
	backoff  BackoffRecorder
}

// NewTransport creates a Gmail transport. client must carry the same
// credentials as svc. backoff is optional; when set, 429 responses feed
// their Retry-After hint into it.
func NewTransport(svc *gmailapi.Service, client *http.Client, backoff BackoffRecorder) *Transport {
	return &Transport{
		svc:      svc,
		client:   client,
		batchURL: defaultBatchURL,
		backoff:  backoff,
	}
}

// SetBatchURL overrides the batch endpoint.
func (t *Transport) SetBatchURL(url string) {
	t.batchURL = url
}

// MaxBatchSize returns the protocol-imposed bound on items per batch call.
func (t *Transport) MaxBatchSize() int {
	return maxBatchRequests
}

// ExecuteBatch applies the operation to a chunk of message IDs in a single
// multipart round-trip. A non-nil error means the batch call itself
// failed; otherwise one outcome per requested ID is returned.
func (t *Transport) ExecuteBatch(ctx context.Context, op domain.Operation, itemIDs []string) ([]driven.ItemOutcome, error) {
	body, contentType, err := buildBatchBody(op, itemIDs)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.batchURL, body)
	if err != nil {
		return nil, fmt.Errorf("building batch request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batch call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		batchErr := &googleapi.Error{
			Code:   resp.StatusCode,
			Header: resp.Header,
			Message: fmt.Sprintf("batch endpoint returned %d: %s",
				resp.StatusCode, strings.TrimSpace(string(detail))),
		}
		t.recordBackoff(batchErr)
		return nil, batchErr
	}

	return t.parseBatchResponse(resp, op, itemIDs)
}

// Execute applies the operation to a single message through the generated
// client. Used by the sequential fallback path.
func (t *Transport) Execute(ctx context.Context, op domain.Operation, itemID string) (*domain.Item, error) {
	item, err := t.executeOne(ctx, op, itemID)
	if err != nil {
		t.recordBackoff(err)
		return nil, err
	}
	return item, nil
}

func (t *Transport) executeOne(ctx context.Context, op domain.Operation, itemID string) (*domain.Item, error) {
	switch op {
	case domain.OperationFetch:
		msg, err := t.svc.Users.Messages.Get("me", itemID).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return messageToItem(msg)

	case domain.OperationTrash:
		if _, err := t.svc.Users.Messages.Trash("me", itemID).Context(ctx).Do(); err != nil {
			return nil, err
		}
		return &domain.Item{ID: itemID}, nil

	case domain.OperationDelete:
		if err := t.svc.Users.Messages.Delete("me", itemID).Context(ctx).Do(); err != nil {
			return nil, err
		}
		return &domain.Item{ID: itemID}, nil

	default:
		return nil, fmt.Errorf("operation %q: %w", op, domain.ErrInvalidInput)
	}
}

// buildBatchBody packs one application/http part per message ID.
// The part's Content-ID carries the request index for response
// correlation.
func buildBatchBody(op domain.Operation, itemIDs []string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for i, id := range itemIDs {
		line, err := requestLine(op, id)
		if err != nil {
			return nil, "", err
		}

		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/http")
		header.Set("Content-ID", fmt.Sprintf("<item-%d>", i))

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("building batch part: %w", err)
		}
		if _, err := fmt.Fprintf(part, "%s\r\n\r\n", line); err != nil {
			return nil, "", fmt.Errorf("building batch part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalising batch body: %w", err)
	}
	return &buf, "multipart/mixed; boundary=" + writer.Boundary(), nil
}

func requestLine(op domain.Operation, itemID string) (string, error) {
	switch op {
	case domain.OperationFetch:
		return fmt.Sprintf("GET /gmail/v1/users/me/messages/%s?format=raw HTTP/1.1", itemID), nil
	case domain.OperationTrash:
		return fmt.Sprintf("POST /gmail/v1/users/me/messages/%s/trash HTTP/1.1", itemID), nil
	case domain.OperationDelete:
		return fmt.Sprintf("DELETE /gmail/v1/users/me/messages/%s HTTP/1.1", itemID), nil
	default:
		return "", fmt.Errorf("operation %q: %w", op, domain.ErrInvalidInput)
	}
}

// parseBatchResponse demultiplexes a multipart/mixed batch response into
// per-item outcomes. Parts are correlated back to request IDs through the
// Content-ID index; parts that cannot be correlated are dropped, which the
// batch client reports as missing items.
func (t *Transport) parseBatchResponse(resp *http.Response, op domain.Operation, itemIDs []string) ([]driven.ItemOutcome, error) {
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("unexpected batch response content type %q", resp.Header.Get("Content-Type"))
	}

	reader := multipart.NewReader(resp.Body, params["boundary"])
	var outcomes []driven.ItemOutcome

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading batch response part: %w", err)
		}

		idx, ok := partIndex(part.Header.Get("Content-ID"))
		if !ok || idx >= len(itemIDs) {
			logger.Warn("Batch response part with unrecognised Content-ID %q", part.Header.Get("Content-ID"))
			continue
		}

		outcome := t.parsePart(part, op, itemIDs[idx])
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// parsePart reads one embedded HTTP response and converts it into an
// item outcome.
func (t *Transport) parsePart(part *multipart.Part, op domain.Operation, itemID string) driven.ItemOutcome {
	inner, err := http.ReadResponse(bufio.NewReader(part), nil)
	if err != nil {
		return driven.ItemOutcome{ItemID: itemID, Err: fmt.Errorf("parsing embedded response: %w", err)}
	}
	defer inner.Body.Close()

	body, err := io.ReadAll(inner.Body)
	if err != nil {
		return driven.ItemOutcome{ItemID: itemID, Err: fmt.Errorf("reading embedded response: %w", err)}
	}

	if inner.StatusCode < 200 || inner.StatusCode >= 300 {
		itemErr := &googleapi.Error{
			Code:    inner.StatusCode,
			Header:  inner.Header,
			Message: strings.TrimSpace(string(body)),
		}
		t.recordBackoff(itemErr)
		return driven.ItemOutcome{ItemID: itemID, Err: itemErr}
	}

	if op != domain.OperationFetch {
		return driven.ItemOutcome{ItemID: itemID, Item: &domain.Item{ID: itemID}}
	}

	var msg gmailapi.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return driven.ItemOutcome{ItemID: itemID, Err: fmt.Errorf("decoding message %s: %w", itemID, err)}
	}
	item, err := messageToItem(&msg)
	if err != nil {
		return driven.ItemOutcome{ItemID: itemID, Err: err}
	}
	return driven.ItemOutcome{ItemID: itemID, Item: item}
}

// partIndex extracts the request index from a response Content-ID of the
// form <response-item-N>.
func partIndex(contentID string) (int, bool) {
	id := strings.Trim(contentID, "<>")
	id = strings.TrimPrefix(id, "response-")
	id = strings.TrimPrefix(id, "item-")
	idx, err := strconv.Atoi(id)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func (t *Transport) recordBackoff(err error) {
	if t.backoff == nil || !google.IsRateLimited(err) {
		return
	}
	seconds := google.RetryAfterSeconds(err)
	logger.Warn("Gmail rate limit hit, backing off %ds", seconds)
	t.backoff.RecordRateLimitError(seconds)
}
