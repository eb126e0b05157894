package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"maildigest/pkg/mailbox"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback invoked when the oauth token is refreshed,
// so the caller can persist the new token.
type TokenUpdateFunc func(token *oauth2.Token) error

// Service implements mailbox.Source against the Gmail API. Incremental
// progress is tracked with Gmail history ids; a history id the API no longer
// accepts is reported as mailbox.ErrInvalidCursor.
type Service struct {
	clientID       string
	clientSecret   string
	accessToken    string
	refreshToken   string
	backfillWindow time.Duration
	onTokenRefresh TokenUpdateFunc
}

// Cursor token formats. The backfill token freezes the history id observed
// before listing, so nothing that arrives during the backfill is skipped.
const (
	historyTokenPrefix  = "history:"
	backfillTokenPrefix = "backfill:"
)

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// NewService creates a Gmail mailbox source. backfillWindow bounds the full
// re-fetch used on first run and after a cursor invalidation.
func NewService(clientID, clientSecret, accessToken, refreshToken string, backfillWindow time.Duration, onTokenRefresh TokenUpdateFunc) *Service {
	if backfillWindow <= 0 {
		backfillWindow = 30 * 24 * time.Hour
	}
	return &Service{
		clientID:       clientID,
		clientSecret:   clientSecret,
		accessToken:    accessToken,
		refreshToken:   refreshToken,
		backfillWindow: backfillWindow,
		onTokenRefresh: onTokenRefresh,
	}
}

func (s *Service) gmailService(ctx context.Context) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if s.refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: s.onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// FetchPage implements mailbox.Source.
func (s *Service) FetchPage(ctx context.Context, cursorToken string) (*mailbox.Page, error) {
	srv, err := s.gmailService(ctx)
	if err != nil {
		return nil, err
	}

	switch {
	case cursorToken == "":
		return s.startBackfill(ctx, srv)
	case strings.HasPrefix(cursorToken, backfillTokenPrefix):
		return s.continueBackfill(ctx, srv, cursorToken)
	case strings.HasPrefix(cursorToken, historyTokenPrefix):
		return s.fetchHistory(ctx, srv, cursorToken)
	default:
		return nil, fmt.Errorf("%w: unrecognized token %q", mailbox.ErrInvalidCursor, cursorToken)
	}
}

// startBackfill freezes the current history id, then lists the bounded
// window. The frozen id becomes the incremental token once the backfill is
// drained, so messages arriving mid-backfill show up in the first history
// pass (dedup absorbs any overlap).
func (s *Service) startBackfill(ctx context.Context, srv *gmail.Service) (*mailbox.Page, error) {
	profile, err := srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}

	log.Printf("[Gmail] Starting bounded backfill (window %s, baseline history id %d)", s.backfillWindow, profile.HistoryId)
	return s.listBackfillPage(ctx, srv, profile.HistoryId, "")
}

func (s *Service) continueBackfill(ctx context.Context, srv *gmail.Service, token string) (*mailbox.Page, error) {
	// backfill:<historyID>:<pageToken>
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: malformed backfill token", mailbox.ErrInvalidCursor)
	}
	historyID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed backfill token", mailbox.ErrInvalidCursor)
	}
	return s.listBackfillPage(ctx, srv, historyID, parts[2])
}

func (s *Service) listBackfillPage(ctx context.Context, srv *gmail.Service, baselineHistoryID uint64, pageToken string) (*mailbox.Page, error) {
	days := int(s.backfillWindow.Hours()/24) + 1
	listQuery := srv.Users.Messages.List("me").
		Q(fmt.Sprintf("newer_than:%dd", days)).
		MaxResults(100).
		Context(ctx)
	if pageToken != "" {
		listQuery = listQuery.PageToken(pageToken)
	}

	resp, err := listQuery.Do()
	if err != nil {
		return nil, mapError(err)
	}

	items := make([]*mailbox.Item, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		item, err := s.fetchItem(ctx, srv, ref.Id)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if resp.NextPageToken != "" {
		return &mailbox.Page{
			Items:     items,
			NextToken: fmt.Sprintf("%s%d:%s", backfillTokenPrefix, baselineHistoryID, resp.NextPageToken),
			HasMore:   true,
		}, nil
	}

	// Backfill drained: hand out the frozen incremental token
	return &mailbox.Page{
		Items:     items,
		NextToken: fmt.Sprintf("%s%d", historyTokenPrefix, baselineHistoryID),
		HasMore:   false,
	}, nil
}

func (s *Service) fetchHistory(ctx context.Context, srv *gmail.Service, token string) (*mailbox.Page, error) {
	// history:<startHistoryID>, or history:<startHistoryID>:<pageToken> while
	// a multi-page listing is in flight
	rest := strings.TrimPrefix(token, historyTokenPrefix)
	parts := strings.SplitN(rest, ":", 2)
	startHistoryID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed history token", mailbox.ErrInvalidCursor)
	}

	listQuery := srv.Users.History.List("me").
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded").
		MaxResults(100).
		Context(ctx)
	if len(parts) == 2 && parts[1] != "" {
		listQuery = listQuery.PageToken(parts[1])
	}

	resp, err := listQuery.Do()
	if err != nil {
		return nil, mapError(err)
	}

	var items []*mailbox.Item
	seen := make(map[string]bool)
	latestHistoryID := startHistoryID
	for _, h := range resp.History {
		if h.Id > latestHistoryID {
			latestHistoryID = h.Id
		}
		for _, added := range h.MessagesAdded {
			if added.Message == nil || seen[added.Message.Id] {
				continue
			}
			seen[added.Message.Id] = true
			item, err := s.fetchItem(ctx, srv, added.Message.Id)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}

	if resp.NextPageToken != "" {
		// The start history id must be held until the listing is drained.
		// resp.HistoryId is the mailbox's current record, which is ahead of
		// the pages still to come; adopting it here would skip them.
		return &mailbox.Page{
			Items:     items,
			NextToken: fmt.Sprintf("%s%d:%s", historyTokenPrefix, startHistoryID, resp.NextPageToken),
			HasMore:   true,
		}, nil
	}

	if resp.HistoryId > latestHistoryID {
		latestHistoryID = resp.HistoryId
	}
	return &mailbox.Page{
		Items:     items,
		NextToken: fmt.Sprintf("%s%d", historyTokenPrefix, latestHistoryID),
		HasMore:   false,
	}, nil
}

func (s *Service) fetchItem(ctx context.Context, srv *gmail.Service, id string) (*mailbox.Item, error) {
	msg, err := srv.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	return convertGmailMessage(msg), nil
}

func convertGmailMessage(msg *gmail.Message) *mailbox.Item {
	from := getHeader(msg.Payload.Headers, "From")
	fromName := from
	// Extract name from "Name <email@example.com>" format
	if idx := strings.Index(from, "<"); idx > 0 {
		fromName = strings.TrimSpace(from[:idx])
	}

	plain, html := getMessageBodies(msg.Payload)

	return &mailbox.Item{
		ProviderID: msg.Id,
		From:       from,
		FromName:   fromName,
		Subject:    getHeader(msg.Payload.Headers, "Subject"),
		Body:       plain,
		HTMLBody:   html,
		ReceivedAt: time.Unix(msg.InternalDate/1000, 0),
	}
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

func getMessageBodies(payload *gmail.MessagePart) (plain, html string) {
	if payload == nil {
		return "", ""
	}

	// The payload itself may be the body
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			if payload.MimeType == "text/html" {
				return "", string(data)
			}
			return string(data), ""
		}
	}

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				data, err := base64.URLEncoding.DecodeString(part.Body.Data)
				if err == nil {
					switch part.MimeType {
					case "text/html":
						html = string(data)
					case "text/plain":
						plain = string(data)
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)
	return plain, html
}

// mapError classifies Gmail API failures into the sentinel errors the sync
// engine distinguishes.
func mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return fmt.Errorf("%w: %v", mailbox.ErrAuth, err)
		case 404:
			// History.List returns 404 when the start history id has been
			// expired out by Gmail
			return fmt.Errorf("%w: %v", mailbox.ErrInvalidCursor, err)
		case 403:
			if strings.Contains(apiErr.Message, "rate") || strings.Contains(apiErr.Message, "Rate") {
				return fmt.Errorf("gmail rate limited: %w", err)
			}
			return fmt.Errorf("%w: %v", mailbox.ErrAuth, err)
		}
	}
	return fmt.Errorf("gmail fetch failed: %w", err)
}
