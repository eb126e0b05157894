package imapmail

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"maildigest/pkg/mailbox"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomessage "github.com/emersion/go-message/mail"
	log "github.com/sirupsen/logrus"
)

// Service implements mailbox.Source over IMAP. The cursor records the
// mailbox UIDVALIDITY and the highest UID already ingested
// ("uid:<validity>:<n>"); IMAP guarantees UIDs ascend within a mailbox, and
// a UIDVALIDITY change is surfaced as mailbox.ErrInvalidCursor.
type Service struct {
	server         string
	port           int
	username       string
	password       string
	folder         string
	backfillWindow time.Duration
	pageSize       uint32
}

const uidTokenPrefix = "uid:"

const (
	dialTimeout    = 30 * time.Second
	commandTimeout = time.Minute
)

// NewService creates an IMAP mailbox source for one folder (INBOX when empty).
func NewService(server string, port int, username, password, folder string, backfillWindow time.Duration) *Service {
	if folder == "" {
		folder = "INBOX"
	}
	if backfillWindow <= 0 {
		backfillWindow = 30 * 24 * time.Hour
	}
	return &Service{
		server:         server,
		port:           port,
		username:       username,
		password:       password,
		folder:         folder,
		backfillWindow: backfillWindow,
		pageSize:       50,
	}
}

// FetchPage implements mailbox.Source.
func (s *Service) FetchPage(ctx context.Context, cursorToken string) (*mailbox.Page, error) {
	c, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if err := c.Login(s.username, s.password); err != nil {
		return nil, fmt.Errorf("%w: %v", mailbox.ErrAuth, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mbox, err := c.Select(s.folder, true)
	if err != nil {
		return nil, fmt.Errorf("imap select %s failed: %w", s.folder, err)
	}

	lastUID, uidValidity, err := parseToken(cursorToken)
	if err != nil {
		return nil, err
	}
	if cursorToken != "" && uidValidity != mbox.UidValidity {
		// The server renumbered the mailbox; old UIDs mean nothing anymore
		return nil, fmt.Errorf("%w: uidvalidity changed %d -> %d", mailbox.ErrInvalidCursor, uidValidity, mbox.UidValidity)
	}

	criteria := imap.NewSearchCriteria()
	if cursorToken == "" {
		criteria.Since = time.Now().Add(-s.backfillWindow)
		log.Printf("[IMAP] Bounded backfill of %s since %s", s.folder, criteria.Since.Format("2006-01-02"))
	} else {
		seqset := new(imap.SeqSet)
		seqset.AddRange(lastUID+1, 0)
		criteria.Uid = seqset
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search failed: %w", err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	// Anything above lastUID only; UidSearch with an open range can echo the
	// last known UID back on some servers
	filtered := uids[:0]
	for _, uid := range uids {
		if uid > lastUID {
			filtered = append(filtered, uid)
		}
	}
	uids = filtered

	hasMore := false
	if uint32(len(uids)) > s.pageSize {
		uids = uids[:s.pageSize]
		hasMore = true
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nextUID := lastUID
	var items []*mailbox.Item
	if len(uids) > 0 {
		items, err = s.fetchItems(c, uids)
		if err != nil {
			return nil, err
		}
		nextUID = uids[len(uids)-1]
	}

	return &mailbox.Page{
		Items:     items,
		NextToken: fmt.Sprintf("%s%d:%d", uidTokenPrefix, mbox.UidValidity, nextUID),
		HasMore:   hasMore,
	}, nil
}

// dial connects with a deadline derived from ctx so a stalled server cannot
// wedge the sync loop. The command timeout covers login, search and fetch.
func (s *Service) dial(ctx context.Context) (*client.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	c, err := client.DialWithDialerTLS(dialer, fmt.Sprintf("%s:%d", s.server, s.port), nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial failed: %w", err)
	}

	c.Timeout = commandTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < c.Timeout {
			c.Timeout = remaining
		}
	}
	return c, nil
}

func (s *Service) fetchItems(c *client.Client, uids []uint32) ([]*mailbox.Item, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	fetchItems := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, fetchItems, messages)
	}()

	var items []*mailbox.Item
	for msg := range messages {
		item := convertIMAPMessage(msg, section)
		if item != nil {
			items = append(items, item)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch failed: %w", err)
	}
	return items, nil
}

func convertIMAPMessage(msg *imap.Message, section *imap.BodySectionName) *mailbox.Item {
	if msg == nil || msg.Envelope == nil {
		return nil
	}

	from := ""
	fromName := ""
	if len(msg.Envelope.From) > 0 {
		addr := msg.Envelope.From[0]
		from = addr.Address()
		fromName = addr.PersonalName
		if fromName == "" {
			fromName = from
		}
	}

	plain, html := readBodies(msg.GetBody(section))

	return &mailbox.Item{
		ProviderID: fmt.Sprintf("imap-%s", msg.Envelope.MessageId),
		From:       from,
		FromName:   fromName,
		Subject:    msg.Envelope.Subject,
		Body:       plain,
		HTMLBody:   html,
		ReceivedAt: msg.Envelope.Date,
	}
}

func readBodies(r io.Reader) (plain, html string) {
	if r == nil {
		return "", ""
	}

	mr, err := gomessage.CreateReader(r)
	if err != nil {
		return "", ""
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		header, ok := part.Header.(*gomessage.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain") && plain == "":
			plain = string(data)
		case strings.HasPrefix(contentType, "text/html") && html == "":
			html = string(data)
		}
	}
	return plain, html
}

func parseToken(token string) (lastUID, uidValidity uint32, err error) {
	if token == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(strings.TrimPrefix(token, uidTokenPrefix), ":", 2)
	if len(parts) != 2 || !strings.HasPrefix(token, uidTokenPrefix) {
		return 0, 0, fmt.Errorf("%w: malformed uid token %q", mailbox.ErrInvalidCursor, token)
	}
	validity, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed uid token %q", mailbox.ErrInvalidCursor, token)
	}
	uid, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed uid token %q", mailbox.ErrInvalidCursor, token)
	}
	return uint32(uid), uint32(validity), nil
}
