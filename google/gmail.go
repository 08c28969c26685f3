package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/fwojciec/aide"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const me = "me"

// metadataFetchLimit bounds concurrent metadata requests per listing.
const metadataFetchLimit = 4

// GmailService implements aide.MailService with read-only Gmail access.
type GmailService struct {
	svc lazy[*gmail.Service]
}

var _ aide.MailService = (*GmailService)(nil)

// NewGmailService returns a service that calls open on first use.
func NewGmailService(open func(context.Context) (*gmail.Service, error)) *GmailService {
	return &GmailService{svc: lazy[*gmail.Service]{open: open}}
}

// GmailOpener returns an open function authorized through a.
func GmailOpener(a *Authenticator) func(context.Context) (*gmail.Service, error) {
	return func(ctx context.Context) (*gmail.Service, error) {
		hc, err := a.HTTPClient(ctx, "gmail", "v1", gmail.GmailReadonlyScope)
		if err != nil {
			return nil, err
		}
		return gmail.NewService(ctx, option.WithHTTPClient(hc))
	}
}

// ListMessages returns message summaries matching the query, newest first.
func (s *GmailService) ListMessages(ctx context.Context, q aide.MessageQuery) (aide.MessageList, error) {
	svc, err := s.svc.get(ctx)
	if err != nil {
		return aide.MessageList{}, err
	}
	call := svc.Users.Messages.List(me).Q(q.Query)
	if q.MaxResults > 0 {
		call = call.MaxResults(int64(q.MaxResults))
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return aide.MessageList{}, fmt.Errorf("list messages: %w", err)
	}

	msgs := make([]aide.EmailMessage, len(res.Messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataFetchLimit)
	for i, m := range res.Messages {
		g.Go(func() error {
			full, err := svc.Users.Messages.Get(me, m.Id).
				Format("metadata").
				MetadataHeaders("Subject", "From", "Date").
				Context(gctx).Do()
			if err != nil {
				return fmt.Errorf("get message %s: %w", m.Id, err)
			}
			msgs[i] = summarize(full)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return aide.MessageList{}, err
	}

	out := aide.MessageList{Status: aide.StatusSuccess, Messages: msgs}
	if len(msgs) == 0 {
		out.Message = "No messages found."
	}
	return out, nil
}

// GetMessageBody returns the decoded text/plain parts of a message joined by
// newlines, or NoPlainBody when it has none.
func (s *GmailService) GetMessageBody(ctx context.Context, id string) (aide.MessageBody, error) {
	svc, err := s.svc.get(ctx)
	if err != nil {
		return aide.MessageBody{}, err
	}
	msg, err := svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		return aide.MessageBody{}, fmt.Errorf("get message %s: %w", id, err)
	}
	parts, err := plainParts(msg.Payload)
	if err != nil {
		return aide.MessageBody{}, fmt.Errorf("decode message %s: %w", id, err)
	}
	body := strings.Join(parts, "\n")
	if len(parts) == 0 {
		body = aide.NoPlainBody
	}
	return aide.MessageBody{Status: aide.StatusSuccess, MessageID: id, Body: body}, nil
}

func summarize(m *gmail.Message) aide.EmailMessage {
	out := aide.EmailMessage{
		ID:      m.Id,
		Subject: aide.NoSubject,
		Sender:  aide.UnknownSender,
		Date:    aide.UnknownDate,
		Snippet: m.Snippet,
	}
	if m.Payload == nil {
		return out
	}
	for _, h := range m.Payload.Headers {
		switch h.Name {
		case "Subject":
			out.Subject = h.Value
		case "From":
			out.Sender = h.Value
		case "Date":
			out.Date = h.Value
		}
	}
	return out
}

// plainParts collects text/plain bodies depth first. A payload without
// parts contributes its own body whatever its type.
func plainParts(p *gmail.MessagePart) ([]string, error) {
	if p == nil {
		return nil, nil
	}
	if len(p.Parts) == 0 {
		if p.Body == nil || p.Body.Data == "" {
			return nil, nil
		}
		text, err := decodeBody(p.Body.Data)
		if err != nil {
			return nil, err
		}
		return []string{text}, nil
	}
	var out []string
	for _, part := range p.Parts {
		switch {
		case strings.HasPrefix(part.MimeType, "multipart/"):
			nested, err := plainParts(part)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		case part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "":
			text, err := decodeBody(part.Body.Data)
			if err != nil {
				return nil, err
			}
			out = append(out, text)
		}
	}
	return out, nil
}

// decodeBody decodes base64url data with or without padding.
func decodeBody(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		if b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err != nil {
			return "", err
		}
	}
	return string(b), nil
}
