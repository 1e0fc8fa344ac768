package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"autoreply/internal/domain/email"
)

const userID = "me"

// NewService creates a Gmail service authorized by ts.
func NewService(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*gmail.Service, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)

	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create gmail service: %w", err)
	}
	return srv, nil
}

// Client implements Gmail operations (adapter)
type Client struct {
	Srv    *gmail.Service
	logger *slog.Logger
}

// NewClient creates a new Gmail client
func NewClient(srv *gmail.Service, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Srv: srv, logger: logger}
}

// ForeachMessage calls fn for every message matching query, one page at a time.
// Iteration stops at the first error returned by fn.
func (c *Client) ForeachMessage(ctx context.Context, query string, fn func(email.MessageRef) error) error {
	pageToken := ""
	for {
		req := c.Srv.Users.Messages.List(userID).Q(query).Context(ctx)
		if pageToken != "" {
			req.PageToken(pageToken)
		}

		resp, err := req.Do()
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}

		for _, m := range resp.Messages {
			if err := fn(email.MessageRef{ID: m.Id, ThreadID: m.ThreadId}); err != nil {
				return err
			}
		}

		if resp.NextPageToken == "" {
			return nil
		}
		pageToken = resp.NextPageToken
	}
}

// HasMessages reports whether at least one message matches query.
func (c *Client) HasMessages(ctx context.Context, query string) (bool, error) {
	resp, err := c.Srv.Users.Messages.List(userID).
		Q(query).
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return false, fmt.Errorf("search messages: %w", err)
	}

	return len(resp.Messages) > 0, nil
}

func (c *Client) FetchSummary(ctx context.Context, messageID string) (*email.MessageSummary, error) {
	msg, err := c.Srv.Users.Messages.Get(userID, messageID).
		Format("metadata").
		MetadataHeaders("From", "Subject", "Message-ID").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gmail get message: %w", err)
	}

	return email.NewMessageSummary(
		messageID,
		msg.ThreadId,
		extractHeader(msg, "From"),
		extractHeader(msg, "Subject"),
		extractHeader(msg, "Message-ID"),
	), nil
}

// SendReply sends draft in its thread and returns the id of the sent message.
func (c *Client) SendReply(ctx context.Context, draft *email.ReplyDraft) (string, error) {
	raw, err := EncodeDraft(draft)
	if err != nil {
		return "", err
	}

	sent, err := c.Srv.Users.Messages.Send(userID, &gmail.Message{
		Raw:      raw,
		ThreadId: draft.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	return sent.Id, nil
}

func (c *Client) ApplyLabel(ctx context.Context, messageID, labelID string) error {
	_, err := c.Srv.Users.Messages.Modify(userID, messageID, &gmail.ModifyMessageRequest{
		AddLabelIds: []string{labelID},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("modify labels: %w", err)
	}
	return nil
}

// Profile returns the address of the authenticated account.
func (c *Client) Profile(ctx context.Context) (string, error) {
	p, err := c.Srv.Users.GetProfile(userID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return p.EmailAddress, nil
}

// EnsureLabel returns the user label called name, creating it if needed.
func (c *Client) EnsureLabel(ctx context.Context, name string) (email.Label, error) {
	if l, ok, err := c.findLabel(ctx, name); err != nil || ok {
		return l, err
	}

	created, err := c.Srv.Users.Labels.Create(userID, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		if strings.Contains(err.Error(), "Label name exists or conflicts") {
			c.logger.Info("label already exists (409 conflict), looking it up again", slog.String("label", name))
			if l, ok, ferr := c.findLabel(ctx, name); ferr == nil && ok {
				return l, nil
			}
		}
		return email.Label{}, fmt.Errorf("create label %q: %w", name, err)
	}

	return email.Label{ID: created.Id, Name: created.Name}, nil
}

func (c *Client) findLabel(ctx context.Context, name string) (email.Label, bool, error) {
	list, err := c.Srv.Users.Labels.List(userID).Context(ctx).Do()
	if err != nil {
		return email.Label{}, false, fmt.Errorf("list labels: %w", err)
	}

	for _, l := range list.Labels {
		if strings.EqualFold(l.Name, name) {
			return email.Label{ID: l.Id, Name: l.Name}, true, nil
		}
	}
	return email.Label{}, false, nil
}

// EnableWatch enables Gmail push notifications and returns the watch
// expiration in unix milliseconds.
func (c *Client) EnableWatch(ctx context.Context, topicName string) (int64, error) {
	resp, err := c.Srv.Users.Watch(userID, &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("gmail watch: %w", err)
	}

	return resp.Expiration, nil
}

func extractHeader(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
