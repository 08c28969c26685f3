package aide

import "context"

// Placeholders for missing message headers.
const (
	NoSubject     = "No Subject"
	UnknownSender = "Unknown Sender"
	UnknownDate   = "Unknown Date"
	NoPlainBody   = "No plain text body found."
)

// EmailMessage is the summary of one message in the user's mailbox.
type EmailMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
}

// MessageList is returned by list operations.
type MessageList struct {
	Status   string         `json:"status"`
	Messages []EmailMessage `json:"messages"`
	Message  string         `json:"message,omitempty"`
}

// MessageBody is the decoded plain text body of a message.
type MessageBody struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Body      string `json:"body"`
}

// MessageQuery selects messages using the mailbox search syntax.
type MessageQuery struct {
	MaxResults int
	Query      string
}

// MailService reads the user's mailbox.
type MailService interface {
	ListMessages(ctx context.Context, q MessageQuery) (MessageList, error)
	GetMessageBody(ctx context.Context, id string) (MessageBody, error)
}
