// Package graph is a thin Microsoft Graph mail client scoped to a
// single user mailbox.
package graph

import "strings"

// EmailAddress is the Graph address pair.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Recipient wraps an EmailAddress the way Graph nests it.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is a Graph message body.
type ItemBody struct {
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content,omitempty"`
}

// DateTimeTimeZone is Graph's timestamp-with-zone pair.
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// Followup flag statuses.
const (
	FlagStatusNotFlagged = "notFlagged"
	FlagStatusFlagged    = "flagged"
	FlagStatusComplete   = "complete"
)

// FollowupFlag is the structured due-date marker on a message.
type FollowupFlag struct {
	FlagStatus        string            `json:"flagStatus"`
	StartDateTime     *DateTimeTimeZone `json:"startDateTime,omitempty"`
	DueDateTime       *DateTimeTimeZone `json:"dueDateTime,omitempty"`
	CompletedDateTime *DateTimeTimeZone `json:"completedDateTime,omitempty"`
}

// Message importance values.
const (
	ImportanceHigh   = "high"
	ImportanceNormal = "normal"
	ImportanceLow    = "low"
)

// Message is the subset of a Graph mail message mailtriage reads.
type Message struct {
	ID               string        `json:"id"`
	Subject          string        `json:"subject,omitempty"`
	From             *Recipient    `json:"from,omitempty"`
	ToRecipients     []Recipient   `json:"toRecipients,omitempty"`
	CcRecipients     []Recipient   `json:"ccRecipients,omitempty"`
	ReceivedDateTime string        `json:"receivedDateTime,omitempty"`
	SentDateTime     string        `json:"sentDateTime,omitempty"`
	BodyPreview      string        `json:"bodyPreview,omitempty"`
	Body             *ItemBody     `json:"body,omitempty"`
	UniqueBody       *ItemBody     `json:"uniqueBody,omitempty"`
	ConversationID   string        `json:"conversationId,omitempty"`
	Categories       []string      `json:"categories,omitempty"`
	Flag             *FollowupFlag `json:"flag,omitempty"`
	Importance       string        `json:"importance,omitempty"`
	IsRead           bool          `json:"isRead"`
	WebLink          string        `json:"webLink,omitempty"`
}

// FromAddress returns the lowercased sender address, or "".
func (m *Message) FromAddress() string {
	if m.From == nil {
		return ""
	}
	return strings.ToLower(m.From.EmailAddress.Address)
}

// FromName returns the sender display name, or "".
func (m *Message) FromName() string {
	if m.From == nil {
		return ""
	}
	return m.From.EmailAddress.Name
}

// MessagePatch is the writable subset of a message. Zero-value fields
// are omitted from the PATCH body, with two exceptions: IsRead uses a
// pointer so "set to false" survives marshalling, and Categories
// always patches so an empty list can clear every category.
type MessagePatch struct {
	Categories []string      `json:"categories"`
	IsRead     *bool         `json:"isRead,omitempty"`
	Importance string        `json:"importance,omitempty"`
	Flag       *FollowupFlag `json:"flag,omitempty"`
}

// MasterCategory is a mailbox-level label definition with a colour.
type MasterCategory struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
}
