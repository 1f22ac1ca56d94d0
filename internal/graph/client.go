package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client talks to one mailbox: "me" for delegated tokens, a
// userPrincipalName for app-only tokens.
type Client struct {
	http    *http.Client
	baseURL string
	user    string
	now     func() time.Time
}

// NewClient builds a client over an authenticated HTTP client.
func NewClient(httpClient *http.Client, user string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: defaultBaseURL,
		user:    user,
		now:     time.Now,
	}
}

// WithBaseURL points the client at a different Graph endpoint (tests).
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimSuffix(base, "/")
	return c
}

func (c *Client) userRoot() string {
	if strings.EqualFold(c.user, "me") {
		return c.baseURL + "/me"
	}
	return c.baseURL + "/users/" + url.PathEscape(c.user)
}

// APIError is a non-2xx Graph response.
type APIError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph %s %s: status %d: %s", e.Method, e.URL, e.Status, truncateBody(e.Body))
}

func truncateBody(s string) string {
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, URL: rawURL, Status: resp.StatusCode, Body: string(data)}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// listPage is the common Graph collection envelope.
type listPage struct {
	Value    []Message `json:"value"`
	NextLink string    `json:"@odata.nextLink"`
}

// listMessages follows @odata.nextLink pagination until max messages
// are collected or the pages run out.
func (c *Client) listMessages(ctx context.Context, firstURL string, params url.Values, max int) ([]Message, error) {
	rawURL := firstURL
	if params != nil {
		rawURL += "?" + params.Encode()
	}

	var out []Message
	for rawURL != "" && len(out) < max {
		var page listPage
		if err := c.do(ctx, http.MethodGet, rawURL, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Value...)
		rawURL = page.NextLink
	}
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func sinceFilter(now time.Time, daysBack int) string {
	return now.UTC().AddDate(0, 0, -daysBack).Format("2006-01-02T15:04:05Z")
}

func pageSize(max int) string {
	if max < 50 {
		return fmt.Sprintf("%d", max)
	}
	return "50"
}

// ListInboxUnprocessed returns recent inbox messages not yet tagged
// "Processed", newest first.
func (c *Client) ListInboxUnprocessed(ctx context.Context, daysBack, max int) ([]Message, error) {
	params := url.Values{}
	params.Set("$select", "id,subject,from,receivedDateTime,bodyPreview,uniqueBody,conversationId,categories,flag,importance,isRead,webLink")
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s and not(categories/any(c:c eq 'Processed'))", sinceFilter(c.now(), daysBack)))
	params.Set("$top", pageSize(max))
	return c.listMessages(ctx, c.userRoot()+"/mailFolders/Inbox/messages", params, max)
}

// ListInboxSince returns inbox messages received inside the window.
func (c *Client) ListInboxSince(ctx context.Context, daysBack, max int) ([]Message, error) {
	params := url.Values{}
	params.Set("$select", "id,subject,from,receivedDateTime,bodyPreview,conversationId,categories,isRead,webLink")
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", sinceFilter(c.now(), daysBack)))
	params.Set("$top", pageSize(max))
	return c.listMessages(ctx, c.userRoot()+"/mailFolders/Inbox/messages", params, max)
}

// ListSentSince returns sent items inside the window.
func (c *Client) ListSentSince(ctx context.Context, daysBack, max int) ([]Message, error) {
	params := url.Values{}
	params.Set("$select", "id,subject,body,bodyPreview,from,toRecipients,ccRecipients,sentDateTime")
	params.Set("$orderby", "sentDateTime desc")
	params.Set("$filter", fmt.Sprintf("sentDateTime ge %s", sinceFilter(c.now(), daysBack)))
	params.Set("$top", pageSize(max))
	return c.listMessages(ctx, c.userRoot()+"/mailFolders/SentItems/messages", params, max)
}

// ListConversation returns the messages of a conversation in
// chronological order. Graph rejects conversationId filters combined
// with server-side ordering (InefficientFilter), so sorting is local.
func (c *Client) ListConversation(ctx context.Context, conversationID string, max int) ([]Message, error) {
	if conversationID == "" {
		return nil, nil
	}
	escaped := strings.ReplaceAll(conversationID, "'", "''")
	params := url.Values{}
	params.Set("$select", "id,subject,from,toRecipients,ccRecipients,receivedDateTime,sentDateTime,bodyPreview,uniqueBody,isRead")
	params.Set("$filter", fmt.Sprintf("conversationId eq '%s'", escaped))
	params.Set("$top", pageSize(max))

	msgs, err := c.listMessages(ctx, c.userRoot()+"/messages", params, max)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return messageStamp(msgs[i]) < messageStamp(msgs[j])
	})
	return msgs, nil
}

func messageStamp(m Message) string {
	if m.ReceivedDateTime != "" {
		return m.ReceivedDateTime
	}
	return m.SentDateTime
}

// UpdateMessage patches the writable fields of a message.
func (c *Client) UpdateMessage(ctx context.Context, messageID string, patch MessagePatch) error {
	return c.do(ctx, http.MethodPatch, c.userRoot()+"/messages/"+url.PathEscape(messageID), patch, nil)
}

// CreateDraftReply creates a reply draft on a message, sets its HTML
// body and returns the draft id.
func (c *Client) CreateDraftReply(ctx context.Context, messageID, htmlBody string) (string, error) {
	var created struct {
		ID      string   `json:"id"`
		Message *Message `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, c.userRoot()+"/messages/"+url.PathEscape(messageID)+"/createReply", struct{}{}, &created)
	if err != nil {
		return "", err
	}
	draftID := created.ID
	if draftID == "" && created.Message != nil {
		draftID = created.Message.ID
	}
	if draftID == "" {
		return "", fmt.Errorf("createReply returned no draft id for message %s", messageID)
	}

	patch := struct {
		Body ItemBody `json:"body"`
	}{Body: ItemBody{ContentType: "HTML", Content: htmlBody}}
	if err := c.do(ctx, http.MethodPatch, c.userRoot()+"/messages/"+url.PathEscape(draftID), patch, nil); err != nil {
		return "", err
	}
	return draftID, nil
}

// DeleteMessage deletes a message (or draft) by id.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, c.userRoot()+"/messages/"+url.PathEscape(messageID), nil, nil)
}

// SendMail sends an HTML mail from this mailbox.
func (c *Client) SendMail(ctx context.Context, subject, htmlBody, to string) error {
	body := map[string]any{
		"message": map[string]any{
			"subject": subject,
			"body":    map[string]string{"contentType": "HTML", "content": htmlBody},
			"toRecipients": []map[string]any{
				{"emailAddress": map[string]string{"address": to}},
			},
		},
		"saveToSentItems": true,
	}
	return c.do(ctx, http.MethodPost, c.userRoot()+"/sendMail", body, nil)
}

// WaitForMessageBySubject polls the inbox until a message with the
// exact subject arrives, returning nil (not an error) on timeout.
func (c *Client) WaitForMessageBySubject(ctx context.Context, subject string, timeout, interval time.Duration) (*Message, error) {
	want := strings.TrimSpace(subject)
	deadline := c.now().Add(timeout)

	for c.now().Before(deadline) {
		msgs, err := c.ListInboxSince(ctx, 2, 200)
		if err != nil {
			return nil, err
		}
		for i := range msgs {
			if strings.TrimSpace(msgs[i].Subject) == want {
				return &msgs[i], nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, nil
}

// SendMailAndWait sends a mail (defaulting to self) and waits for it
// to land in the inbox. Used by delivery smoke checks.
func (c *Client) SendMailAndWait(ctx context.Context, subject, htmlBody, to string, timeout, interval time.Duration) (*Message, error) {
	target := to
	if target == "" {
		target = c.user
	}
	if err := c.SendMail(ctx, subject, htmlBody, target); err != nil {
		return nil, err
	}
	return c.WaitForMessageBySubject(ctx, subject, timeout, interval)
}
