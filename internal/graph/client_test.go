package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.Client(), "dev@example.com").WithBaseURL(srv.URL)
	c.now = func() time.Time {
		return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	}
	return c
}

func TestListInboxUnprocessedFollowsPagination(t *testing.T) {
	var gotFilter string
	mux := http.NewServeMux()
	mux.HandleFunc("/users/dev@example.com/mailFolders/Inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("$filter")
		var next string
		// Echo an absolute nextLink back to ourselves once.
		if r.URL.Query().Get("page") != "2" {
			next = "http://" + r.Host + r.URL.Path + "?page=2"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value":           []Message{{ID: "m-" + r.URL.Query().Get("page")}},
			"@odata.nextLink": next,
		})
	})

	c := testClient(t, mux)
	msgs, err := c.ListInboxUnprocessed(context.Background(), 3, 10)
	require.NoError(t, err)

	assert.Len(t, msgs, 2)
	assert.Contains(t, gotFilter, "receivedDateTime ge 2026-08-25T12:00:00Z")
	assert.Contains(t, gotFilter, "not(categories/any(c:c eq 'Processed'))")
}

func TestListMessagesHonorsMax(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/dev@example.com/mailFolders/Inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		var value []Message
		for i := 0; i < 50; i++ {
			value = append(value, Message{ID: fmt.Sprintf("m%d", i)})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value":           value,
			"@odata.nextLink": "http://" + r.Host + r.URL.Path,
		})
	})

	c := testClient(t, mux)
	msgs, err := c.ListInboxSince(context.Background(), 3, 75)
	require.NoError(t, err)
	assert.Len(t, msgs, 75, "pagination stops at the requested cap")
}

func TestListConversationSortsLocally(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/dev@example.com/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("$filter"), "conversationId eq 'conv''1'")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []Message{
				{ID: "b", ReceivedDateTime: "2026-08-27T10:00:00Z"},
				{ID: "a", ReceivedDateTime: "2026-08-26T10:00:00Z"},
				{ID: "c", SentDateTime: "2026-08-28T10:00:00Z"},
			},
		})
	})

	c := testClient(t, mux)
	msgs, err := c.ListConversation(context.Background(), "conv'1", 10)
	require.NoError(t, err)

	ids := []string{msgs[0].ID, msgs[1].ID, msgs[2].ID}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestListConversationEmptyID(t *testing.T) {
	c := testClient(t, http.NewServeMux())
	msgs, err := c.ListConversation(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Nil(t, msgs)
}

func TestUpdateMessageOmitsUnsetFields(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/users/dev@example.com/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	})

	c := testClient(t, mux)
	isRead := false
	err := c.UpdateMessage(context.Background(), "m1", MessagePatch{
		Categories: []string{"Processed"},
		IsRead:     &isRead,
	})
	require.NoError(t, err)

	assert.Equal(t, false, body["isRead"], "explicit false must survive marshalling")
	_, hasFlag := body["flag"]
	assert.False(t, hasFlag)
	_, hasImportance := body["importance"]
	assert.False(t, hasImportance)
}

func TestCreateDraftReply(t *testing.T) {
	var patched map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/users/dev@example.com/messages/m1/createReply", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "draft-9"})
	})
	mux.HandleFunc("/users/dev@example.com/messages/draft-9", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patched))
	})

	c := testClient(t, mux)
	id, err := c.CreateDraftReply(context.Background(), "m1", "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, "draft-9", id)

	bodyField := patched["body"].(map[string]any)
	assert.Equal(t, "HTML", bodyField["contentType"])
	assert.Equal(t, "<p>hi</p>", bodyField["content"])
}

func TestAPIErrorSurfacesStatusAndBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/dev@example.com/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"InefficientFilter"}}`))
	})

	c := testClient(t, mux)
	err := c.UpdateMessage(context.Background(), "m1", MessagePatch{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "InefficientFilter")
}

func TestWaitForMessageBySubjectTimesOutNil(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/dev@example.com/mailFolders/Inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []Message{}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := NewClient(srv.Client(), "dev@example.com").WithBaseURL(srv.URL)

	// Real clock with a tiny window: one poll, then timeout.
	msg, err := c.WaitForMessageBySubject(context.Background(), "ping", 30*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestSendMailAndWaitFindsDeliveredMessage(t *testing.T) {
	var sent map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/users/dev@example.com/sendMail", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/users/dev@example.com/mailFolders/Inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []Message{{ID: "d1", Subject: "digest"}}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := NewClient(srv.Client(), "dev@example.com").WithBaseURL(srv.URL)

	msg, err := c.SendMailAndWait(context.Background(), "digest", "<p>hi</p>", "", time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "d1", msg.ID)

	// Empty "to" falls back to the mailbox owner.
	message := sent["message"].(map[string]any)
	recipients := message["toRecipients"].([]any)
	require.Len(t, recipients, 1)
	addr := recipients[0].(map[string]any)["emailAddress"].(map[string]any)["address"]
	assert.Equal(t, "dev@example.com", addr)
}
