package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Collections names the backend collections the system uses.
type Collections struct {
	Documents     string
	Chats         string
	Conversations string
	Folders       string
}

// DefaultCollections returns the standard collection names.
func DefaultCollections() Collections {
	return Collections{
		Documents:     "documents",
		Chats:         "chats",
		Conversations: "conversations",
		Folders:       "folders",
	}
}

// Conversation and folder records are not semantic: every point in their
// collections carries the same placeholder vector, so similarity search is
// meaningless there and only id lookup and scans are used. The smallest
// vector Qdrant accepts under cosine distance is a single non-zero
// component.
const metaDimension = 1

func dummyVector() []float64 { return []float64{1} }

// Conversations manages conversation and folder metadata plus the chat
// log, all stored as vector points.
type Conversations struct {
	store vectorstore.Store
	cols  Collections
	log   *slog.Logger
	now   func() time.Time
}

// NewConversations creates the manager.
func NewConversations(store vectorstore.Store, cols Collections, log *slog.Logger) *Conversations {
	if log == nil {
		log = slog.Default()
	}
	return &Conversations{store: store, cols: cols, log: log, now: time.Now}
}

// CreateConversation writes a new conversation record. The id may be
// provided by the caller (the answer pipeline mints one) or left empty.
func (c *Conversations) CreateConversation(ctx context.Context, id, title, folderID string) (domain.Conversation, error) {
	if id == "" {
		id = uuid.NewString()
	}
	conv := domain.Conversation{ID: id, Title: title, FolderID: folderID, UpdatedAt: c.now().UTC()}
	if err := c.putConversation(ctx, conv); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// UpdateConversation replaces the whole record. Callers patching a single
// field must read the current record first; there is no partial update.
func (c *Conversations) UpdateConversation(ctx context.Context, conv domain.Conversation) error {
	conv.UpdatedAt = c.now().UTC()
	return c.putConversation(ctx, conv)
}

func (c *Conversations) putConversation(ctx context.Context, conv domain.Conversation) error {
	if err := c.store.EnsureCollection(ctx, c.cols.Conversations, metaDimension); err != nil {
		return fmt.Errorf("ensure conversations collection: %w", err)
	}
	return c.store.Upsert(ctx, c.cols.Conversations, []vectorstore.Point{{
		ID:     conv.ID,
		Vector: dummyVector(),
		Payload: map[string]any{
			"title":      conv.Title,
			"folder_id":  conv.FolderID,
			"updated_at": conv.UpdatedAt.Format(time.RFC3339Nano),
		},
	}})
}

// GetConversation fetches one record; (zero, ErrNotFound) when absent.
func (c *Conversations) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	rec, err := c.store.GetByID(ctx, c.cols.Conversations, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if rec == nil {
		return domain.Conversation{}, domain.ErrNotFound
	}
	return conversationFromRecord(*rec), nil
}

// ListConversations returns up to limit conversations, most recently
// updated first. The sort happens client-side over one fetched page, so
// ordering beyond that page is not guaranteed.
func (c *Conversations) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	recs, err := c.store.Scroll(ctx, c.cols.Conversations, nil, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, conversationFromRecord(rec))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// DeleteConversation removes the metadata record and cascades over the
// conversation's messages. The two deletes hit different collections with
// no shared transaction: when the cascade fails after the metadata delete
// succeeded, the orphaned messages are reported as a PartialDeleteError
// rather than silently kept.
func (c *Conversations) DeleteConversation(ctx context.Context, id string) error {
	if err := c.store.DeleteByID(ctx, c.cols.Conversations, id); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	filter := &vectorstore.Filter{Key: "conversation_id", Value: id}
	if err := c.store.DeleteByFilter(ctx, c.cols.Chats, filter); err != nil {
		c.log.Error("message cascade failed, orphaned messages remain",
			"conversation_id", id, "err", err)
		return &domain.PartialDeleteError{ConversationID: id, Err: err}
	}
	return nil
}

// ClearHistory wipes every conversation and every chat message by
// dropping both collections; they are recreated on next use. Folders are
// kept: they group future conversations just as well.
func (c *Conversations) ClearHistory(ctx context.Context) error {
	if err := c.store.DropCollection(ctx, c.cols.Chats); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}
	if err := c.store.DropCollection(ctx, c.cols.Conversations); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	c.log.Info("chat history cleared")
	return nil
}

// CreateFolder writes a new folder record.
func (c *Conversations) CreateFolder(ctx context.Context, name string) (domain.Folder, error) {
	if err := c.store.EnsureCollection(ctx, c.cols.Folders, metaDimension); err != nil {
		return domain.Folder{}, fmt.Errorf("ensure folders collection: %w", err)
	}
	folder := domain.Folder{ID: uuid.NewString(), Name: name, CreatedAt: c.now().UTC()}
	err := c.store.Upsert(ctx, c.cols.Folders, []vectorstore.Point{{
		ID:     folder.ID,
		Vector: dummyVector(),
		Payload: map[string]any{
			"name":       folder.Name,
			"created_at": folder.CreatedAt.Format(time.RFC3339Nano),
		},
	}})
	if err != nil {
		return domain.Folder{}, err
	}
	return folder, nil
}

// ListFolders returns up to limit folders in creation order (client-side
// sort over one page, as with conversations).
func (c *Conversations) ListFolders(ctx context.Context, limit int) ([]domain.Folder, error) {
	recs, err := c.store.Scroll(ctx, c.cols.Folders, nil, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Folder, 0, len(recs))
	for _, rec := range recs {
		out = append(out, domain.Folder{
			ID:        rec.ID,
			Name:      payloadString(rec.Payload, "name"),
			CreatedAt: payloadTime(rec.Payload, "created_at"),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteFolder removes the folder and clears the folder_id of every
// conversation that referenced it, so no dangling references survive.
func (c *Conversations) DeleteFolder(ctx context.Context, id string) error {
	filter := &vectorstore.Filter{Key: "folder_id", Value: id}
	recs, err := c.store.Scroll(ctx, c.cols.Conversations, filter, scrollPageLimit)
	if err != nil {
		return fmt.Errorf("list conversations in folder %s: %w", id, err)
	}
	for _, rec := range recs {
		conv := conversationFromRecord(rec)
		conv.FolderID = ""
		if err := c.putConversation(ctx, conv); err != nil {
			return fmt.Errorf("clear folder reference on conversation %s: %w", conv.ID, err)
		}
	}
	if err := c.store.DeleteByID(ctx, c.cols.Folders, id); err != nil {
		return fmt.Errorf("delete folder %s: %w", id, err)
	}
	return nil
}

// scrollPageLimit bounds every linear scan against the backend.
const scrollPageLimit = 1000

// AppendMessage stores one chat turn keyed by the query embedding.
func (c *Conversations) AppendMessage(ctx context.Context, msg domain.ChatMessage, vector []float64) error {
	if err := c.store.EnsureCollection(ctx, c.cols.Chats, len(vector)); err != nil {
		return fmt.Errorf("ensure chats collection: %w", err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return c.store.Upsert(ctx, c.cols.Chats, []vectorstore.Point{{
		ID:     msg.ID,
		Vector: vector,
		Payload: map[string]any{
			"conversation_id": msg.ConversationID,
			"query":           msg.Query,
			"response":        msg.Response,
			"timestamp":       msg.Timestamp.Format(time.RFC3339Nano),
		},
	}})
}

// History returns a conversation's messages in ascending timestamp order.
// A missing conversation yields an empty history.
func (c *Conversations) History(ctx context.Context, conversationID string, limit int) ([]domain.ChatMessage, error) {
	filter := &vectorstore.Filter{Key: "conversation_id", Value: conversationID}
	recs, err := c.store.Scroll(ctx, c.cols.Chats, filter, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, 0, len(recs))
	for _, rec := range recs {
		out = append(out, domain.ChatMessage{
			ID:             rec.ID,
			ConversationID: payloadString(rec.Payload, "conversation_id"),
			Query:          payloadString(rec.Payload, "query"),
			Response:       payloadString(rec.Payload, "response"),
			Timestamp:      payloadTime(rec.Payload, "timestamp"),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func conversationFromRecord(rec vectorstore.Record) domain.Conversation {
	return domain.Conversation{
		ID:        rec.ID,
		Title:     payloadString(rec.Payload, "title"),
		FolderID:  payloadString(rec.Payload, "folder_id"),
		UpdatedAt: payloadTime(rec.Payload, "updated_at"),
	}
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func payloadTime(payload map[string]any, key string) time.Time {
	s := payloadString(payload, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
