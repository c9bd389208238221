package domain

import "time"

// Chunk is a contiguous, possibly overlapping piece of a source document
// sized for embedding.
type Chunk struct {
	ID     string
	Text   string
	Source string
}

// ChatMessage is one stored turn of a conversation: the user query, the
// synthesized response and the query embedding it was answered against.
type ChatMessage struct {
	ID             string
	ConversationID string
	Query          string
	Response       string
	Timestamp      time.Time
}

// Conversation is a metadata record grouping chat messages. FolderID is a
// soft reference; the store enforces no integrity between the two.
type Conversation struct {
	ID        string
	Title     string
	FolderID  string
	UpdatedAt time.Time
}

// Folder groups conversations.
type Folder struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Answer is the result of one retrieval-and-generation round.
type Answer struct {
	ConversationID  string
	Answer          string
	RetrievedCount  int
	Contexts        []string
	NewConversation bool
}
