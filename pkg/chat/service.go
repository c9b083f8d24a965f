package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	geminimodel "google.golang.org/adk/model/gemini"
)

const (
	appName   = "deep-research"
	agentName = "evidence_analyst"
	// Single user for now.
	defaultUserID = "user"
)

// Service answers follow-up questions about archived research evidence
// through an ADK agent with the evidence toolset.
type Service struct {
	config *config.Config
	DB     *database.PostgresDB
	Client *genai.Client
	Agent  agent.Agent
}

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// StreamEvent represents a single event in the chat stream
type StreamEvent struct {
	Type    string      `json:"type"` // "content", "tool_call", "tool_result", "error", "done"
	Payload interface{} `json:"payload"`
}

const agentInstruction = "You are a helpful research assistant. Use the available tools to look up archived research evidence and answer the user's questions based on it. ALWAYS use the search_evidence tool first. Group your answer by source, with an unordered list of content pieces supporting the question. The format is: # Source: <source>, \n\n - <content>\n - <content>\n - <content>...."

func NewService(ctx context.Context, db *database.PostgresDB, cfg *config.Config, tools *EvidenceToolset) (*Service, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.GoogleApiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	modelClient, err := geminimodel.NewModel(ctx, cfg.ReasoningModel, &genai.ClientConfig{
		APIKey: cfg.GoogleApiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	evidenceAgent, err := llmagent.New(llmagent.Config{
		Name:        agentName,
		Model:       modelClient,
		Description: "A research assistant with access to the archived evidence of past research runs.",
		Instruction: agentInstruction,
		Toolsets:    []tool.Toolset{tools},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return &Service{
		config: cfg,
		DB:     db,
		Client: client,
		Agent:  evidenceAgent,
	}, nil
}

func (s *Service) CreateConversation(ctx context.Context) (*Conversation, error) {
	conv := &Conversation{}
	err := s.DB.Pool.QueryRow(ctx,
		`INSERT INTO conversations (id) VALUES ($1) RETURNING id, title, created_at, updated_at`,
		uuid.New()).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.DB.Pool.Query(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (s *Service) GetHistory(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	rows, err := s.DB.Pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SendMessage persists the user message and returns an iterator that streams
// the agent's reply. The model message is persisted when the stream ends.
func (s *Service) SendMessage(ctx context.Context, conversationID uuid.UUID, content string) (iter.Seq2[StreamEvent, error], error) {
	userMsgID := uuid.New()
	_, err := s.DB.Pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content) VALUES ($1, $2, 'user', $3)`,
		userMsgID, conversationID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	history, err := s.GetHistory(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	sessionSvc, err := s.hydrateSession(ctx, conversationID, history, userMsgID)
	if err != nil {
		return nil, err
	}

	chatRunner, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          s.Agent,
		SessionService: sessionSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	userContent := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: content}},
	}

	return func(yield func(StreamEvent, error) bool) {
		slog.Info("Starting agent run", "conversation_id", conversationID)

		next := chatRunner.Run(ctx, defaultUserID, conversationID.String(), userContent,
			agent.RunConfig{StreamingMode: agent.StreamingModeSSE})

		reply, done := s.streamReply(next, yield)
		if !done {
			return
		}

		s.persistReply(ctx, conversationID, reply)
		yield(StreamEvent{Type: "done", Payload: "done"}, nil)

		// First exchange: derive a conversation title in the background.
		if len(history) <= 2 {
			go s.generateTitle(conversationID, content, reply)
		}
	}, nil
}

// hydrateSession builds an in-memory ADK session seeded with the stored
// conversation history, minus the message just saved.
func (s *Service) hydrateSession(ctx context.Context, conversationID uuid.UUID, history []Message, currentMsgID uuid.UUID) (session.Service, error) {
	sessionSvc := session.InMemoryService()

	createRes, err := sessionSvc.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    defaultUserID,
		SessionID: conversationID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	for _, msg := range history {
		if msg.ID == currentMsgID {
			continue
		}

		role, author := "user", "user"
		if msg.Role == "model" {
			role, author = "model", agentName
		}

		evt := session.NewEvent(uuid.NewString())
		evt.Author = author
		evt.LLMResponse = model.LLMResponse{
			Content: &genai.Content{
				Role:  role,
				Parts: []*genai.Part{{Text: msg.Content}},
			},
		}
		sessionSvc.AppendEvent(ctx, createRes.Session, evt)
	}

	return sessionSvc, nil
}

// streamReply forwards agent events to yield and accumulates the text reply.
// It reports false when the consumer stopped early or the runner failed.
func (s *Service) streamReply(next iter.Seq2[*session.Event, error], yield func(StreamEvent, error) bool) (string, bool) {
	var reply string

	for event, err := range next {
		if err != nil {
			slog.Error("Agent runner error", "error", err)
			yield(StreamEvent{Type: "error", Payload: err.Error()}, err)
			return reply, false
		}

		if event.LLMResponse.Content == nil {
			continue
		}
		for _, part := range event.LLMResponse.Content.Parts {
			if part.Text != "" {
				reply += part.Text
				if !yield(StreamEvent{Type: "content", Payload: part.Text}, nil) {
					return reply, false
				}
			}
			if part.FunctionCall != nil {
				slog.Info("Agent tool call", "tool", part.FunctionCall.Name)
				if !yield(StreamEvent{Type: "tool_call", Payload: part.FunctionCall}, nil) {
					return reply, false
				}
			}
			if part.FunctionResponse != nil {
				slog.Info("Agent tool result", "tool", part.FunctionResponse.Name)
				if !yield(StreamEvent{Type: "tool_result", Payload: part.FunctionResponse}, nil) {
					return reply, false
				}
			}
		}
	}

	slog.Info("Agent run completed")
	return reply, true
}

func (s *Service) persistReply(ctx context.Context, conversationID uuid.UUID, reply string) {
	_, err := s.DB.Pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content) VALUES ($1, $2, 'model', $3)`,
		uuid.New(), conversationID, reply)
	if err != nil {
		slog.Error("Failed to save model message", "error", err)
		return
	}
	_, _ = s.DB.Pool.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID)
}

func (s *Service) generateTitle(convID uuid.UUID, userMsg, modelMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prompt := fmt.Sprintf("Generate a short, concise title (max 5 words) for this chat conversation:\nUser: %s\nModel: %s", userMsg, modelMsg)

	resp, err := s.Client.Models.GenerateContent(ctx, s.config.FastModel, []*genai.Content{
		{Parts: []*genai.Part{{Text: prompt}}},
	}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title": {Type: genai.TypeString},
			},
			Required: []string{"title"},
		},
	})
	if err != nil || len(resp.Candidates) == 0 {
		slog.Error("Failed to generate conversation title", "error", err)
		return
	}

	rawJSON := ""
	for _, p := range resp.Candidates[0].Content.Parts {
		rawJSON += p.Text
	}

	var respData struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(rawJSON), &respData); err != nil {
		slog.Error("Failed to unmarshal title generation response", "error", err, "raw_json", rawJSON)
		return
	}

	if respData.Title != "" {
		if _, err := s.DB.Pool.Exec(ctx, `UPDATE conversations SET title = $2, updated_at = NOW() WHERE id = $1`, convID, respData.Title); err != nil {
			slog.Error("Failed to update conversation title", "error", err)
		}
	}
}
