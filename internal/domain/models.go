// Package domain defines the persistence models for chatbots, their
// knowledge base, widget conversations, messages and ratings. These types
// are mapped with GORM and form the core data layer of the widget backend.
package domain

import "time"

// Provider identifiers accepted in Chatbot.AIProvider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderCustom = "custom"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Knowledge item provenance.
const (
	SourceText = "text"
	SourceURL  = "url"
	SourceFile = "file"
)

// Chatbot is a tenant-owned assistant definition. The chat pipeline only
// reads it; edits happen through the dashboard.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: owning tenant user; indexed.
//   - Name and the appearance fields are public and served to the widget.
//   - SystemPrompt, CustomEndpoint and CustomAPIKey are private and never
//     serialised.
//   - AIProvider selects the backend (openai|gemini|custom); AIModel names
//     the model variant. CustomModel overrides AIModel for custom endpoints.
//   - IsActive gates all widget traffic.
type Chatbot struct {
	ID     string `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID string `json:"user_id" gorm:"type:varchar(64);not null;index:idx_user_chatbots"`
	Name   string `json:"name"    gorm:"type:varchar(255);not null"`

	PrimaryColor   string  `json:"primary_color"   gorm:"type:varchar(16);not null;default:'#2563eb'"`
	TextColor      string  `json:"text_color"      gorm:"type:varchar(16);not null;default:'#ffffff'"`
	Position       string  `json:"position"        gorm:"column:widget_position;type:varchar(16);not null;default:'bottom-right';check:widget_position IN ('bottom-right','bottom-left')"`
	WelcomeMessage string  `json:"welcome_message" gorm:"type:text"`
	Placeholder    string  `json:"placeholder"     gorm:"type:varchar(255)"`
	AvatarURL      *string `json:"avatar_url,omitempty"`

	SystemPrompt   string  `json:"-" gorm:"type:text"`
	AIProvider     string  `json:"ai_provider" gorm:"column:ai_provider;type:varchar(16);not null;default:'openai';check:ai_provider IN ('openai','gemini','custom')"`
	AIModel        string  `json:"ai_model"    gorm:"column:ai_model;type:varchar(128);not null"`
	CustomEndpoint *string `json:"-"`
	CustomAPIKey   *string `json:"-" gorm:"column:custom_api_key"`
	CustomModel    *string `json:"-"`
	Temperature    float64 `json:"temperature" gorm:"not null"`
	MaxTokens      int     `json:"max_tokens"  gorm:"not null;default:1024"`
	IsActive       bool    `json:"is_active"   gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Chatbot.
func (Chatbot) TableName() string { return "chatbots" }

// ModelFor returns the model identifier to request from the provider.
func (c *Chatbot) ModelFor() string {
	if c.AIProvider == ProviderCustom && c.CustomModel != nil && *c.CustomModel != "" {
		return *c.CustomModel
	}
	return c.AIModel
}

// KnowledgeItem is a text snippet injected into the system prompt. Items are
// immutable once created; they disappear with their chatbot.
type KnowledgeItem struct {
	ID         uint      `json:"id"          gorm:"primaryKey;autoIncrement"`
	ChatbotID  *string   `json:"chatbot_id"  gorm:"type:char(36);index:idx_chatbot_knowledge"`
	Title      string    `json:"title"       gorm:"type:varchar(255);not null"`
	Content    string    `json:"content"     gorm:"type:text;not null"`
	SourceType string    `json:"source_type" gorm:"type:varchar(8);not null;default:'text';check:source_type IN ('text','url','file')"`
	SourceURL  *string   `json:"source_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	Chatbot *Chatbot `json:"-" gorm:"foreignKey:ChatbotID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for KnowledgeItem.
func (KnowledgeItem) TableName() string { return "knowledge_items" }

// Conversation is one end-visitor session with a chatbot. The unique index
// guarantees at most one row per (chatbot_id, session_id).
type Conversation struct {
	ID        uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	ChatbotID string    `json:"chatbot_id" gorm:"type:char(36);not null;uniqueIndex:ux_conversation_session,priority:1"`
	SessionID string    `json:"session_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_conversation_session,priority:2"`
	CreatedAt time.Time `json:"created_at"`

	Chatbot Chatbot `json:"-" gorm:"foreignKey:ChatbotID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single append-only utterance. Transcript order is ascending ID.
// ResponseTimeMs is set on assistant messages only.
type Message struct {
	ID             uint      `json:"id"              gorm:"primaryKey;autoIncrement"`
	ConversationID uint      `json:"conversation_id" gorm:"not null;index:idx_conversation_msgs"`
	Role           string    `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	ResponseTimeMs *int64    `json:"response_time_ms,omitempty"`
	CreatedAt      time.Time `json:"created_at"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Rating is the optional one-per-conversation visitor score (1..5).
type Rating struct {
	ID             uint      `json:"id"              gorm:"primaryKey;autoIncrement"`
	ConversationID uint      `json:"conversation_id" gorm:"not null;uniqueIndex:ux_rating_conversation"`
	Rating         int       `json:"rating"          gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Feedback       *string   `json:"feedback,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Rating.
func (Rating) TableName() string { return "ratings" }
