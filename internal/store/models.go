package store

import "time"

const (
	PlanFree = "free"
	PlanPro  = "pro"

	RoleUser = "user"
	RoleAI   = "ai"

	GroupRoleOwner  = "OWNER"
	GroupRoleMember = "MEMBER"
)

type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	FullName           string     `json:"full_name"`
	PasswordHash       string     `json:"-"` // Do not expose this in JSON responses
	PlanType           string     `json:"plan_type"`
	Credits            int        `json:"credits"`
	DailyRequestsCount int        `json:"daily_requests_count"`
	LastRequestDate    string     `json:"last_request_date,omitempty"` // UTC calendar date, YYYY-MM-DD
	ProExpiresAt       *time.Time `json:"pro_expires_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SecretHash string    `json:"-"`
	ClientMeta string    `json:"client_meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type Bot struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
}

type Group struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type GroupMember struct {
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// GroupSummary is a group as seen by one of its members.
type GroupSummary struct {
	Group
	MemberCount int     `json:"member_count"`
	BotID       *string `json:"bot_id"`
	BotName     *string `json:"bot_name"`
}

type MemberProfile struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// KnowledgeEntry points at an uploaded document. A nil BotID marks general knowledge.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BotID     *string   `json:"bot_id"`
	Filename  string    `json:"filename"`
	Location  string    `json:"-"`
	FileSize  string    `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
}

type KnowledgeWithUploader struct {
	KnowledgeEntry
	UploaderEmail string `json:"uploader_email"`
	UploaderName  string `json:"uploader_name"`
}

// Message is one turn of a conversation. A nil BotID means the general assistant.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BotID     *string   `json:"bot_id"`
	Role      string    `json:"role"` // "user" or "ai"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
