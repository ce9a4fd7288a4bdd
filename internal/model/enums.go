package model

// ConversationMode selects which chat pipeline a conversation runs through.
type ConversationMode string

const (
	ModeChat  ConversationMode = "chat"
	ModeTool  ConversationMode = "tool"
	ModeAgent ConversationMode = "agent"
)

// Role is the author of a message within a conversation.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
	RoleSystem    Role = "SYSTEM"
	RoleTool      Role = "TOOL"
)

// DeviceGrantStatus tracks a pending device authorization on the server.
type DeviceGrantStatus string

const (
	GrantStatusPending  DeviceGrantStatus = "pending"
	GrantStatusApproved DeviceGrantStatus = "approved"
	GrantStatusDenied   DeviceGrantStatus = "denied"
)
