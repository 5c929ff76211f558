package model

type IntegrationProvider string

const (
	ProviderWhatsApp IntegrationProvider = "whatsapp"
	ProviderEmail    IntegrationProvider = "email"
)

func (p IntegrationProvider) Valid() bool {
	return p == ProviderWhatsApp || p == ProviderEmail
}

type IntegrationStatus string

const (
	IntegrationDisconnected IntegrationStatus = "disconnected"
	IntegrationConnected    IntegrationStatus = "connected"
	IntegrationError        IntegrationStatus = "error"
)

type ConversationStatus string

const (
	ConversationOpen      ConversationStatus = "open"
	ConversationCompleted ConversationStatus = "completed"
)

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)
