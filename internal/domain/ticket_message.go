package domain

import "time"

// Role identifies who a participant is.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleManager  Role = "manager"
)

// Staff reports whether the role belongs to the support team.
func (r Role) Staff() bool {
	return r == RoleAgent || r == RoleManager
}

// Message captures a reply or internal note in a ticket thread.
// Only ReadAt may change after creation.
type Message struct {
	ID             string
	TicketID       string
	SenderID       string
	SenderName     string
	SenderRole     Role
	Content        string
	IsInternalNote bool
	Attachments    []string
	CreatedAt      time.Time
	ReadAt         *time.Time
}

// VisibleTo reports whether the message may be shown to a participant with role.
func (m *Message) VisibleTo(role Role) bool {
	if m.IsInternalNote {
		return role.Staff()
	}
	return true
}
