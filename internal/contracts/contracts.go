package contracts

import "time"

// Event sources recognized by the merger.
const (
	SourceGoogle   = "google"
	SourceInternal = "internal"
)

// Calendar event types.
const (
	EventMeeting  = "meeting"
	EventTask     = "task"
	EventDeadline = "deadline"
	EventReminder = "reminder"
)

// CalendarEvent is a single already-expanded event instance as delivered by
// either source. Instances sharing a non-empty GoogleEventID are the same
// logical event regardless of which source delivered them.
type CalendarEvent struct {
	ID               string    `json:"id"`
	GoogleEventID    string    `json:"google_event_id,omitempty"`
	Title            string    `json:"title"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Type             string    `json:"type"`
	RecurringEventID string    `json:"recurring_event_id,omitempty"`
	HTMLLink         string    `json:"html_link,omitempty"`
	Source           string    `json:"source"`
}

// Task priorities.
const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
)

// Task statuses.
const (
	StatusTodo       = "Todo"
	StatusInProgress = "In Progress"
	StatusReview     = "Review"
	StatusDone       = "Done"
)

// Task is the unit the correlator joins against calendar cells. DueDate is a
// YYYY-MM-DD key; empty or "ongoing" (any casing) means no deadline.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	DueDate     string     `json:"due_date,omitempty"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	AssigneeID  string     `json:"assignee_id"`
	ProjectID   string     `json:"project_id,omitempty"`
	Category    string     `json:"category,omitempty"`
	Description string     `json:"description,omitempty"`
	Notes       []TaskNote `json:"notes,omitempty"`
	Archived    bool       `json:"archived"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskNote is append-only and embedded in its task. Mutations always replace
// the task's whole notes array, never a single element.
type TaskNote struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	UserName      string    `json:"user_name"`
	Text          string    `json:"text"`
	ImageURL      string    `json:"image_url,omitempty"`
	ImageName     string    `json:"image_name,omitempty"`
	ImageMimeType string    `json:"image_mime_type,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TaskFields is a partial update. Nil fields are left untouched; Notes, when
// set, replaces the stored array wholesale.
type TaskFields struct {
	Title       *string     `json:"title,omitempty"`
	DueDate     *string     `json:"due_date,omitempty"`
	Priority    *string     `json:"priority,omitempty"`
	Status      *string     `json:"status,omitempty"`
	AssigneeID  *string     `json:"assignee_id,omitempty"`
	ProjectID   *string     `json:"project_id,omitempty"`
	Category    *string     `json:"category,omitempty"`
	Description *string     `json:"description,omitempty"`
	Notes       *[]TaskNote `json:"notes,omitempty"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
}

// Directory roles.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User is a directory entry used for mention resolution, assignee selection
// and the admin gate on note deletion.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// IsAdmin reports whether the user holds the elevated directory role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Project is used only for the linked-project label and selector.
type Project struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

// Notification types.
const (
	NotificationMention = "mention"
)

// Notification is the fire-and-forget payload published by the dispatcher
// and drained by notify-sink.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"`
}
