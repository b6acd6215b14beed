// Package model defines the entities exchanged with the Glasser Study API.
//
// Every entity that can live inside a cached list implements EntityID so the
// cache patch helpers can locate it. Field names follow the GraphQL schema.
package model

import "time"

// User is a backend user as returned by me, user(email) and nested selections.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	Email           string `json:"email,omitempty"`
	Goal            string `json:"goal,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

func (u User) EntityID() string { return u.ID }

// Member is a user's membership in a chat or group.
type Member struct {
	User        User `json:"user"`
	IsInvited   bool `json:"isInvited"`
	IsModerator bool `json:"isModerator"`
}

func (m Member) EntityID() string { return m.User.ID }

// Chat is a conversation as listed by myChats.
type Chat struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsModerator bool     `json:"isModerator"`
	IsInvited   bool     `json:"isInvited"`
	HasRead     bool     `json:"hasRead"`
	Members     []Member `json:"members"`
}

func (c Chat) EntityID() string { return c.ID }

// Role returns the caller's role in the chat.
func (c Chat) Role() Role { return RoleOf(c.IsModerator, c.IsInvited) }

// Message is a single chat message.
type Message struct {
	ID            string    `json:"id"`
	Content       string    `json:"content"`
	IsCurrentUser bool      `json:"isCurrentUser"`
	Sender        User      `json:"sender"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (m Message) EntityID() string { return m.ID }

// Deleted is the payload of removal mutations that echo the removed id.
type Deleted struct {
	ID string `json:"id"`
}

// Task is one step of a goal. Tasks have no id of their own; they are
// addressed by their index inside Goal.Tasks.
type Task struct {
	Name      string `json:"name"`
	Link      string `json:"link,omitempty"`
	Completed bool   `json:"completed"`
}

// Goal is a study goal owned by the current user.
type Goal struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tasks       []Task `json:"tasks"`
}

func (g Goal) EntityID() string { return g.ID }

// Progress returns the completed share of tasks as a rounded percentage.
func (g Goal) Progress() int {
	if len(g.Tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range g.Tasks {
		if t.Completed {
			done++
		}
	}
	return (done*100 + len(g.Tasks)/2) / len(g.Tasks)
}

// TaskToggle is the result of toggleTask.
type TaskToggle struct {
	GoalID    string `json:"goalId"`
	TaskID    int    `json:"taskId"`
	Completed bool   `json:"completed"`
}

// Material is a resource attached to a post.
type Material struct {
	Name string `json:"name"`
	Link string `json:"link"`
	Type string `json:"type"`
}

// Post is a shared study post.
type Post struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Subject       string     `json:"subject"`
	Description   string     `json:"description"`
	Tags          []string   `json:"tags"`
	Materials     []Material `json:"materials"`
	Author        User       `json:"author"`
	IsAuthor      bool       `json:"isAuthor"`
	LikesCount    int        `json:"likesCount"`
	CommentsCount int        `json:"commentsCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (p Post) EntityID() string { return p.ID }

// Comment is a comment on a post.
type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    User      `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c Comment) EntityID() string { return c.ID }

// Group is a study group.
type Group struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []Member `json:"members"`
}

func (g Group) EntityID() string { return g.ID }

// NotificationType classifies a notification for display.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
	NotificationSuccess NotificationType = "success"
)

// Notification is an entry of the current user's notification feed.
type Notification struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	Timestamp time.Time        `json:"timestamp"`
}

func (n Notification) EntityID() string { return n.ID }

// PresignedURL is the result of getPresignedUrl.
type PresignedURL struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
}

// Session is the payload of login.
type Session struct {
	Token string `json:"token"`
}
