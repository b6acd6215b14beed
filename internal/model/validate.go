package model

import (
	"errors"
	"net/url"
	"strings"
)

// ErrValidation is matched by every client-side validation failure.
var ErrValidation = errors.New("validation failed")

// ValidationError carries the dictionary key of the notice to show.
type ValidationError struct {
	Key string
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Key }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(key string) error { return &ValidationError{Key: key} }

// Dictionary keys for validation notices.
const (
	KeyRequiredFields  = "validation.requiredFields"
	KeyInvalidURL      = "validation.invalidUrl"
	KeyMemberSelf      = "validation.memberSelf"
	KeyMemberDuplicate = "validation.memberDuplicate"
	KeyEmptyMessage    = "validation.emptyMessage"
	KeyPasswordMatch   = "validation.passwordMismatch"
	KeyPasswordPolicy  = "validation.passwordPolicy"
	KeyReasonRequired  = "validation.reasonRequired"
	KeyEmailRequired   = "validation.emailRequired"
	KeyRoleAmbiguous   = "validation.roleAmbiguous"
	KeyNotAllowed      = "validation.notAllowed"
)

// ChatInput is the saveChatData payload.
type ChatInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MembersIDs  []string `json:"membersIds"`
}

func (c ChatInput) Validate() error {
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Description) == "" {
		return invalid(KeyRequiredFields)
	}
	return nil
}

// GroupInput is the saveGroupData payload.
type GroupInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MembersIDs  []string `json:"membersIds"`
}

func (g GroupInput) Validate() error {
	if strings.TrimSpace(g.Name) == "" || strings.TrimSpace(g.Description) == "" {
		return invalid(KeyRequiredFields)
	}
	return nil
}

// AddMember returns members with u appended. Adding the caller or a user
// already in the list fails and leaves the list as it was.
func AddMember(members []Member, u User, selfID string) ([]Member, error) {
	if selfID != "" && u.ID == selfID {
		return members, invalid(KeyMemberSelf)
	}
	for _, m := range members {
		if m.User.ID == u.ID {
			return members, invalid(KeyMemberDuplicate)
		}
	}
	out := make([]Member, 0, len(members)+1)
	out = append(out, members...)
	return append(out, Member{User: u, IsInvited: true}), nil
}

// MemberIDs returns the user ids of members in order.
func MemberIDs(members []Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.User.ID)
	}
	return ids
}

// GoalInput is the saveGoalDto payload.
type GoalInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tasks       []Task `json:"tasks"`
}

func (g GoalInput) Validate() error {
	if strings.TrimSpace(g.Name) == "" || len(g.Tasks) == 0 {
		return invalid(KeyRequiredFields)
	}
	for _, t := range g.Tasks {
		if strings.TrimSpace(t.Name) == "" {
			return invalid(KeyRequiredFields)
		}
		if t.Link != "" && !IsValidURL(t.Link) {
			return invalid(KeyInvalidURL)
		}
	}
	return nil
}

// PostInput is the savePostDto payload.
type PostInput struct {
	Title       string     `json:"title"`
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	Materials   []Material `json:"materials"`
}

func (p PostInput) Validate() error {
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Subject) == "" {
		return invalid(KeyRequiredFields)
	}
	for _, m := range p.Materials {
		if !IsValidURL(m.Link) {
			return invalid(KeyInvalidURL)
		}
	}
	return nil
}

// ValidateMessage rejects blank message content.
func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return invalid(KeyEmptyMessage)
	}
	return nil
}

// ValidateReport requires a reason.
func ValidateReport(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return invalid(KeyReasonRequired)
	}
	return nil
}

// ValidateEmail requires a non-blank address containing '@'.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return invalid(KeyEmailRequired)
	}
	return nil
}

// ValidatePassword checks the confirmation and the password policy:
// 8-12 ASCII letters and digits with at least one of each.
func ValidatePassword(password, confirm string) error {
	if password != confirm {
		return invalid(KeyPasswordMatch)
	}
	if len(password) < 8 || len(password) > 12 {
		return invalid(KeyPasswordPolicy)
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			letter = true
		default:
			return invalid(KeyPasswordPolicy)
		}
	}
	if !letter || !digit {
		return invalid(KeyPasswordPolicy)
	}
	return nil
}

// IsValidURL reports whether s parses as an absolute URL with a host.
func IsValidURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// LoginInput is the userLoginData payload.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (l LoginInput) Validate() error {
	if strings.TrimSpace(l.Email) == "" || l.Password == "" {
		return invalid(KeyRequiredFields)
	}
	return nil
}

// SignUpInput is the createUserData payload. Confirm is checked locally
// and never sent.
type SignUpInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Goal     string `json:"goal,omitempty"`
	Confirm  string `json:"-"`
}

func (s SignUpInput) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid(KeyRequiredFields)
	}
	if err := ValidateEmail(s.Email); err != nil {
		return err
	}
	return ValidatePassword(s.Password, s.Confirm)
}

// ProfileInput is the userData payload of updateMe. An empty Password
// leaves the password unchanged.
type ProfileInput struct {
	Name            string `json:"name,omitempty"`
	Goal            string `json:"goal,omitempty"`
	Password        string `json:"password,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	Confirm         string `json:"-"`
}

func (p ProfileInput) Validate() error {
	if p.Password == "" && p.Confirm == "" {
		return nil
	}
	return ValidatePassword(p.Password, p.Confirm)
}

// ReportInput is the saveReportDto payload.
type ReportInput struct {
	Entity   string `json:"entity"`
	EntityID string `json:"entityId"`
	Reason   string `json:"reason"`
	Details  string `json:"details,omitempty"`
}

func (r ReportInput) Validate() error {
	if r.Entity == "" || r.EntityID == "" {
		return invalid(KeyRequiredFields)
	}
	return ValidateReport(r.Reason)
}
