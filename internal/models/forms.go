package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QuestionType is the kind of input a question collects.
type QuestionType string

// Question types.
const (
	QuestionTypeShortText    QuestionType = "short-text"
	QuestionTypeEmail        QuestionType = "email"
	QuestionTypeNumber       QuestionType = "number"
	QuestionTypeLongText     QuestionType = "long-text"
	QuestionTypeSingleChoice QuestionType = "single-choice"
	QuestionTypeMultiChoice  QuestionType = "multi-choice"
)

// questionTypeAliases maps names written by older editor builds to the canonical type.
var questionTypeAliases = map[string]QuestionType{
	"text":            QuestionTypeShortText,
	"textarea":        QuestionTypeLongText,
	"multiple-choice": QuestionTypeSingleChoice,
	"checkbox":        QuestionTypeMultiChoice,
}

// ValidQuestionTypes lists the canonical question types.
func ValidQuestionTypes() []QuestionType {
	return []QuestionType{
		QuestionTypeShortText,
		QuestionTypeEmail,
		QuestionTypeNumber,
		QuestionTypeLongText,
		QuestionTypeSingleChoice,
		QuestionTypeMultiChoice,
	}
}

// ParseQuestionType returns the canonical type for s, accepting legacy aliases.
func ParseQuestionType(s string) (QuestionType, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if alias, ok := questionTypeAliases[s]; ok {
		return alias, nil
	}

	qt := QuestionType(s)
	if !qt.IsValid() {
		return "", fmt.Errorf("invalid question type: %q", s)
	}

	return qt, nil
}

// IsValid reports whether t is a canonical question type.
func (t QuestionType) IsValid() bool {
	switch t {
	case QuestionTypeShortText, QuestionTypeEmail, QuestionTypeNumber,
		QuestionTypeLongText, QuestionTypeSingleChoice, QuestionTypeMultiChoice:
		return true
	default:
		return false
	}
}

// HasOptions reports whether questions of this type carry a list of options.
func (t QuestionType) HasOptions() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultiChoice
}

// TakesList reports whether answers to questions of this type are lists of selections.
func (t QuestionType) TakesList() bool {
	return t == QuestionTypeMultiChoice
}

// NotificationDestination selects where new-response notifications go.
type NotificationDestination string

// Notification destinations.
const (
	NotifyNone    NotificationDestination = "none"
	NotifyEmail   NotificationDestination = "email"
	NotifyWebhook NotificationDestination = "webhook"
)

// ParseNotificationDestination canonicalizes s. Empty means none; "discord" is a legacy name for webhook.
func ParseNotificationDestination(s string) (NotificationDestination, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(NotifyNone):
		return NotifyNone, nil
	case string(NotifyEmail):
		return NotifyEmail, nil
	case string(NotifyWebhook), "discord":
		return NotifyWebhook, nil
	default:
		return "", fmt.Errorf("invalid notification destination: %q", s)
	}
}

// Option is one selectable choice of a choice question.
type Option struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Question is one prompt of a form. ID is the key answers are stored under.
type Question struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	IsRequired bool         `json:"is_required"`
	Options    []Option     `json:"options,omitempty"`
}

// FormContent is the owner-editable part of a form definition.
type FormContent struct {
	Title                   string                  `json:"title"`
	Questions               []Question              `json:"questions"`
	BackgroundImageURL      *string                 `json:"background_image_url,omitempty"`
	NotificationDestination NotificationDestination `json:"notification_destination"`
	ReceiverEmail           *string                 `json:"receiver_email,omitempty"`
	WebhookURL              *string                 `json:"webhook_url,omitempty"`
}

// Form is a stored form definition.
type Form struct {
	ID      uuid.UUID `json:"id"`
	OwnerID string    `json:"owner_id"`
	FormContent
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// PublicForm is the respondent-facing view of a form. Owner and notification settings are omitted.
type PublicForm struct {
	ID                 uuid.UUID  `json:"id"`
	Title              string     `json:"title"`
	BackgroundImageURL *string    `json:"background_image_url,omitempty"`
	Questions          []Question `json:"questions"`
}

// Public returns the respondent-facing view of f.
func (f *Form) Public() *PublicForm {
	return &PublicForm{
		ID:                 f.ID,
		Title:              f.Title,
		BackgroundImageURL: f.BackgroundImageURL,
		Questions:          f.Questions,
	}
}

// QuestionByID returns the question with the given id.
func (c *FormContent) QuestionByID(id string) (Question, bool) {
	for _, q := range c.Questions {
		if q.ID == id {
			return q, true
		}
	}

	return Question{}, false
}

// ListFormsFilters holds pagination for listing an owner's forms.
type ListFormsFilters struct {
	Limit  int `form:"limit" validate:"omitempty,min=0,max=1000"`
	Offset int `form:"offset" validate:"omitempty,min=0"`
}

// ListFormsResponse is a page of forms, newest first.
type ListFormsResponse struct {
	Data   []Form `json:"data"`
	Total  int64  `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}
