package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var errUnsupportedAnswer = errors.New("answer must be a string, number, boolean or list of those")

// AnswerValue is a single answer or, for multi-choice questions, a list of selections.
// The zero value is an absent answer.
type AnswerValue struct {
	values []string
	multi  bool
}

// SingleAnswer returns an answer holding one value.
func SingleAnswer(v string) AnswerValue {
	return AnswerValue{values: []string{v}}
}

// MultiAnswer returns an answer holding a list of selections.
func MultiAnswer(vs ...string) AnswerValue {
	return AnswerValue{values: append([]string{}, vs...), multi: true}
}

// IsMulti reports whether the answer is a list.
func (a AnswerValue) IsMulti() bool {
	return a.multi
}

// Values returns the raw values.
func (a AnswerValue) Values() []string {
	return a.values
}

// IsMissing reports whether the answer counts as unanswered: absent, whitespace only, or an empty list.
func (a AnswerValue) IsMissing() bool {
	for _, v := range a.values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}

	return true
}

// String renders the answer for notifications. Lists are joined with ", ".
func (a AnswerValue) String() string {
	if !a.multi {
		if len(a.values) == 0 {
			return ""
		}

		return a.values[0]
	}

	return strings.Join(a.values, ", ")
}

// MarshalJSON writes a string, a list of strings, or null.
func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if a.multi {
		vs := a.values
		if vs == nil {
			vs = []string{}
		}

		return json.Marshal(vs)
	}

	if len(a.values) == 0 {
		return []byte("null"), nil
	}

	return json.Marshal(a.values[0])
}

// UnmarshalJSON accepts a string, number, boolean, null, or a list of those.
func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = AnswerValue{}

		return nil
	}

	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode answer list: %w", err)
		}

		vs := make([]string, 0, len(raw))

		for _, r := range raw {
			v, ok, err := scalarToString(r)
			if err != nil {
				return err
			}

			if ok {
				vs = append(vs, v)
			}
		}

		*a = AnswerValue{values: vs, multi: true}

		return nil
	}

	v, ok, err := scalarToString(data)
	if err != nil {
		return err
	}

	if !ok {
		*a = AnswerValue{}

		return nil
	}

	*a = SingleAnswer(v)

	return nil
}

// scalarToString converts a JSON scalar to its string form. ok is false for null.
func scalarToString(data json.RawMessage) (string, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", false, nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false, fmt.Errorf("decode answer: %w", err)
		}

		return s, true, nil
	case '{', '[':
		return "", false, errUnsupportedAnswer
	default:
		// numbers and booleans keep their literal form
		return string(data), true, nil
	}
}

// Answers maps question id to answer.
type Answers map[string]AnswerValue

// Response is one submission to a form. Responses are append-only.
type Response struct {
	ID          uuid.UUID `json:"id"`
	FormID      uuid.UUID `json:"form_id"`
	Answers     Answers   `json:"answers"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubmitRequest is the body of a public submission.
type SubmitRequest struct {
	Answers Answers `json:"answers"`
}

// NotificationOutcome reports the single notification attempt made for a submission.
type NotificationOutcome struct {
	Channel   NotificationDestination `json:"channel"`
	Delivered bool                    `json:"delivered"`
	Warning   string                  `json:"warning,omitempty"`
}

// SubmissionResult is returned to the respondent after a successful submission.
type SubmissionResult struct {
	ResponseID   uuid.UUID            `json:"response_id"`
	SubmittedAt  time.Time            `json:"submitted_at"`
	Message      string               `json:"message"`
	Notification *NotificationOutcome `json:"notification,omitempty"`
}

// SubmissionTotals is the owner's best-effort response count across all forms.
// When Partial is true, FailedForms forms could not be counted and are excluded from Total.
type SubmissionTotals struct {
	Total       int64 `json:"total"`
	Forms       int   `json:"forms"`
	FailedForms int   `json:"failed_forms"`
	Partial     bool  `json:"partial"`
}

// ResponseCount is the number of responses stored for one form.
type ResponseCount struct {
	FormID uuid.UUID `json:"form_id"`
	Count  int64     `json:"count"`
}

// ListResponsesFilters holds pagination for listing a form's responses.
type ListResponsesFilters struct {
	Limit  int `form:"limit" validate:"omitempty,min=0,max=1000"`
	Offset int `form:"offset" validate:"omitempty,min=0"`
}

// ListResponsesResponse is a page of responses, newest first.
type ListResponsesResponse struct {
	Data   []Response `json:"data"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}
