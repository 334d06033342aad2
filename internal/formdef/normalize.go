// Package formdef holds the normalization rules a form definition must satisfy before it is stored.
package formdef

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/xpmail/formhub/internal/huberrors"
	"github.com/xpmail/formhub/internal/models"
)

// validate is only used through Var, which is safe for concurrent use.
var validate = validator.New()

// Normalize returns a cleaned copy of content or huberrors.ValidationErrors listing every offending field.
// Missing question and option ids are generated; existing ids are kept, so Normalize is idempotent.
func Normalize(content models.FormContent) (models.FormContent, error) {
	out := clone(content)

	var errs huberrors.ValidationErrors

	out.Title = strings.TrimSpace(out.Title)
	if out.Title == "" {
		errs = append(errs, huberrors.NewValidationError("title", "title is required"))
	}

	if len(out.Questions) == 0 {
		errs = append(errs, huberrors.NewValidationError("questions", "at least one question is required"))
	}

	for i := range out.Questions {
		errs = append(errs, normalizeQuestion(i, &out.Questions[i])...)
	}

	BackfillIDs(&out)
	errs = append(errs, duplicateIDs(out.Questions)...)

	if out.BackgroundImageURL != nil {
		trimmed := strings.TrimSpace(*out.BackgroundImageURL)
		if trimmed == "" {
			out.BackgroundImageURL = nil
		} else {
			out.BackgroundImageURL = &trimmed
			if validate.Var(trimmed, "http_url") != nil {
				errs = append(errs, huberrors.NewValidationError("background_image_url", "background_image_url must be a valid http(s) URL"))
			}
		}
	}

	dest, err := models.ParseNotificationDestination(string(out.NotificationDestination))
	if err != nil {
		errs = append(errs, huberrors.NewValidationError("notification_destination",
			"notification_destination must be one of: none, email, webhook"))
	} else {
		out.NotificationDestination = dest
		ApplyNotificationExclusivity(&out)
		errs = append(errs, validateNotificationTarget(&out)...)
	}

	if len(errs) > 0 {
		return models.FormContent{}, errs
	}

	return out, nil
}

func normalizeQuestion(i int, q *models.Question) huberrors.ValidationErrors {
	var errs huberrors.ValidationErrors

	prefix := fmt.Sprintf("questions[%d]", i)

	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		errs = append(errs, huberrors.NewValidationError(prefix+".text", "question text is required"))
	}

	qt, err := models.ParseQuestionType(string(q.Type))
	if err != nil {
		errs = append(errs, huberrors.NewValidationError(prefix+".type", "question type is not recognized"))

		return errs
	}

	q.Type = qt

	if !qt.HasOptions() {
		q.Options = nil

		return errs
	}

	if len(q.Options) == 0 {
		errs = append(errs, huberrors.NewValidationError(prefix+".options", "choice questions need at least one option"))
	}

	for j := range q.Options {
		q.Options[j].Value = strings.TrimSpace(q.Options[j].Value)
		if q.Options[j].Value == "" {
			errs = append(errs, huberrors.NewValidationError(
				fmt.Sprintf("%s.options[%d].value", prefix, j), "option value is required"))
		}
	}

	return errs
}

// duplicateIDs reports every question id, and every option id within one question, already used earlier.
// Answers are keyed by question id, so a repeat would let two questions share one answer.
func duplicateIDs(questions []models.Question) huberrors.ValidationErrors {
	var errs huberrors.ValidationErrors

	seen := make(map[string]struct{}, len(questions))

	for i, q := range questions {
		id := strings.TrimSpace(q.ID)
		if _, dup := seen[id]; dup {
			errs = append(errs, huberrors.NewValidationError(
				fmt.Sprintf("questions[%d].id", i), "question id is already used by another question"))
		}

		seen[id] = struct{}{}

		optSeen := make(map[string]struct{}, len(q.Options))

		for j, o := range q.Options {
			oid := strings.TrimSpace(o.ID)
			if _, dup := optSeen[oid]; dup {
				errs = append(errs, huberrors.NewValidationError(
					fmt.Sprintf("questions[%d].options[%d].id", i, j), "option id is already used in this question"))
			}

			optSeen[oid] = struct{}{}
		}
	}

	return errs
}

func validateNotificationTarget(c *models.FormContent) huberrors.ValidationErrors {
	switch c.NotificationDestination {
	case models.NotifyEmail:
		if c.ReceiverEmail == nil || *c.ReceiverEmail == "" {
			return huberrors.ValidationErrors{huberrors.NewValidationError("receiver_email", "receiver_email is required for email notifications")}
		}

		if validate.Var(*c.ReceiverEmail, "email") != nil {
			return huberrors.ValidationErrors{huberrors.NewValidationError("receiver_email", "receiver_email must be a valid email address")}
		}
	case models.NotifyWebhook:
		if c.WebhookURL == nil || *c.WebhookURL == "" {
			return huberrors.ValidationErrors{huberrors.NewValidationError("webhook_url", "webhook_url is required for webhook notifications")}
		}

		if validate.Var(*c.WebhookURL, "http_url") != nil {
			return huberrors.ValidationErrors{huberrors.NewValidationError("webhook_url", "webhook_url must be a valid http(s) URL")}
		}
	case models.NotifyNone:
	}

	return nil
}

// BackfillIDs assigns a fresh id to every question and option that lacks one.
// It is the only place ids are generated, and it is applied on write and on read of older records.
func BackfillIDs(c *models.FormContent) {
	for i := range c.Questions {
		q := &c.Questions[i]
		if strings.TrimSpace(q.ID) == "" {
			q.ID = uuid.NewString()
		}

		for j := range q.Options {
			if strings.TrimSpace(q.Options[j].ID) == "" {
				q.Options[j].ID = uuid.NewString()
			}
		}
	}
}

// ApplyNotificationExclusivity keeps the target field matching the destination and clears the other.
func ApplyNotificationExclusivity(c *models.FormContent) {
	switch c.NotificationDestination {
	case models.NotifyEmail:
		c.WebhookURL = nil
		c.ReceiverEmail = trimmedOrNil(c.ReceiverEmail)
	case models.NotifyWebhook:
		c.ReceiverEmail = nil
		c.WebhookURL = trimmedOrNil(c.WebhookURL)
	default:
		c.ReceiverEmail = nil
		c.WebhookURL = nil
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}

	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}

	return &v
}

// clone copies content deeply enough that Normalize never mutates its input.
func clone(c models.FormContent) models.FormContent {
	out := c

	if c.Questions != nil {
		out.Questions = make([]models.Question, len(c.Questions))
		for i, q := range c.Questions {
			out.Questions[i] = q
			if q.Options != nil {
				out.Questions[i].Options = append([]models.Option(nil), q.Options...)
			}
		}
	}

	out.BackgroundImageURL = copyString(c.BackgroundImageURL)
	out.ReceiverEmail = copyString(c.ReceiverEmail)
	out.WebhookURL = copyString(c.WebhookURL)

	return out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}

	v := *s

	return &v
}
