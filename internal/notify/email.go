package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	texttemplate "text/template"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

const emailCharset = "UTF-8"

// SESAPI is the subset of the SES client used to send mail.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

var (
	errNoRecipient = errors.New("receiver email is not configured")
	errNoSender    = errors.New("sender address is not configured")
)

var htmlBody = htmltemplate.Must(htmltemplate.New("submission.html").Parse(
	`<h2>New Submission for Form: {{.Title}}</h2>
<p>A new response has been submitted to your form.</p>
<h3>Response Details:</h3>
<ul>
{{- range .Rows}}
<li><strong>{{.Question}}:</strong> {{.Answer}}</li>
{{- else}}
<li>No answers were given.</li>
{{- end}}
</ul>
<p>Thank you for using XPMail &amp; Forms.</p>
`))

var textBody = texttemplate.Must(texttemplate.New("submission.txt").Parse(
	`New Submission for Form: {{.Title}}

A new response has been submitted to your form.

{{range .Rows}}{{.Question}}: {{.Answer}}
{{else}}No answers were given.
{{end}}
Thank you for using XPMail & Forms.
`))

type emailData struct {
	Title string
	Rows  []Row
}

// SESEmailSender sends submission summaries through Amazon SES.
type SESEmailSender struct {
	client SESAPI
	from   string
}

// NewSESEmailSender creates a sender that mails from the given address.
func NewSESEmailSender(client SESAPI, from string) *SESEmailSender {
	return &SESEmailSender{client: client, from: from}
}

// EmailSubject is the subject line for a submission to the form titled title.
func EmailSubject(title string) string {
	return "New Form Submission: " + title
}

// Send mails a summary of rows for the form titled title to to.
func (s *SESEmailSender) Send(ctx context.Context, to, title string, rows []Row) error {
	if to == "" {
		return errNoRecipient
	}

	if s.from == "" {
		return errNoSender
	}

	html, text, err := renderEmail(title, rows)
	if err != nil {
		return err
	}

	out, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(EmailSubject(title)), Charset: aws.String(emailCharset)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(html), Charset: aws.String(emailCharset)},
				Text: &types.Content{Data: aws.String(text), Charset: aws.String(emailCharset)},
			},
		},
		Source: aws.String(s.from),
	})
	if err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}

	if out != nil {
		slog.DebugContext(ctx, "submission email sent", "message_id", aws.ToString(out.MessageId))
	}

	return nil
}

func renderEmail(title string, rows []Row) (html, text string, err error) {
	data := emailData{Title: title, Rows: rows}

	var hb, tb bytes.Buffer
	if err := htmlBody.Execute(&hb, data); err != nil {
		return "", "", fmt.Errorf("render html body: %w", err)
	}

	if err := textBody.Execute(&tb, data); err != nil {
		return "", "", fmt.Errorf("render text body: %w", err)
	}

	return hb.String(), tb.String(), nil
}
