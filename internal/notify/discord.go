package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"
)

// Discord webhook limits and presentation.
const (
	maxEmbedsPerMessage = 10
	maxMessageChars     = 6000
	embedReserve        = 512 // title, description and footer of one embed
	maxFieldNameLen     = 256
	maxFieldValueLen    = 1024
	maxTitleLen         = 250
	maxContinuedLen     = 240
	maxErrorBodyLen     = 512
	embedColor          = 0x5865F2
	notifierUsername    = "XPMail & Forms Notifier"
	footerText          = "Powered by XPMail & Forms"
	descriptionFirst    = "A new response has been submitted to your form."
	descriptionEmpty    = "A new response (with no questions/answers) has been submitted."
	defaultPostTimeout  = 15 * time.Second
)

var errNoWebhookURL = errors.New("webhook url is not configured")

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type webhookMessage struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

// DiscordPoster posts submission summaries to a Discord-compatible webhook.
type DiscordPoster struct {
	httpClient *http.Client
	now        func() time.Time
}

// NewDiscordPoster creates a poster whose requests time out after timeout (15s when zero).
// Redirects are not followed.
func NewDiscordPoster(timeout time.Duration) *DiscordPoster {
	if timeout <= 0 {
		timeout = defaultPostTimeout
	}

	return &DiscordPoster{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		now: time.Now,
	}
}

// Post sends rows to url in blocks of at most MaxRowsPerBlock fields, each titled after the form.
// A message carries at most 10 embeds and 6000 characters; the rest go out in follow-up messages.
func (p *DiscordPoster) Post(ctx context.Context, url, title string, rows []Row) error {
	if url == "" {
		return errNoWebhookURL
	}

	embeds := buildEmbeds(title, rows, p.now().UTC().Format(time.RFC3339))

	for _, batch := range splitMessages(embeds) {
		msg := webhookMessage{Username: notifierUsername, Embeds: batch}

		if err := p.send(ctx, url, &msg); err != nil {
			return err
		}
	}

	return nil
}

// splitMessages groups embeds in order, starting a new message at the embed count or character limit.
func splitMessages(embeds []embed) [][]embed {
	var (
		batches [][]embed
		current []embed
		used    int
	)

	for _, e := range embeds {
		n := embedChars(e)
		if len(current) == maxEmbedsPerMessage || (len(current) > 0 && used+n > maxMessageChars) {
			batches = append(batches, current)
			current, used = nil, 0
		}

		current = append(current, e)
		used += n
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}

func embedChars(e embed) int {
	n := utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.Description)
	if e.Footer != nil {
		n += utf8.RuneCountInString(e.Footer.Text)
	}

	for _, f := range e.Fields {
		n += utf8.RuneCountInString(f.Name) + utf8.RuneCountInString(f.Value)
	}

	return n
}

// fieldChars is the size of r once rendered as an embed field.
func fieldChars(r Row) int {
	return min(utf8.RuneCountInString(r.Question), maxFieldNameLen) +
		min(utf8.RuneCountInString(r.Answer), maxFieldValueLen)
}

// splitByChars cuts a block further so its fields fit one message next to the embed's own text.
func splitByChars(block []Row) [][]Row {
	var (
		parts   [][]Row
		current []Row
		used    int
	)

	for _, r := range block {
		n := fieldChars(r)
		if len(current) > 0 && used+n > maxMessageChars-embedReserve {
			parts = append(parts, current)
			current, used = nil, 0
		}

		current = append(current, r)
		used += n
	}

	if len(current) > 0 {
		parts = append(parts, current)
	}

	return parts
}

func (p *DiscordPoster) send(ctx context.Context, url string, msg *webhookMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close webhook response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))

		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	return nil
}

func buildEmbeds(title string, rows []Row, timestamp string) []embed {
	var chunks [][]Row
	for _, block := range ChunkRows(rows, MaxRowsPerBlock) {
		chunks = append(chunks, splitByChars(block)...)
	}

	if len(chunks) == 0 {
		return []embed{{
			Title:       "New Submission: " + truncate(title, maxTitleLen),
			Description: descriptionEmpty,
			Color:       embedColor,
			Footer:      &embedFooter{Text: footerText},
			Timestamp:   timestamp,
		}}
	}

	embeds := make([]embed, 0, len(chunks))

	for i, chunk := range chunks {
		e := embed{
			Color:     embedColor,
			Fields:    make([]embedField, 0, len(chunk)),
			Timestamp: timestamp,
		}

		if i == 0 {
			e.Title = "New Submission: " + truncate(title, maxTitleLen)
			e.Description = descriptionFirst
		} else {
			e.Title = "(continued) " + truncate(title, maxContinuedLen)
		}

		if i == len(chunks)-1 {
			e.Footer = &embedFooter{Text: footerText}
		}

		for _, r := range chunk {
			e.Fields = append(e.Fields, embedField{
				Name:  truncate(r.Question, maxFieldNameLen),
				Value: truncate(r.Answer, maxFieldValueLen),
			})
		}

		embeds = append(embeds, e)
	}

	return embeds
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n])
}
