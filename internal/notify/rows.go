// Package notify delivers new-submission notifications to form owners by email (AWS SES) or chat webhook.
package notify

import (
	"github.com/xpmail/formhub/internal/models"
)

// MaxRowsPerBlock is the most question/answer pairs a single webhook block may carry.
const MaxRowsPerBlock = 20

// Row is one question/answer pair of a submission, labelled by question text.
type Row struct {
	Question string
	Answer   string
}

// Rows lists the answered questions in form order. Multi-value answers are joined with ", ".
func Rows(questions []models.Question, answers models.Answers) []Row {
	rows := make([]Row, 0, len(questions))

	for _, q := range questions {
		a, ok := answers[q.ID]
		if !ok || a.IsMissing() {
			continue
		}

		rows = append(rows, Row{Question: q.Text, Answer: a.String()})
	}

	return rows
}

// ChunkRows splits rows into consecutive blocks of at most size rows.
// A non-positive size yields a single block.
func ChunkRows(rows []Row, size int) [][]Row {
	if len(rows) == 0 {
		return nil
	}

	if size <= 0 {
		return [][]Row{rows}
	}

	chunks := make([][]Row, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunks = append(chunks, rows[start:end])
	}

	return chunks
}
