package bot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/yonasatinafu/portfolio-bot/internal/textutil"
)

const (
	maxEmailChars     = 254
	maxLeadNameChars  = 120
	maxLeadNotesChars = 1200
)

var emailRe = regexp.MustCompile(`^[A-Za-z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@(?:[A-Za-z0-9-]+\.)+[A-Za-z]{2,63}$`)

// LeadRequest is the lead endpoint payload.
type LeadRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Notes   string `json:"notes"`
	PageURL string `json:"page_url"`
}

// leadRecord is the structured line written to the lead sink. Optional
// fields serialize as null when absent, matching downstream tooling.
type leadRecord struct {
	Event   string  `json:"event"`
	Email   string  `json:"email"`
	Name    *string `json:"name"`
	Notes   *string `json:"notes"`
	PageURL *string `json:"page_url"`
	TS      int64   `json:"ts"`
}

// leadSink and nowFunc are swapped out in tests.
var (
	leadSink io.Writer        = os.Stdout
	nowFunc  func() time.Time = time.Now
)

// Lead validates and records a contact request. The lead is not stored;
// it is emitted as one JSON line for log-based collection.
func (b *Bot) Lead(req LeadRequest) error {
	email := textutil.Normalize(req.Email, maxEmailChars)
	if !emailRe.MatchString(email) {
		return newError(KindInvalidEmail, "Invalid email address")
	}

	name := textutil.Normalize(req.Name, maxLeadNameChars)
	notes := textutil.Normalize(req.Notes, maxLeadNotesChars)
	pageURL := textutil.Normalize(req.PageURL, maxPageURLChars)

	line, err := json.Marshal(leadRecord{
		Event:   "lead_captured",
		Email:   email,
		Name:    orNil(name),
		Notes:   orNil(notes),
		PageURL: orNil(pageURL),
		TS:      nowFunc().Unix(),
	})
	if err != nil {
		b.logger.Error("marshal lead record", "error", err)
		return newError(KindInternal, "Unexpected server error. Please retry.")
	}
	fmt.Fprintln(leadSink, string(line))
	return nil
}

func orNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
