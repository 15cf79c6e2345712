// Package action extracts structured job edits that the chat assistant embeds
// in its replies and applies them to the job collection.
//
// A directive is a bracketed tag anywhere in the reply:
//
//	[ACTION:EDIT_JOB {"id":"job-1","updates":{"status":"Interview"}}]
//
// Only the fields in the Field set can be edited; any other key, or a value
// of the wrong shape, is rejected rather than coerced.
package action

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/jobdesk/internal/jobs"
)

// Marker opens every directive tag.
const Marker = "[ACTION:EDIT_JOB"

// Field is an editable job field name as it appears in a directive payload.
type Field string

const (
	FieldStatus        Field = "status"
	FieldSalary        Field = "salary"
	FieldLocation      Field = "location"
	FieldRole          Field = "role"
	FieldCompany       Field = "company"
	FieldNotes         Field = "notes"
	FieldFollowUpDate  Field = "followUpDate"
	FieldInterviewDate Field = "interviewDate"
)

// Update is one validated field assignment.
type Update struct {
	Field Field
	Value string
}

// Directive is a request to patch one job.
type Directive struct {
	JobID   string
	Updates []Update
}

// Result is the outcome of parsing a reply.
type Result struct {
	// Text is the reply with every directive tag removed, trimmed.
	Text       string
	Directives []Directive
}

type rawDirective struct {
	ID      string                     `json:"id"`
	Updates map[string]json.RawMessage `json:"updates"`
}

// Parse extracts the directives from a finished reply. It never fails:
// malformed payloads are logged and skipped, and their tags are stripped.
// A broken tag ends at the next "]" or the next marker, so it cannot take
// a later directive or the prose between them with it.
func Parse(text string) Result {
	return parse(text, false)
}

// ParsePartial is Parse for a reply still being streamed. A trailing tag
// that has not been closed yet, or a bare prefix of the marker such as
// "[ACTI", is hidden from Text instead of being treated as broken. It may
// be called repeatedly on a growing buffer.
func ParsePartial(text string) Result {
	return parse(text, true)
}

func parse(text string, partial bool) Result {
	var (
		b          strings.Builder
		directives []Directive
	)

	rest := text
	for {
		k := strings.Index(rest, Marker)
		if k < 0 {
			if partial {
				rest = trimMarkerPrefix(rest)
			}
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:k])

		body := rest[k+len(Marker):]
		payload, end, state := scanTag(body)
		switch {
		case state == tagClosed:
			if d, ok := Decode(payload); ok {
				directives = append(directives, d)
			}
			rest = body[end:]
		case state == tagOpen && partial:
			rest = ""
		default:
			slog.Debug("stripping broken action tag")
			rest = body[brokenTagLen(body, state, partial):]
		}
	}

	return Result{Text: strings.TrimSpace(b.String()), Directives: directives}
}

type tagState int

const (
	tagClosed    tagState = iota
	tagOpen               // text ended inside the tag
	tagMalformed          // the tag cannot be completed
)

// scanTag reads the payload that follows a marker: optional spaces, one
// JSON object, optional spaces and "]". Braces inside JSON strings do not
// count. end is the index just past the "]" for a closed tag.
func scanTag(body string) (payload string, end int, state tagState) {
	i := skipSpace(body, 0)
	if i == len(body) {
		return "", len(body), tagOpen
	}
	if body[i] != '{' {
		return "", i, tagMalformed
	}

	start, depth := i, 0
	inString, escaped := false, false
	for ; i < len(body); i++ {
		c := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth > 0 {
				continue
			}
			j := skipSpace(body, i+1)
			if j == len(body) {
				return "", len(body), tagOpen
			}
			if body[j] != ']' {
				return "", j, tagMalformed
			}
			return body[start : i+1], j + 1, tagClosed
		case '[':
			// A new tag cannot start inside a valid payload.
			if strings.HasPrefix(body[i:], Marker) {
				return "", i, tagMalformed
			}
		}
	}
	return "", len(body), tagOpen
}

// brokenTagLen reports how much of body, the text after a broken tag's
// marker, to drop: through the next "]" or up to the next marker. With
// neither, an unfinished payload runs to the end of the text, while a
// marker followed by prose loses only the marker.
func brokenTagLen(body string, state tagState, partial bool) int {
	cut := -1
	if i := strings.IndexByte(body, ']'); i >= 0 {
		cut = i + 1
	}
	if i := strings.Index(body, Marker); i >= 0 && (cut < 0 || i < cut) {
		cut = i
	}
	switch {
	case cut >= 0:
		return cut
	case partial, state == tagOpen:
		return len(body)
	default:
		return 0
	}
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// Decode validates one directive payload, the JSON object inside a tag.
// Invalid updates are dropped; ok is false when nothing usable remains.
func Decode(payload string) (Directive, bool) {
	var raw rawDirective
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		slog.Warn("skipping malformed action directive", "error", err)
		return Directive{}, false
	}
	if raw.ID == "" || raw.Updates == nil {
		slog.Debug("discarding directive without id or updates", "id", raw.ID)
		return Directive{}, false
	}

	d := Directive{JobID: raw.ID}
	for _, key := range sortedKeys(raw.Updates) {
		u, err := validate(Field(key), raw.Updates[key])
		if err != nil {
			slog.Warn("rejecting directive update", "job_id", raw.ID, "field", key, "error", err)
			continue
		}
		d.Updates = append(d.Updates, u)
	}
	if len(d.Updates) == 0 {
		return Directive{}, false
	}
	return d, true
}

func validate(f Field, raw json.RawMessage) (Update, error) {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return Update{}, fmt.Errorf("value must be a string")
	}

	switch f {
	case FieldStatus:
		if !jobs.Status(v).Valid() {
			return Update{}, fmt.Errorf("unknown status %q", v)
		}
	case FieldFollowUpDate:
		if _, ok := jobs.ParseDate(v, time.UTC); !ok && v != "" {
			return Update{}, fmt.Errorf("follow-up date %q is not YYYY-MM-DD", v)
		}
	case FieldInterviewDate:
		if _, ok := jobs.ParseInstant(v, time.UTC); !ok && v != "" {
			return Update{}, fmt.Errorf("interview date %q is not ISO 8601", v)
		}
	case FieldSalary, FieldLocation, FieldRole, FieldCompany, FieldNotes:
		if (f == FieldRole || f == FieldCompany) && strings.TrimSpace(v) == "" {
			return Update{}, fmt.Errorf("%s cannot be empty", f)
		}
	default:
		return Update{}, fmt.Errorf("field is not editable")
	}
	return Update{Field: f, Value: v}, nil
}

// trimMarkerPrefix hides a bare prefix of the marker, such as "[ACTI", at
// the end of a streamed reply. A lone "[" is kept.
func trimMarkerPrefix(s string) string {
	i := strings.LastIndex(s, "[")
	if i < 0 {
		return s
	}
	if tail := s[i:]; len(tail) > 1 && strings.HasPrefix(Marker, tail) {
		return s[:i]
	}
	return s
}

// Apply merges each directive's updates into the job with the matching id,
// in order, so later directives win. Directives naming unknown ids are
// dropped. The input slice is not modified; applied counts directives that
// matched a job.
func Apply(directives []Directive, list []jobs.Job) (out []jobs.Job, applied int) {
	out = make([]jobs.Job, len(list))
	for i, j := range list {
		out[i] = j.Clone()
	}

	for _, d := range directives {
		idx := -1
		for i := range out {
			if out[i].ID == d.JobID {
				idx = i
				break
			}
		}
		if idx < 0 {
			slog.Debug("dropping directive for unknown job", "job_id", d.JobID)
			continue
		}
		for _, u := range d.Updates {
			set(&out[idx], u)
		}
		applied++
	}
	return out, applied
}

func set(j *jobs.Job, u Update) {
	switch u.Field {
	case FieldStatus:
		j.Status = jobs.Status(u.Value)
	case FieldSalary:
		j.Salary = u.Value
	case FieldLocation:
		j.Location = u.Value
	case FieldRole:
		j.Role = u.Value
	case FieldCompany:
		j.Company = u.Value
	case FieldNotes:
		j.Notes = u.Value
	case FieldFollowUpDate:
		j.FollowUpDate = u.Value
	case FieldInterviewDate:
		j.InterviewDate = u.Value
	}
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
