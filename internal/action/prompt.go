package action

import (
	"strings"

	"github.com/kalambet/jobdesk/internal/jobs"
)

const instructionsTemplate = `You can update the user's job records. To do so, include a directive anywhere in your reply using exactly this syntax:

[ACTION:EDIT_JOB {"id":"<job id>","updates":{"<field>":"<value>"}}]

Rules:
- Use the id shown in the job list. Never invent ids.
- Editable fields: status, salary, location, role, company, notes, followUpDate, interviewDate.
- status must be one of: %STATUSES%.
- followUpDate is a calendar date YYYY-MM-DD. interviewDate is an ISO 8601 date-time such as 2025-03-14T15:00:00Z.
- All values are strings. An empty string clears a field other than role or company.
- Only include a directive when the user asked for the change or clearly confirmed it.
- The directive is hidden from the user, so also say in plain words what you changed.`

// Instructions returns the prompt fragment that teaches the model the
// directive syntax.
func Instructions() string {
	names := make([]string, len(jobs.Statuses))
	for i, s := range jobs.Statuses {
		names[i] = string(s)
	}
	return strings.Replace(instructionsTemplate, "%STATUSES%", strings.Join(names, ", "), 1)
}
