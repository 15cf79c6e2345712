package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/jobdesk/internal/api"
	"github.com/kalambet/jobdesk/internal/assistant"
	"github.com/kalambet/jobdesk/internal/config"
	"github.com/kalambet/jobdesk/internal/jobs"
	"github.com/kalambet/jobdesk/internal/notify"
	"github.com/kalambet/jobdesk/internal/resume"
	"github.com/kalambet/jobdesk/internal/tools"
)

// shortID trims uuids for table output; commands accept the full id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Track job applications and offers",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/jobs"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}
		var list []jobs.Job
		if err := client.call(cmd.Context(), http.MethodGet, path, nil, &list); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No jobs tracked yet.")
			return nil
		}
		writeJobTable(out, list)
		return nil
	},
}

func writeJobTable(w io.Writer, list []jobs.Job) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, j := range list {
		next := ""
		switch {
		case j.InterviewDate != "":
			next = "interview " + j.InterviewDate
		case j.FollowUpDate != "":
			next = "follow up " + j.FollowUpDate
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			colorize(colorCyan, shortID(j.ID)),
			colorize(statusColor(j.Status), string(j.Status)),
			j.Company,
			j.Role,
			next,
		)
	}
	tw.Flush()
}

var jobsAddCmd = &cobra.Command{
	Use:   "add <company> <role>",
	Short: "Track a new application or offer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		j := jobs.Job{Company: args[0], Role: args[1]}
		j.Location, _ = flags.GetString("location")
		j.Salary, _ = flags.GetString("salary")
		j.FollowUpDate, _ = flags.GetString("follow-up")
		j.Notes, _ = flags.GetString("notes")
		if offer, _ := flags.GetBool("offer"); offer {
			j.Origin = jobs.OriginOffer
			j.Status = jobs.StatusOffer
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var created jobs.Job
		if err := client.call(cmd.Context(), http.MethodPost, "/jobs", j, &created); err != nil {
			return err
		}
		printSuccess("Tracking %s at %s (%s)", created.Role, created.Company, created.ID)
		return nil
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Move a job to a new status",
	Long:  "Move a job to a new status. Valid statuses: Applied, Interview, Offer, Rejected, Accepted.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := normalizeStatus(args[1])
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", args[1])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var result map[string]string
		body := map[string]string{"status": string(status)}
		if err := client.call(cmd.Context(), http.MethodPut, "/jobs/"+args[0]+"/status", body, &result); err != nil {
			return err
		}
		printSuccess("Moved from %s to %s", result["previous"], result["status"])
		return nil
	},
}

// normalizeStatus accepts any casing of a status name.
func normalizeStatus(s string) jobs.Status {
	for _, st := range jobs.Statuses {
		if strings.EqualFold(string(st), s) {
			return st
		}
	}
	return jobs.Status(s)
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var j map[string]any
		if err := client.call(cmd.Context(), http.MethodGet, "/jobs/"+args[0], nil, &j); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), j)
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Stop tracking a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.call(cmd.Context(), http.MethodDelete, "/jobs/"+args[0], nil, nil); err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

var jobsExtractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract a job from a saved posting (HTML or text)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		save, _ := cmd.Flags().GetBool("save")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading posting: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Extracting job details...")
		var j jobs.Job
		body := map[string]any{"posting": string(data), "save": save}
		if err := client.call(cmd.Context(), http.MethodPost, "/tools/extract-job", body, &j); err != nil {
			return err
		}
		if save {
			printSuccess("Tracking %s at %s (%s)", j.Role, j.Company, j.ID)
			return nil
		}
		return printJSON(cmd.OutOrStdout(), j)
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "only list jobs in this status")

	jobsAddCmd.Flags().String("location", "", "job location")
	jobsAddCmd.Flags().String("salary", "", "salary or range")
	jobsAddCmd.Flags().String("follow-up", "", "follow-up date (YYYY-MM-DD)")
	jobsAddCmd.Flags().String("notes", "", "free-form notes")
	jobsAddCmd.Flags().Bool("offer", false, "record an inbound offer instead of an application")

	jobsExtractCmd.Flags().Bool("save", false, "track the extracted job instead of printing it")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsAddCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
	jobsCmd.AddCommand(jobsExtractCmd)
}

// --- notifications ---

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notes"},
	Short:   "Show and manage reminders",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		unreadOnly, _ := cmd.Flags().GetBool("unread")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var feed struct {
			Unread        int                   `json:"unread"`
			Notifications []notify.Notification `json:"notifications"`
		}
		if err := client.call(cmd.Context(), http.MethodGet, "/notifications", nil, &feed); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		shown := 0
		for _, n := range feed.Notifications {
			if unreadOnly && n.Read {
				continue
			}
			marker := " "
			title := n.Title
			if !n.Read {
				marker = colorize(colorYellow, "•")
				title = colorize(colorBold, title)
			}
			fmt.Fprintf(out, "%s %s  %s  %s\n", marker, colorize(colorCyan, shortID(n.ID)), title, colorize(colorDim, ago(n.Time(), time.Now())))
			fmt.Fprintf(out, "    %s\n", n.Message)
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(out, "No notifications.")
			return nil
		}
		fmt.Fprintf(out, "\n%d unread\n", feed.Unread)
		return nil
	},
}

// ago renders a coarse relative time.
func ago(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return client.call(cmd.Context(), http.MethodPost, "/notifications/"+args[0]+"/read", nil, nil)
	},
}

var notificationsReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.call(cmd.Context(), http.MethodPost, "/notifications/read-all", nil, nil); err != nil {
			return err
		}
		printSuccess("All notifications marked read")
		return nil
	},
}

var notificationsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every notification from the feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.call(cmd.Context(), http.MethodDelete, "/notifications", nil, nil); err != nil {
			return err
		}
		printSuccess("Notifications cleared")
		return nil
	},
}

func init() {
	notificationsListCmd.Flags().Bool("unread", false, "only show unread notifications")
	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)
	notificationsCmd.AddCommand(notificationsReadAllCmd)
	notificationsCmd.AddCommand(notificationsClearCmd)
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Talk to the assistant; it can update your jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		history, _ := cmd.Flags().GetBool("history")
		clearHistory, _ := cmd.Flags().GetBool("clear")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		switch {
		case clearHistory:
			if err := client.call(cmd.Context(), http.MethodDelete, "/chat", nil, nil); err != nil {
				return err
			}
			printSuccess("Chat history cleared")
			return nil
		case history:
			var msgs []assistant.Message
			if err := client.call(cmd.Context(), http.MethodGet, "/chat", nil, &msgs); err != nil {
				return err
			}
			for _, m := range msgs {
				who := colorize(colorBold, "you")
				if m.Role == assistant.RoleModel {
					who = colorize(colorCyan, "jobdesk")
				}
				fmt.Fprintf(out, "%s: %s\n\n", who, m.Text)
			}
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("a message is required")
		}
		return streamChat(cmd, client, strings.Join(args, " "))
	},
}

// streamChat prints the reply as it grows. Each delta carries the full
// cleaned text, so only the unseen suffix is written.
func streamChat(cmd *cobra.Command, client *apiClient, message string) error {
	out := cmd.OutOrStdout()
	printed := ""
	var done api.ChatEvent

	err := client.stream(cmd.Context(), "/chat", map[string]string{"message": message}, func(event string, data []byte) error {
		switch event {
		case "delta":
			var ev api.ChatEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return err
			}
			if strings.HasPrefix(ev.Text, printed) {
				fmt.Fprint(out, ev.Text[len(printed):])
				printed = ev.Text
			}
		case "done":
			return json.Unmarshal(data, &done)
		case "error":
			var e struct {
				Message string `json:"message"`
			}
			json.Unmarshal(data, &e)
			return fmt.Errorf("chat failed: %s", e.Message)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if done.Reply != nil && printed == "" {
		fmt.Fprint(out, done.Reply.Text)
	}
	fmt.Fprintln(out)
	if done.Failed {
		return fmt.Errorf("the assistant could not reply")
	}
	if done.Applied > 0 {
		printSuccess("Updated %d job(s)", done.Applied)
	}
	return nil
}

func init() {
	chatCmd.Flags().Bool("history", false, "print the conversation so far")
	chatCmd.Flags().Bool("clear", false, "clear the conversation")
}

// --- generate / tasks / offers ---

var generateCmd = &cobra.Command{
	Use:   "generate <job-id> <kind>",
	Short: "Generate an AI document for a job in the background",
	Long:  "Generate an AI document for a job in the background. Kinds: " + strings.Join(tools.Kinds(), ", ") + ".",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, kind := args[0], args[1]
		if !tools.Supported(kind) {
			return fmt.Errorf("unknown kind %q (supported: %s)", kind, strings.Join(tools.Kinds(), ", "))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var result map[string]string
		if err := client.call(cmd.Context(), http.MethodPost, "/jobs/"+jobID+"/artifacts", map[string]string{"kind": kind}, &result); err != nil {
			return err
		}
		printSuccess("Queued %s (task %s); you'll get a notification when it's ready", kind, shortID(result["task_id"]))
		return nil
	},
}

type taskRow struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List recent background generation tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var tasks []taskRow
		if err := client.call(cmd.Context(), http.MethodGet, fmt.Sprintf("/tasks?limit=%d", limit), nil, &tasks); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(tasks) == 0 {
			fmt.Fprintln(out, "No tasks.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, t := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				colorize(colorCyan, shortID(t.ID)), t.Status, t.Kind, shortID(t.JobID), t.LastError)
		}
		return tw.Flush()
	},
}

var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "Compare your offers with the AI",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Comparing offers...")
		var cmp tools.Comparison
		if err := client.call(cmd.Context(), http.MethodPost, "/tools/compare-offers", nil, &cmp); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for i, r := range cmp.Ranking {
			fmt.Fprintf(out, "%d. %s  score %d\n", i+1, colorize(colorCyan, shortID(r.JobID)), r.Score)
			for _, p := range r.Pros {
				fmt.Fprintf(out, "   %s %s\n", colorize(colorGreen, "+"), p)
			}
			for _, c := range r.Cons {
				fmt.Fprintf(out, "   %s %s\n", colorize(colorRed, "-"), c)
			}
		}
		if cmp.Recommendation != "" {
			fmt.Fprintf(out, "\n%s\n", cmp.Recommendation)
		}
		return nil
	},
}

func init() {
	tasksCmd.Flags().Int("limit", 20, "maximum number of tasks to list")
}

// --- resume ---

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Manage the resume used as AI context",
}

var resumeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored resume as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var doc resume.Document
		if err := client.call(cmd.Context(), http.MethodGet, "/resume", nil, &doc); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), doc)
	},
}

var resumeImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a resume from a PDF or plain-text file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readResumeFile(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var saved resume.Document
		if err := client.call(cmd.Context(), http.MethodPut, "/resume", resume.FromText(text), &saved); err != nil {
			return err
		}
		printSuccess("Imported resume (%d characters)", len(saved.RawText))
		return nil
	},
}

func readResumeFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return resume.ExtractPDFText(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading resume: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return text, nil
}

func init() {
	resumeCmd.AddCommand(resumeShowCmd)
	resumeCmd.AddCommand(resumeImportCmd)
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change app settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show app settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var s map[string]any
		if err := client.call(cmd.Context(), http.MethodGet, "/settings", nil, &s); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), s)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <display_name|desktop_alerts> <value>",
	Short: "Change an app setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		var body map[string]any
		switch key {
		case "display_name":
			body = map[string]any{key: value}
		case "desktop_alerts":
			on, err := parseToggle(value)
			if err != nil {
				return err
			}
			body = map[string]any{key: on}
		default:
			return fmt.Errorf("unknown setting %q", key)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.call(cmd.Context(), http.MethodPut, "/settings", body, nil); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func parseToggle(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Manage stored data",
}

var dataPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all stored data",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL jobs, notifications, chat history and your resume. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.call(cmd.Context(), http.MethodDelete, "/data", nil, nil); err != nil {
			return err
		}
		printSuccess("All data purged")
		return nil
	},
}

func init() {
	dataPurgeCmd.Flags().Bool("confirm", false, "confirm data purge")
	dataCmd.AddCommand(dataPurgeCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "("+k.EnvVar+")"))
		}
		fmt.Fprintf(out, "\n  config file: %s\n", config.ConfigFilePath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s (restart jobdesk to apply)", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
