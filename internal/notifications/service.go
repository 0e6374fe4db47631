package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/brandradar/brandradar/internal/config"
	"github.com/brandradar/brandradar/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// mailSender is satisfied by *gomail.Dialer
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service sends alert reports to Microsoft Teams and e-mail
type Service struct {
	teamsWebhookURL string
	email           string
	from            string

	client *resty.Client
	mailer mailSender
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a notification service from cfg. Channels without
// configuration are skipped.
func NewService(cfg *config.Config) *Service {
	return &Service{
		teamsWebhookURL: cfg.TeamsWebhookURL,
		email:           cfg.NotificationEmail,
		from:            cfg.SMTPUsername,
		client:          resty.New().SetTimeout(30 * time.Second),
		mailer:          gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}
}

func (s *Service) IsEnabled() bool {
	return s.teamsWebhookURL != "" || s.email != ""
}

// SendRunReport sends the alerts raised by a run via every configured
// channel. Runs without alerts are not reported.
func (s *Service) SendRunReport(ctx context.Context, summary *models.RunSummary) error {
	if summary == nil || len(summary.Alerts) == 0 {
		return nil
	}

	var errors []string

	if s.teamsWebhookURL != "" {
		if err := s.sendToTeams(ctx, summary); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Sent %d alerts to Teams", len(summary.Alerts))
		}
	}

	if s.email != "" {
		if err := s.sendEmail(summary); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Sent %d alerts to %s", len(summary.Alerts), s.email)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(ctx context.Context, summary *models.RunSummary) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(buildTeamsMessage(summary)).
		Post(s.teamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

// alertView pairs an alert with the name of its brand for rendering
type alertView struct {
	models.Alert
	BrandName string
}

func alertViews(summary *models.RunSummary) []alertView {
	names := make(map[int64]string, len(summary.Brands))
	for _, b := range summary.Brands {
		names[b.BrandID] = b.BrandName
	}

	views := make([]alertView, 0, len(summary.Alerts))
	for _, alert := range summary.Alerts {
		name := names[alert.BrandID]
		if name == "" {
			name = fmt.Sprintf("brand %d", alert.BrandID)
		}
		views = append(views, alertView{Alert: alert, BrandName: name})
	}
	return views
}

func buildTeamsMessage(summary *models.RunSummary) *TeamsMessage {
	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: "d13438",
		Title:      fmt.Sprintf("BrandRadar - %d alerts raised", len(summary.Alerts)),
		Text:       summary.String(),
	}

	for _, alert := range alertViews(summary) {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle:    fmt.Sprintf("%s: %s", alert.BrandName, alert.Kind),
			ActivitySubtitle: alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
			ActivityText:     alert.Message,
			Facts: []TeamsFact{
				{Name: "Current", Value: formatValue(alert.Alert, alert.Current)},
				{Name: "Threshold", Value: formatValue(alert.Alert, alert.Threshold)},
			},
			Markdown: true,
		})
	}

	return message
}

func formatValue(alert models.Alert, v float64) string {
	if alert.Kind == models.AlertNegative {
		return fmt.Sprintf("%.1f%%", v*100)
	}
	return fmt.Sprintf("%.1f", v)
}

func (s *Service) sendEmail(summary *models.RunSummary) error {
	subject := fmt.Sprintf("BrandRadar: %d alerts raised", len(summary.Alerts))

	htmlBody, err := buildEmailHTML(summary)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", buildEmailText(summary))
	m.AddAlternative("text/html", htmlBody)

	if err := s.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

var emailTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"value": formatValue,
}).Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>BrandRadar Alerts</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #d13438; color: white; padding: 20px; border-radius: 5px; }
        .alert { border-left: 4px solid #d13438; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .alert-title { font-weight: bold; margin-bottom: 5px; }
        .alert-meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>BrandRadar Alerts</h1>
        <p>{{.Summary}}</p>
    </div>

    {{range .Alerts}}
    <div class="alert">
        <div class="alert-title">{{.BrandName}}: {{.Kind}}</div>
        <p>{{.Message}}</p>
        <div class="alert-meta">Current {{value .Alert .Current}} | Threshold {{value .Alert .Threshold}}</div>
    </div>
    {{end}}

    <hr>
    <p><small>Run {{.RunID}} finished {{.FinishedAt.Format "January 2, 2006 at 3:04 PM UTC"}}.</small></p>
</body>
</html>
`))

func buildEmailHTML(summary *models.RunSummary) (string, error) {
	data := struct {
		Summary    string
		RunID      string
		FinishedAt time.Time
		Alerts     []alertView
	}{
		Summary:    summary.String(),
		RunID:      summary.RunID,
		FinishedAt: summary.FinishedAt.UTC(),
		Alerts:     alertViews(summary),
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func buildEmailText(summary *models.RunSummary) string {
	var text strings.Builder

	text.WriteString("BrandRadar Alerts\n")
	text.WriteString("=================\n")
	text.WriteString(summary.String() + "\n")

	for i, alert := range alertViews(summary) {
		text.WriteString(fmt.Sprintf("\n%d. %s: %s\n", i+1, alert.BrandName, alert.Kind))
		text.WriteString(fmt.Sprintf("   %s\n", alert.Message))
		text.WriteString(fmt.Sprintf("   Current: %s | Threshold: %s\n",
			formatValue(alert.Alert, alert.Current), formatValue(alert.Alert, alert.Threshold)))
	}

	text.WriteString(fmt.Sprintf("\n---\nRun %s\n", summary.RunID))

	return text.String()
}
