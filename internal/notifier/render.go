package notifier

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"finalword/internal/model"
)

const defaultFromName = "Final Word Service"

type mailData struct {
	Subject    string
	Text       string
	TypeLabel  string
	SenderName string
	BaseURL    string
	FinalWord  bool
}

var textTmpl = texttemplate.Must(texttemplate.New("text").Parse(`{{.Subject}}

{{.Text}}

--
{{if .FinalWord}}{{.SenderName}} asked us to send you this message if they stopped checking in.{{else}}{{.SenderName}} scheduled this {{.TypeLabel}} for you.{{end}}
{{if .BaseURL}}{{.BaseURL}}
{{end}}`))

var htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html><body>
<h2>{{.Subject}}</h2>
<p style="white-space: pre-wrap">{{.Text}}</p>
<hr>
<p><small>{{if .FinalWord}}{{.SenderName}} asked us to send you this message if they stopped checking in.{{else}}{{.SenderName}} scheduled this {{.TypeLabel}} for you.{{end}}
{{if .BaseURL}}<br><a href="{{.BaseURL}}">{{.BaseURL}}</a>{{end}}</small></p>
</body></html>
`))

// Render builds the plain-text and HTML parts of env.
func Render(env Envelope, cfg Config) (Mail, error) {
	sender := strings.TrimSpace(env.SenderName)
	if sender == "" {
		sender = "Someone"
	}
	d := mailData{
		Subject:    env.Subject,
		Text:       env.Text,
		TypeLabel:  strings.ToLower(env.Type.Label()),
		SenderName: sender,
		BaseURL:    strings.TrimSpace(cfg.BaseURL),
		FinalWord:  env.Type == model.FinalWord,
	}

	var tb, hb bytes.Buffer
	if err := textTmpl.Execute(&tb, d); err != nil {
		return Mail{}, fmt.Errorf("render text: %w", err)
	}
	if err := htmlTmpl.Execute(&hb, d); err != nil {
		return Mail{}, fmt.Errorf("render html: %w", err)
	}
	return Mail{
		From:    FromHeader(cfg.SMTP),
		To:      env.Recipients,
		Subject: env.Subject,
		Text:    tb.String(),
		HTML:    hb.String(),
	}, nil
}

// FromHeader formats `Name <address>`.
func FromHeader(c SMTPConfig) string {
	name := strings.TrimSpace(c.FromName)
	if name == "" {
		name = defaultFromName
	}
	addr := strings.TrimSpace(c.From)
	if addr == "" {
		addr = strings.TrimSpace(c.Username)
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}
