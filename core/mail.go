package core

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"
)

//go:embed all:templates/email
var templatesFS embed.FS

const (
	emailTemplatesDir = "templates/email"
	textExt           = ".txt"
	htmlExt           = ".gohtml"
)

type (
	// EmailMessage is either a plain text message (BodyStr) or a templated one (TemplateName).
	// Render fills TextContent and HTMLContent.
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string

		TemplateName string // file name without ext, under templates/email
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}

	// EmailContext is what the templates see: the message data under .Data next to the app settings.
	EmailContext struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	emailTemplates struct {
		mu   sync.RWMutex
		base EmailContext
		text map[string]*texttmpl.Template
		html map[string]*htmltmpl.Template
	}
)

var mailTemplates emailTemplates

// Render renders the message bodies. A templated message needs ParseEmailTemplates to have run.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" {
		return nil
	}
	return mailTemplates.render(m)
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// Recipients returns every address the message goes to, cc and bcc included.
func (m *EmailMessage) Recipients() []mail.Address {
	all := make([]mail.Address, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	all = append(all, m.To...)
	all = append(all, m.Cc...)
	return append(all, m.Bcc...)
}

func (t *emailTemplates) render(m *EmailMessage) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	txt, hasText := t.text[m.TemplateName]
	html, hasHTML := t.html[m.TemplateName]
	if !hasText && !hasHTML {
		return fmt.Errorf("unknown email template %q", m.TemplateName)
	}

	data := t.base
	data.Data = m.TemplateData

	var buff bytes.Buffer
	if hasText {
		if err := txt.Execute(&buff, data); err != nil {
			return fmt.Errorf("rendering %s%s: %w", m.TemplateName, textExt, err)
		}
		m.TextContent = buff.String()
		buff.Reset()
	}
	if hasHTML {
		if err := html.Execute(&buff, data); err != nil {
			return fmt.Errorf("rendering %s%s: %w", m.TemplateName, htmlExt, err)
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

// ParseEmailTemplates parses the embedded email templates once at startup.
// Each template is rendered within the matching _base layout.
// Missing template keys fail the rendering in debug and test modes.
func ParseEmailTemplates(conf *Config, logger Logger) {
	mailTemplates.mu.Lock()
	defer mailTemplates.mu.Unlock()

	mailTemplates.base = EmailContext{AppName: conf.AppName, FrontendBaseURL: conf.FrontendBaseURL}
	mailTemplates.text = make(map[string]*texttmpl.Template)
	mailTemplates.html = make(map[string]*htmltmpl.Template)
	missingKey := "missingkey=default"
	if conf.Debug || conf.TestMode {
		missingKey = "missingkey=error"
	}

	fps, err := fs.Glob(templatesFS, path.Join(emailTemplatesDir, "*"))
	if err != nil {
		logger.Error("listing email templates", err)
		return
	}
	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		layout := path.Join(emailTemplatesDir, "_base"+ext)

		switch ext {
		case textExt:
			tmpl, err := texttmpl.ParseFS(templatesFS, layout, fp)
			if err != nil {
				logger.Error("parsing email template "+fname, err)
				continue
			}
			mailTemplates.text[name] = tmpl.Option(missingKey)
		case htmlExt:
			tmpl, err := htmltmpl.ParseFS(templatesFS, layout, fp)
			if err != nil {
				logger.Error("parsing email template "+fname, err)
				continue
			}
			mailTemplates.html[name] = tmpl.Option(missingKey)
		}
	}
}
