package email

import (
	"context"
	"fmt"

	"groupnotify/internal/domain/dispatch"

	"github.com/wneessen/go-mail"
)

var _ dispatch.Provider = (*SMTPProvider)(nil)

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	Encryption  string // "none", "starttls", "ssl_tls"
	FromAddress string
	FromName    string
}

// SMTPProvider delivers email through an SMTP relay using go-mail.
type SMTPProvider struct {
	config   SMTPConfig
	renderer Renderer
}

// NewSMTPProvider creates a new SMTP email provider.
func NewSMTPProvider(config SMTPConfig, renderer Renderer) *SMTPProvider {
	return &SMTPProvider{config: config, renderer: renderer}
}

// Method returns the email delivery method.
func (p *SMTPProvider) Method() string {
	return Method
}

// Send delivers msg using the configured SMTP server. SMTP has no message ID
// to report, so the returned ID is the Message-ID header go-mail generated.
func (p *SMTPProvider) Send(ctx context.Context, msg *dispatch.Message) (string, error) {
	m, err := p.build(msg)
	if err != nil {
		return "", err
	}

	c, err := mail.NewClient(p.config.Host, p.clientOptions()...)
	if err != nil {
		return "", fmt.Errorf("creating mail client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}

	ids := m.GetGenHeader(mail.HeaderMessageID)
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

func (p *SMTPProvider) build(msg *dispatch.Message) (*mail.Msg, error) {
	if msg.To == nil || msg.To.Email == "" {
		return nil, fmt.Errorf("recipient has no email address")
	}

	m := mail.NewMsg()
	if err := m.From(formatFrom(p.config.FromName, p.config.FromAddress)); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To.Email); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To.Email, err)
	}
	m.Subject(msg.Subject)
	m.SetMessageID()

	// Plain-text first, HTML as the alternative part.
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if p.renderer != nil {
		if html, _, err := p.renderer.Render(msg.Subject, msg.Body); err == nil {
			m.AddAlternativeString(mail.TypeTextHTML, html)
		}
	}
	return m, nil
}

func (p *SMTPProvider) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(p.config.Port),
		mail.WithTLSPolicy(tlsPolicyFromEncryption(p.config.Encryption)),
	}
	if p.config.Encryption == "ssl_tls" {
		opts = append(opts, mail.WithSSL())
	}
	if p.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(p.config.Username),
			mail.WithPassword(p.config.Password),
		)
	}
	return opts
}

// tlsPolicyFromEncryption converts the encryption setting to a go-mail TLSPolicy.
func tlsPolicyFromEncryption(enc string) mail.TLSPolicy {
	switch enc {
	case "ssl_tls":
		return mail.TLSMandatory
	case "starttls":
		return mail.TLSOpportunistic
	default:
		return mail.NoTLS
	}
}
