// Package template renders the verification code email. Both the inline mail
// sender and the notification worker use it so the two delivery paths produce
// the same message.
package template

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	texttemplate "text/template"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
)

// ErrRender marks a template failure. Sending the same data again will not fix it.
var ErrRender = errors.New("template: render otp code")

//go:embed otp_code.html otp_code.txt
var files embed.FS

var (
	htmlTpl = htmltemplate.Must(htmltemplate.ParseFS(files, "otp_code.html"))
	textTpl = texttemplate.Must(texttemplate.ParseFS(files, "otp_code.txt"))
)

const (
	DefaultBrand   = "Tokicard"
	DefaultSubject = "Your Tokicard Verification Code"
)

type OTPCodeData struct {
	DisplayName string
	Code        string
	ExpiresIn   time.Duration
	Brand       string
	// Subject overrides DefaultSubject.
	Subject string
}

type Email struct {
	Subject string
	HTML    string
	Text    string
}

func RenderOTPCode(d OTPCodeData) (Email, error) {
	if d.Brand == "" {
		d.Brand = DefaultBrand
	}
	subject := d.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	view := struct {
		DisplayName string
		Code        string
		ExpiresIn   string
		Brand       string
	}{
		DisplayName: d.DisplayName,
		Code:        d.Code,
		ExpiresIn:   humanize(d.ExpiresIn),
		Brand:       d.Brand,
	}

	var html, text bytes.Buffer
	if err := htmlTpl.Execute(&html, view); err != nil {
		return Email{}, fmt.Errorf("%w: html: %w", ErrRender, err)
	}
	if err := textTpl.Execute(&text, view); err != nil {
		return Email{}, fmt.Errorf("%w: text: %w", ErrRender, err)
	}

	return Email{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}

// OTPCodeMessage renders the code email addressed to a single recipient. An
// empty from leaves the mail client's default sender in place.
func OTPCodeMessage(from, to string, d OTPCodeData) (mail.Message, error) {
	email, err := RenderOTPCode(d)
	if err != nil {
		return mail.Message{}, err
	}

	return mail.Message{
		From:     from,
		To:       []string{to},
		Subject:  email.Subject,
		TextBody: email.Text,
		HTMLBody: email.HTML,
	}, nil
}

// humanize renders whole minutes as "5 minutes", anything else in seconds.
func humanize(d time.Duration) string {
	if d <= 0 {
		return "a few minutes"
	}
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return strconv.Itoa(m) + " minutes"
	}
	s := int(d.Round(time.Second) / time.Second)
	if s == 1 {
		return "1 second"
	}
	return strconv.Itoa(s) + " seconds"
}
