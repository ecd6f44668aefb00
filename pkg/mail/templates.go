package mail

import (
	"bytes"
	_ "embed"
	"html/template"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"
)

// ConfirmationParams feeds the confirmation mail sent right after a support
// request is received.
type ConfirmationParams struct {
	DisplayName  string
	RequestText  string
	Language     string // "en" (default) or "de"
	BrandingName string

	// Derived, filled by the renderer
	Greeting string
	Closing  string
}

// ResponseParams feeds the response mail relayed when an operator answers a
// request from the chat channel.
type ResponseParams struct {
	DisplayName  string
	ResponseText string
	Language     string
	BrandingName string

	Greeting string
	Closing  string
}

var (
	confirmationHTMLTemplate = template.New("confirmationHTML").Funcs(sprig.HtmlFuncMap())
	confirmationTextTemplate = texttemplate.New("confirmationText").Funcs(sprig.FuncMap())
	responseHTMLTemplate     = template.New("responseHTML").Funcs(sprig.HtmlFuncMap())
	responseTextTemplate     = texttemplate.New("responseText").Funcs(sprig.FuncMap())

	//go:embed templates/confirmation.html.tmpl
	confirmationHTMLRaw string
	//go:embed templates/confirmation.txt.tmpl
	confirmationTextRaw string
	//go:embed templates/response.html.tmpl
	responseHTMLRaw string
	//go:embed templates/response.txt.tmpl
	responseTextRaw string
)

func init() {
	if _, err := confirmationHTMLTemplate.Parse(confirmationHTMLRaw); err != nil {
		panic(err)
	}
	if _, err := confirmationTextTemplate.Parse(confirmationTextRaw); err != nil {
		panic(err)
	}
	if _, err := responseHTMLTemplate.Parse(responseHTMLRaw); err != nil {
		panic(err)
	}
	if _, err := responseTextTemplate.Parse(responseTextRaw); err != nil {
		panic(err)
	}
}

func greeting(language, name string) string {
	if language == "de" {
		return "Hallo " + name + ","
	}
	return "Hello " + name + ","
}

func closing(language string) string {
	if language == "de" {
		return "Viele Grüße"
	}
	return "Best regards"
}

// RenderConfirmation returns the plain-text and HTML bodies of the
// confirmation mail.
func RenderConfirmation(p ConfirmationParams) (plain, html string, err error) {
	p.Greeting = greeting(p.Language, p.DisplayName)
	p.Closing = closing(p.Language)

	var tb bytes.Buffer
	if err = confirmationTextTemplate.Execute(&tb, p); err != nil {
		return "", "", err
	}
	var hb bytes.Buffer
	if err = confirmationHTMLTemplate.Execute(&hb, p); err != nil {
		return "", "", err
	}
	return tb.String(), hb.String(), nil
}

// RenderResponse returns the plain-text and HTML bodies of a relayed
// operator response.
func RenderResponse(p ResponseParams) (plain, html string, err error) {
	p.Greeting = greeting(p.Language, p.DisplayName)
	p.Closing = closing(p.Language)

	var tb bytes.Buffer
	if err = responseTextTemplate.Execute(&tb, p); err != nil {
		return "", "", err
	}
	var hb bytes.Buffer
	if err = responseHTMLTemplate.Execute(&hb, p); err != nil {
		return "", "", err
	}
	return tb.String(), hb.String(), nil
}

// ConfirmationSubject returns the localized subject line.
func ConfirmationSubject(language, brandingName string) string {
	if brandingName == "" {
		brandingName = "Support"
	}
	if language == "de" {
		return brandingName + ": Wir haben Ihre Anfrage erhalten"
	}
	return brandingName + ": We received your request"
}

// ResponseSubject returns the localized subject line for operator replies.
func ResponseSubject(language, brandingName string) string {
	if brandingName == "" {
		brandingName = "Support"
	}
	if language == "de" {
		return brandingName + ": Antwort auf Ihre Anfrage"
	}
	return brandingName + ": Response to your request"
}
