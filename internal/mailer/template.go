package mailer

import (
	"bytes"
	"html/template"
	"strings"
)

const shell = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Important Notice</title>
    <style>
        body, html { margin: 0; padding: 0; font-family: Arial, sans-serif; line-height: 1.6; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f4f4f4; border-radius: 8px; }
        .logo { text-align: center; margin-bottom: 20px; }
        .content { background-color: #ffffff; padding: 30px; border-radius: 8px; }
        .content p { margin-bottom: 15px; color: #555555; }
        .footer { text-align: center; margin-top: 20px; color: #888888; }
    </style>
</head>
<body>
    <div class="container">
        <div class="logo">
            <h1>{{.Brand}}</h1>
        </div>
        <div class="content">
            <h3>Dear {{.Brand}} User,</h3>
            <p style="font-size: 14px;">{{.Body}}</p>
        </div>
        <div class="footer">
            <p>Thank you</p>
            <p>{{.Brand}}</p>
        </div>
    </div>
</body>
</html>
`

var shellTmpl = template.Must(template.New("email").Parse(shell))

// RenderBody wraps escaped plain text in the HTML shell. Newlines become
// line breaks; any markup in the operator-supplied body is neutralized.
func RenderBody(brand, body string) (string, error) {
	escaped := template.HTMLEscapeString(body)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	escaped = strings.ReplaceAll(escaped, "\n", "<br>\n")

	var buf bytes.Buffer
	err := shellTmpl.Execute(&buf, struct {
		Brand string
		Body  template.HTML
	}{
		Brand: brand,
		Body:  template.HTML(escaped),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
