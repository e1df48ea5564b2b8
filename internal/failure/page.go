package failure

import (
	"bytes"
	"html"
	"html/template"
	"os"
	"strings"
)

const messagePlaceholder = "{{message}}"

var defaultPage = template.Must(template.New("unlicensed").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Unlicensed Software</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; background: #f4f4f5; }
        .modal { max-width: 480px; margin: 12vh auto; padding: 32px; background: #fff; border-radius: 8px; box-shadow: 0 4px 24px rgba(0,0,0,.12); }
        h1 { margin-top: 0; color: #721c24; }
    </style>
</head>
<body>
    <div class="modal">
        <h1>Unlicensed Software</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

// RenderPage returns the modal HTML for message. A readable view file has
// its {{message}} placeholders replaced with the escaped message; otherwise
// the built-in page is used.
func RenderPage(viewPath, message string) string {
	if viewPath != "" {
		if data, err := os.ReadFile(viewPath); err == nil {
			return strings.ReplaceAll(string(data), messagePlaceholder, html.EscapeString(message))
		}
	}

	var buf bytes.Buffer
	if err := defaultPage.Execute(&buf, struct{ Message string }{message}); err != nil {
		return "<h1>Unlicensed Software</h1><p>" + html.EscapeString(message) + "</p>"
	}
	return buf.String()
}
