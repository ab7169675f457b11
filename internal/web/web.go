package web

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/index.html
var templates embed.FS

var indexTemplate = template.Must(template.ParseFS(templates, "templates/index.html"))

// IndexData feeds the chat page.
type IndexData struct {
	Title        string
	AIConfigured bool
}

// RenderIndex writes the chat page.
func RenderIndex(w io.Writer, data IndexData) error {
	return indexTemplate.Execute(w, data)
}
