// Package web holds the browser page served at the root route.
package web

import (
	_ "embed"
	"html/template"
)

//go:embed index.html
var indexHTML string

// Index is the page template; it expects a PageData value.
var Index = template.Must(template.New("index").Parse(indexHTML))

// PageData is rendered into the page.
type PageData struct {
	AppName   string
	ModelName string
}
