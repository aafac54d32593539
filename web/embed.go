// Package web embeds the single-page dashboard served by the API server.
//
// Usage in the API server:
//
//	import "github.com/srrmlwn/dealflowanalyzer.ai/web"
//	fs := web.DashboardFS() // io/fs.FS rooted at dashboard/
package web

import (
	"embed"
	"io/fs"
	"log"
)

//go:embed all:dashboard
var dist embed.FS

// DashboardFS returns a filesystem rooted at the embedded dashboard/ directory.
// This is ready to use with http.FileServerFS or http.FS.
func DashboardFS() fs.FS {
	sub, err := fs.Sub(dist, "dashboard")
	if err != nil {
		log.Fatalf("web.DashboardFS: %v", err)
	}
	return sub
}
