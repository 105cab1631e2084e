// Package web holds the pages served by panelhttpd.
package web

import (
	"embed"
	"io/fs"
)

//go:embed content
var content embed.FS

// FS returns the document root.
func FS() fs.FS {
	sub, err := fs.Sub(content, "content")
	if err != nil {
		panic(err)
	}
	return sub
}
