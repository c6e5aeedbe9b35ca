package static

import (
	"embed"
	"io/fs"
)

//go:embed *.js *.css
var files embed.FS

// FS holds the stylesheet and the browser scripts.
func FS() fs.FS {
	return files
}
