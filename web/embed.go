// Package web holds the built browser bundle served by the hub. The
// rendering layer itself is developed out of tree; this package only
// embeds its dist output.
package web

import (
	"embed"
	"io/fs"
)

//go:embed dist
var dist embed.FS

// FS is the dist tree with the "dist" prefix stripped, so paths are
// "index.html", "assets/...", etc.
var FS, _ = fs.Sub(dist, "dist")
