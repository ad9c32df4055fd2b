// Package appfs exposes the application's embedded assets and migrations.
package appfs

import "embed"

//go:embed all:assets migrations
var FS embed.FS
