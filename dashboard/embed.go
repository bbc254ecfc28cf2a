// Package dashboard provides the embedded web UI assets for the simulator.
//
// This package uses Go's embed directive to include the dashboard HTML, CSS,
// and JavaScript at compile time. This enables single-binary deployment
// without external asset files.
//
// The embedded assets are served by the server package at the root path ("/").
// The page draws the LED array from the /ws preview feed, starts activation
// runs and lists progress from /events.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Main dashboard page with inline CSS and JavaScript
//
// The "{{.Title}}" placeholders in index.html are replaced with the
// HTML-escaped title when the page is served.
//
//go:embed assets/*
var Assets embed.FS
