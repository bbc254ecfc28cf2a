// Package preview streams the rendered LED array to browsers.
//
// [Hub] implements the render sink interface and is mounted at "/ws" by the
// HTTP server. The dashboard draws each LED from the latest "activity"
// message using the positions from the "positions" message.
package preview
