// Package startup holds build information and the structured startup and
// shutdown logging used by main.
package startup
