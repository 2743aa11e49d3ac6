// Package panel serves the browser switch panel.
//
// The panel is a single static page with no build step. It lists devices
// from GET /api/devices, polls GET /api/states, and toggles through
// POST /api/toggle/{device}. The assets are embedded with go:embed so the
// binary has no runtime file dependency.
package panel
