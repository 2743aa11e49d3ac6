// Package api implements the HTTP API for reading and switching devices.
//
// Routes (mounted under /api and under the configured function prefix):
//
//	GET  /states           full snapshot {"led1":false,"led2":true}
//	POST /toggle/{device}  flip one device, or every device for "all"/"both"
//	POST /set/{device}     body {"state":true}; assign one device
//	GET  /devices          device metadata for the panel
//	GET  /health           process and store health
//
// Errors are JSON {"error": message, "code": code}. Validation failures are
// 400 and never touch the store. Store failures are 500 with a generic
// message; the cause is logged with the request ID.
//
// Toggle and set are read-modify-write against one shared snapshot with no
// isolation. Concurrent mutations can lose updates; the last write wins.
package api
