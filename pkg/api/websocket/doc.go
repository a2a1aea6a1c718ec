// Package websocket streams orchestration events to browsers.
//
// Clients connect to /api/v1/sessions/:id/ws and receive every event of that
// session as a JSON text message. The connection is closed after the session
// completes or fails.
package websocket
