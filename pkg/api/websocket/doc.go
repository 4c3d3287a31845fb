// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/runs/:id/ws to receive a run's lifecycle
// events as they happen.
package websocket
