// Package ws implements the WebSocket push channel of the dashboard.
//
// Hub keeps a set of connected clients and sends each of them the current
// dashboard view: once on connect, after every render (Hub.Notify is wired
// as a render hook) and on a broadcast interval (default 5s).
//
// Message format sent to clients:
//
//	{
//	  "event": "view",
//	  "data":  { /* same schema as GET /api/v1/dashboard */ }
//	}
//
// The server mounts the hub at /ws/stream.
package ws
