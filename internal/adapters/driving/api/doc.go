// Package api serves the guest-facing chat API over HTTP using echo.
//
// Routes:
//
//	POST /api/conversations                 start a conversation
//	GET  /api/conversations                 list the guest's conversations
//	GET  /api/conversations/:id             conversation with messages
//	POST /api/conversations/:id/end         end a conversation
//	POST /api/conversations/:id/messages    send a message, answered as SSE
//	POST /api/messages/:id/feedback         feedback on an assistant message
//	GET  /healthz                           store health
//
// Guests are identified by a long-lived cookie or the X-Guest-ID header.
package api
