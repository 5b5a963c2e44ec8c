// Package gateway orchestrates the nexial-gateway server components.
//
// # Overview
//
// The Gateway owns the store, the conversation service, the live session
// directory, the assistant client and the HTTP server. New wires them
// together; Run serves until its context is canceled and then shuts down.
//
// # HTTP API
//
//   - GET  /                          - Service banner
//   - GET  /health                    - Liveness check
//   - GET  /health/ready              - Readiness check (store ping)
//   - POST /auth/register             - Create an account, returns a token
//   - POST /auth/login                - Exchange credentials for a token
//   - GET  /auth/me                   - Current user
//   - GET  /chat/contacts             - Every other user
//   - GET  /chat/messages/{otherID}   - Conversation history (?after, ?limit)
//   - POST /chat/send                 - Send a direct message
//   - POST /chat/assistant            - Ask the assistant
//   - GET  /ws                        - Live session
//
// # WebSocket
//
// A client sends
//
//	{"type": "send_message", "id": "c-1", "receiver_id": "...", "content": "hi"}
//
// and receives a message_sent ack carrying the persisted message, or an
// error event. The receiver, if online, gets a new_message event. A second
// connection for the same user replaces the first, which is closed with code
// 4001.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//	...
//	cancel()
package gateway
