// Package gateway orchestrates the aq-gateway relay server components.
//
// # Overview
//
// The gateway package is the central coordinator of the relay. It owns
// the HTTP server and wires together the live-connection hub, the
// pending-request registry, the webhook token codec, the agent store,
// and the upstream API client.
//
// # Request lifecycle
//
// A job flows through the relay like this:
//
//  1. POST /api/submit selects an agent, mints a fresh request ID, and
//     registers it in the pending registry.
//  2. The submission is forwarded upstream as a multipart request whose
//     webhook_url embeds the request ID and a derived token.
//  3. The upstream API eventually calls POST /webhook/{requestID}.
//  4. The handler authenticates the callback, resolves the credential
//     via the registry, and dispatches on the aq-event-type header:
//
//     - "response" (terminal): the payload is broadcast to every live
//       WebSocket connection as {"id": ..., "content": ...} and the
//       pending entry is cleared.
//     - "review" (non-terminal): a delayed advance call auto-approves
//       the checkpoint upstream; the pending entry survives.
//     - anything else: acknowledged and ignored.
//
// # Pending state
//
// There is no stored status field. A request is "pending" exactly while
// its registry entry exists; the terminal callback is the only path
// that ends that lifecycle.
//
// # Authentication
//
// Inbound webhooks are authenticated by recomputing the token from the
// request ID and the shared secret. Without a configured secret the
// relay still runs, but verification is skipped entirely; this insecure
// mode is logged at startup. WebSocket listeners themselves are not
// authenticated.
//
// # HTTP API
//
//   - POST /webhook/{requestID}     - upstream callback ingress
//   - GET  /ws                      - live-connection subscription
//   - POST /api/webhooks/register   - callback URL for an external request ID
//   - POST /api/submit              - multipart job submission
//   - GET  /api/agents              - list agent definitions (redacted)
//   - POST /api/agents              - create/update an agent (admin token)
//   - DELETE /api/agents/{name}     - remove an agent (admin token)
//   - GET  /health                  - liveness plus connection counts
//   - GET  /                        - embedded admin page
package gateway
