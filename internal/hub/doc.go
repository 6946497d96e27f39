// Package hub tracks live WebSocket connections and fans relay messages
// out to them.
//
// # Overview
//
// Every subscribed browser connection is a Client registered with the
// Hub. Broadcast delivers one identical message to each live client;
// there is no per-connection routing, acknowledgment, or replay. A
// client that disconnects mid-broadcast, or whose outbound buffer is
// full, is simply skipped.
//
// Messages to a single connection are emitted in broadcast call order
// by that client's write pump. No ordering holds across connections.
//
// # Lifecycle
//
//	conn, _ := upgrader.Upgrade(w, r, nil)
//	client := hub.NewClient(conn)
//	h.Add(client)
//	client.Run(h) // blocks until the peer goes away
//
// Run starts the write pump and blocks in the read pump; when the peer
// closes, the client removes itself from the hub and both pumps exit.
package hub
