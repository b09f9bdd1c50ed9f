// Package messenger is a framed-TCP implementation of chain.Messenger,
// grounded on the teacher's rpc/transport/base package: one persistent
// connection per remote instance, a length-prefixed frame format, and a
// background reader goroutine per connection feeding a dispatch handler.
//
// Unlike rpc/transport/base's client/server split (a client sends a
// request and blocks for a matching response keyed by request ID), this
// module's protocol is peer-to-peer and fire-and-forget: any instance can
// send a CHAIN_PUT/DEL/SUBSPACE/ACK to any other at any time, and replies
// (if any) arrive later as their own independent sends, not as responses
// correlated by request ID. So there is one connection per ordered pair
// of instances that have ever spoken, used for both directions' traffic
// once established, rather than a request/response round trip.
package messenger
