// Package frontend is the HTTP front door a chainkv process exposes to
// clients: a JSON gateway that turns PUT/DELETE requests into
// chain/replication.Manager.ClientAtomic/ClientDel calls and implements
// chain.Responder to deliver the result back to the waiting request.
//
// spec.md's external-interfaces section defines the wire form chain
// peers speak (CHAIN_PUT/DEL/SUBSPACE/ACK, client response) but - by its
// own Responder doc comment - deliberately leaves how a client request
// reaches the replication core "out of scope for this core beyond this
// one call". This package is that out-of-scope glue, grounded on the
// teacher's rpc/transport/http package: a net/http.ServeMux with one
// handler per verb, and a middleware that logs the way
// rpc/transport/http's loggerMiddleware does.
//
// Routing across instances is intentionally not implemented: a request
// whose key hashes to a region this process does not host is answered
// with a "wrong instance" response naming the instance that does, rather
// than forwarded - the same division of labor HyperDex's own client
// gives the caller (resolve the routing table yourself, dial the right
// host). chain.MsgClientResponse, the wire form spec.md defines for a
// cross-instance reply, is never exercised by this package as a result:
// Responder.Reply is always called by the same Manager instance that
// accepted the request, so settling the waiting request is a local map
// lookup, not a network hop.
package frontend
