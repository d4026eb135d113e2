/*
Package events carries the CORE's collaborator ports: the typed event
vocabulary, the fire-and-forget Sink the RT components publish through,
the Non-RT Broker that fans events out to subscribers, and the Watcher
that turns quiescent data-store writes into DATASTORE_CHANGED events.

Publication is best-effort everywhere. The RT path never blocks on a
slow consumer; overflow drops the event and counts it.
*/
package events
