// Package journey decides whether an incoming trip continues the user's
// current journey or starts a new one.
//
// The decision is a pure function of the last stored trip, the incoming
// status, the delivery reason, the user's break mode and the trips of the
// current journey. Engine applies a decision: it persists the break mode
// transition and, on a break, deletes the user's trips and message records.
//
// Rules, first match wins:
//
//  1. a checkout for a train already in the journey never breaks
//  2. the same train as the last trip never breaks
//  3. FORCE_BREAK breaks once, then reverts to NATURAL
//  4. FORCE_GLUE continues once, then reverts to NATURAL
//  5. FORCE_GLUE_LATCH continues until changed
//  6. NATURAL breaks if the change is more than 2 km apart (unless either
//     trip was entered by hand) or takes more than 2 hours
package journey
