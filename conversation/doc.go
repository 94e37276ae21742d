// Package conversation keeps per-identity dialogue state for a
// multi-channel agent. An in-process cache holds the live turn
// sequence for each channel+sender pair while a bridge restores
// bounded history from durable storage on first contact and persists
// the trimmed history after every completed turn.
//
// The cache is authoritative for the current process run. Durable
// storage is an eventually consistent mirror: persist failures are
// logged and surfaced but never abort a turn, and a corrupt or
// mis-tagged durable entry degrades to an empty history instead of
// leaking another identity's context.
package conversation
