// Package gmail wraps the Gmail API for the two read operations this server
// exposes: listing unread messages and searching with a Gmail query.
//
// Both operations list matching message ids and then resolve each id to a
// summary (subject, sender, date, snippet) with a metadata-format get. A
// failed per-message resolution drops that message from the result and logs
// a warning; the call as a whole fails only when every resolution fails.
// Result order is the relevance order returned by the API.
//
// Upstream quota and server errors are classified as UpstreamError so
// callers can distinguish "retry later" from invalid input.
package gmail
