// Package session stores authenticated sessions behind an opaque cookie.
//
// The cookie carries only the session id; subject, roles and display name
// stay server-side. MemoryStore drops expired sessions when they are read.
// DBStore filters them in the query and relies on DeleteExpired, run by
// "gustav sessions sweep", to reclaim storage.
package session
