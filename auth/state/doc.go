// Package state stores in-flight OIDC login attempts.
//
// An attempt is created when the browser is sent to the identity provider
// and redeemed exactly once by the callback. PopValid is the only replay
// defense of the login flow: the callback must refuse any state it cannot
// pop. MemoryStore suits a single process; RedisStore is required when
// several workers serve callbacks.
package state
