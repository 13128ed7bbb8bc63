// Package redis provides a Redis client component with connection pooling,
// lifecycle management and health checks.
//
// It wraps go-redis with structured logging and key namespacing. Gustav uses
// it for the shared login state store, so that any worker can redeem a
// state created by another.
//
// # Typed Operations
//
// TypedStore provides generic JSON-serialized operations, including an
// atomic take-and-delete backed by GETDEL:
//
//	store := redis.NewTypedStore[Record](client, "auth:state")
//	rec, err := store.Take(ctx, id)
//
// # Quick Start
//
//	comp := redis.NewComponent(redis.Config{Addr: "localhost:6379"}, log,
//		redis.WithNamespace("auth:state"))
//	registry.Register(comp)
package redis
