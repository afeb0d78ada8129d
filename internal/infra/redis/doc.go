// Package redis provides the Redis-backed pieces of the console: a client
// with connection retry, a typed JSON cache used for the role hierarchy and
// a per-user lock shared between console instances.
package redis
