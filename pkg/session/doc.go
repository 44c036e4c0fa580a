// Package session tracks login sessions. A session binds a user to a JWT;
// a token whose session was revoked or has expired is rejected.
//
// Two stores are provided: MemoryStore for single-process deployments and
// tests, and RedisStore for deployments with several replicas. Sessions
// expire after DefaultTTL (8 hours) unless configured otherwise.
package session
