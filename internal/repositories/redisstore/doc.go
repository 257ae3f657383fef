// Package redisstore implements the challenge, rate-window and session
// repositories on Redis. Every conditional mutation is either a Lua script or
// a WATCH/MULTI transaction so concurrent callers resolve deterministically.
package redisstore
