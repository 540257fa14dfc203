// Package redis provides a spool store on Redis using github.com/redis/go-redis/v9.
//
// Layout, with every key sharing the {prefix} hash tag so a cluster keeps them on
// one slot:
//
//	{prefix}:payload  hash  id -> payload
//	{prefix}:queued   zset  unclaimed ids, score 0 so members sort by id
//	{prefix}:claimed  zset  claimed ids scored by claim time in unix milliseconds
//
// Claim, delete and recovery run as Lua scripts and are therefore atomic.
package redis
