package redis

import "github.com/redis/go-redis/v9"

const (
	rotateStatusNotFound        int64 = 0
	rotateStatusRotated         int64 = 1
	rotateStatusAlreadyRevoked  int64 = 2
	rotateStatusDuplicateTarget int64 = 3
)

// KEYS: record, family set, user set, expiry zset
// ARGV: hash, user, family, generation, expires_ms, created_ms, ip, ua
const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "user_id", ARGV[2],
  "family_id", ARGV[3],
  "generation", ARGV[4],
  "revoked", "0",
  "revoked_at", "0",
  "expires_at", ARGV[5],
  "created_at", ARGV[6],
  "ip", ARGV[7],
  "ua", ARGV[8])
redis.call("SADD", KEYS[2], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[1])
redis.call("ZADD", KEYS[4], ARGV[5], ARGV[1])
return 1
`

var createLua = redis.NewScript(createScript)

// KEYS: record
// ARGV: revoked_at_ms
const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1", "revoked_at", ARGV[1])
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// KEYS: old record, new record, family set, user set, expiry zset
// ARGV: revoked_at_ms, new hash, user, family, generation, expires_ms, created_ms, ip, ua
const rotateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 2
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 3
end
redis.call("HSET", KEYS[1], "revoked", "1", "revoked_at", ARGV[1])
redis.call("HSET", KEYS[2],
  "user_id", ARGV[3],
  "family_id", ARGV[4],
  "generation", ARGV[5],
  "revoked", "0",
  "revoked_at", "0",
  "expires_at", ARGV[6],
  "created_at", ARGV[7],
  "ip", ARGV[8],
  "ua", ARGV[9])
redis.call("SADD", KEYS[3], ARGV[2])
redis.call("SADD", KEYS[4], ARGV[2])
redis.call("ZADD", KEYS[5], ARGV[6], ARGV[2])
return 1
`

var rotateLua = redis.NewScript(rotateScript)

// KEYS: index set (family or user)
// ARGV: record key prefix, revoked_at_ms
const revokeSetScript = `
local n = 0
local members = redis.call("SMEMBERS", KEYS[1])
for _, h in ipairs(members) do
  local key = ARGV[1] .. h
  if redis.call("EXISTS", key) == 1 then
    if redis.call("HGET", key, "revoked") ~= "1" then
      redis.call("HSET", key, "revoked", "1", "revoked_at", ARGV[2])
      n = n + 1
    end
  else
    redis.call("SREM", KEYS[1], h)
  end
end
return n
`

var revokeSetLua = redis.NewScript(revokeSetScript)

// KEYS: expiry zset
// ARGV: now_ms, record prefix, family prefix, user prefix, batch size
const deleteExpiredScript = `
local hashes = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", "0", ARGV[5])
for _, h in ipairs(hashes) do
  local key = ARGV[2] .. h
  local fields = redis.call("HMGET", key, "user_id", "family_id")
  if fields[1] then
    redis.call("SREM", ARGV[4] .. fields[1], h)
  end
  if fields[2] then
    redis.call("SREM", ARGV[3] .. fields[2], h)
  end
  redis.call("DEL", key)
  redis.call("ZREM", KEYS[1], h)
end
return #hashes
`

var deleteExpiredLua = redis.NewScript(deleteExpiredScript)
