package redis

import "github.com/redis/go-redis/v9"

// consumeScript marks KEYS[1] used by setting its state key KEYS[2] once, for as long as the record lives.
// Revocation writes the same state key, so a revoked record cannot be consumed.
var consumeScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl == -2 then
	return -1
end
if ttl < 0 then
	ttl = tonumber(ARGV[1])
end
if redis.call('SET', KEYS[2], 'consumed', 'NX', 'PX', ttl) then
	return 1
end
return 0
`)

// revokeDeviceScript flags an existing device code hash; a missing key is left alone
var revokeDeviceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'revoked', '1')
return 1
`)

// revokeScript sets the state key of an existing record, keeping it as long as the record
var revokeScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	return 0
end
redis.call('SET', KEYS[2], 'revoked', 'PX', ttl)
return 1
`)

// saveDeviceScript indexes the user code and writes the device code hash, failing on either collision
var saveDeviceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
if not redis.call('SET', KEYS[2], ARGV[2], 'NX', 'PX', ARGV[1]) then
	return 0
end
for i = 3, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`)

// touchDeviceScript stores a new poll time and returns the previous one (empty if never polled)
var touchDeviceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local prev = redis.call('HGET', KEYS[1], 'last_polled_at')
redis.call('HSET', KEYS[1], 'last_polled_at', ARGV[1])
if not prev then
	return ''
end
return prev
`)

// transitionDeviceScript moves status from ARGV[1] to ARGV[2] for a live code.
// ARGV[3] is the user id to record (empty keeps the current one); ARGV[4] = '1' also consumes.
var transitionDeviceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local fields = redis.call('HMGET', KEYS[1], 'status', 'revoked', 'consumed')
if fields[1] ~= ARGV[1] or fields[2] == '1' or fields[3] == '1' then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
if ARGV[3] ~= '' then
	redis.call('HSET', KEYS[1], 'user_id', ARGV[3])
end
if ARGV[4] == '1' then
	redis.call('HSET', KEYS[1], 'consumed', '1')
end
return 1
`)
