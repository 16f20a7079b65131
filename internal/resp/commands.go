package resp

// keySchema classifies how a command's routing key(s) are positioned among
// its arguments. The table is necessarily hand-maintained: Redis has no
// machine-readable command/key-position registry a proxy can consult.
type keySchema int

const (
	schemaNoKey keySchema = iota
	schemaFirstArg
	schemaEveryArg    // MGET k1 k2 k3 — every remaining arg is its own key
	schemaEveryOther  // MSET k1 v1 k2 v2 — every other arg starting at index 1
	schemaLocal       // answered by the proxy itself, never forwarded
)

var commandSchema = map[string]keySchema{
	// single-key
	"GET": schemaFirstArg, "SET": schemaFirstArg, "SETNX": schemaFirstArg,
	"SETEX": schemaFirstArg, "PSETEX": schemaFirstArg, "APPEND": schemaFirstArg,
	"SETRANGE": schemaFirstArg, "GETRANGE": schemaFirstArg,
	"INCR": schemaFirstArg, "INCRBY": schemaFirstArg, "INCRBYFLOAT": schemaFirstArg,
	"DECR": schemaFirstArg, "DECRBY": schemaFirstArg,
	"GETSET": schemaFirstArg, "GETDEL": schemaFirstArg, "GETEX": schemaFirstArg,
	"TYPE": schemaFirstArg, "TTL": schemaFirstArg, "PTTL": schemaFirstArg,
	"EXPIRE": schemaFirstArg, "EXPIREAT": schemaFirstArg,
	"PEXPIRE": schemaFirstArg, "PEXPIREAT": schemaFirstArg, "PERSIST": schemaFirstArg,
	"DUMP": schemaFirstArg, "RESTORE": schemaFirstArg,
	"HSET": schemaFirstArg, "HSETNX": schemaFirstArg, "HMSET": schemaFirstArg,
	"HGET": schemaFirstArg, "HMGET": schemaFirstArg, "HGETALL": schemaFirstArg,
	"HDEL": schemaFirstArg, "HINCRBY": schemaFirstArg, "HINCRBYFLOAT": schemaFirstArg,
	"HKEYS": schemaFirstArg, "HVALS": schemaFirstArg, "HLEN": schemaFirstArg,
	"HEXISTS": schemaFirstArg, "HSCAN": schemaFirstArg,
	"LPUSH": schemaFirstArg, "LPUSHX": schemaFirstArg, "RPUSH": schemaFirstArg, "RPUSHX": schemaFirstArg,
	"LPOP": schemaFirstArg, "RPOP": schemaFirstArg, "LLEN": schemaFirstArg,
	"LRANGE": schemaFirstArg, "LREM": schemaFirstArg, "LSET": schemaFirstArg,
	"LTRIM": schemaFirstArg, "LINDEX": schemaFirstArg, "LINSERT": schemaFirstArg,
	"SADD": schemaFirstArg, "SREM": schemaFirstArg, "SPOP": schemaFirstArg,
	"SMEMBERS": schemaFirstArg, "SCARD": schemaFirstArg, "SISMEMBER": schemaFirstArg,
	"SRANDMEMBER": schemaFirstArg, "SSCAN": schemaFirstArg,
	"ZADD": schemaFirstArg, "ZREM": schemaFirstArg, "ZSCORE": schemaFirstArg,
	"ZINCRBY": schemaFirstArg, "ZCARD": schemaFirstArg, "ZRANK": schemaFirstArg,
	"ZRANGE": schemaFirstArg, "ZREVRANGE": schemaFirstArg, "ZRANGEBYSCORE": schemaFirstArg,
	"ZREMRANGEBYSCORE": schemaFirstArg, "ZREMRANGEBYRANK": schemaFirstArg, "ZSCAN": schemaFirstArg,
	"XADD": schemaFirstArg, "XLEN": schemaFirstArg, "XRANGE": schemaFirstArg,
	"XTRIM": schemaFirstArg, "XDEL": schemaFirstArg,
	"SETBIT": schemaFirstArg, "GETBIT": schemaFirstArg, "BITCOUNT": schemaFirstArg, "BITFIELD": schemaFirstArg,
	"PFADD": schemaFirstArg, "GEOADD": schemaFirstArg,

	// multi-key, one key per argument
	"MGET": schemaEveryArg, "DEL": schemaEveryArg, "UNLINK": schemaEveryArg,
	"EXISTS": schemaEveryArg, "TOUCH": schemaEveryArg,
	"SDIFF": schemaEveryArg, "SINTER": schemaEveryArg, "SUNION": schemaEveryArg,
	"PFCOUNT": schemaEveryArg, "PFMERGE": schemaEveryArg,

	// multi-key, key/value pairs
	"MSET": schemaEveryOther, "MSETNX": schemaEveryOther,

	// answered locally, never forwarded
	"PING": schemaLocal, "ECHO": schemaLocal,

	// no routing key: server/connection scoped
	"AUTH": schemaNoKey, "SELECT": schemaNoKey, "SWAPDB": schemaNoKey,
	"INFO": schemaNoKey, "CLIENT": schemaNoKey, "CLUSTER": schemaNoKey,
	"CONFIG": schemaNoKey, "COMMAND": schemaNoKey, "DBSIZE": schemaNoKey,
	"FLUSHDB": schemaNoKey, "FLUSHALL": schemaNoKey, "SHUTDOWN": schemaNoKey,
	"SAVE": schemaNoKey, "BGSAVE": schemaNoKey, "BGREWRITEAOF": schemaNoKey,
	"DEBUG": schemaNoKey, "MONITOR": schemaNoKey, "SLOWLOG": schemaNoKey,
	"LATENCY": schemaNoKey, "SYNC": schemaNoKey, "PSYNC": schemaNoKey,
	"REPLCONF": schemaNoKey, "SLAVEOF": schemaNoKey, "REPLICAOF": schemaNoKey,
	"SCRIPT": schemaNoKey, "MULTI": schemaNoKey, "EXEC": schemaNoKey,
	"DISCARD": schemaNoKey, "WATCH": schemaEveryArg, "UNWATCH": schemaNoKey,
	"SUBSCRIBE": schemaNoKey, "UNSUBSCRIBE": schemaNoKey, "PUBLISH": schemaNoKey,
	"MODULE": schemaNoKey, "ACL": schemaNoKey,
}

// AdminCommands are commands that can alter or inspect server-wide state in
// ways the proxy may want to block before they reach any backend.
var AdminCommands = map[string]bool{
	"FLUSHDB": true, "FLUSHALL": true, "SHUTDOWN": true, "DEBUG": true,
	"CONFIG": true, "SAVE": true, "BGSAVE": true, "BGREWRITEAOF": true,
	"SYNC": true, "PSYNC": true, "REPLCONF": true, "SLAVEOF": true, "REPLICAOF": true,
	"MONITOR": true, "EVAL": true, "EVALSHA": true, "SCRIPT": true,
	"MIGRATE": true, "CLUSTER": true, "MODULE": true, "ACL": true,
}

var writeCommands = map[string]bool{
	"SET": true, "SETNX": true, "SETEX": true, "PSETEX": true,
	"MSET": true, "MSETNX": true, "APPEND": true, "SETRANGE": true,
	"INCR": true, "INCRBY": true, "INCRBYFLOAT": true,
	"DECR": true, "DECRBY": true, "GETSET": true, "GETDEL": true,
	"DEL": true, "UNLINK": true,
	"EXPIRE": true, "EXPIREAT": true, "PEXPIRE": true, "PEXPIREAT": true,
	"PERSIST": true, "RENAME": true, "RENAMENX": true, "RESTORE": true, "MIGRATE": true,
	"HSET": true, "HSETNX": true, "HMSET": true, "HINCRBY": true, "HINCRBYFLOAT": true, "HDEL": true,
	"LPUSH": true, "LPUSHX": true, "RPUSH": true, "RPUSHX": true,
	"LPOP": true, "RPOP": true, "BLPOP": true, "BRPOP": true,
	"LREM": true, "LSET": true, "LTRIM": true, "LINSERT": true,
	"RPOPLPUSH": true, "BRPOPLPUSH": true, "LMOVE": true, "BLMOVE": true,
	"SADD": true, "SREM": true, "SPOP": true, "SMOVE": true,
	"ZADD": true, "ZREM": true, "ZINCRBY": true,
	"ZREMRANGEBYSCORE": true, "ZREMRANGEBYRANK": true, "ZREMRANGEBYLEX": true,
	"ZPOPMIN": true, "ZPOPMAX": true, "BZPOPMIN": true, "BZPOPMAX": true,
	"XADD": true, "XDEL": true, "XTRIM": true, "XACK": true, "XGROUP": true, "XCLAIM": true,
	"SETBIT": true, "BITFIELD": true, "PFADD": true, "PFMERGE": true, "GEOADD": true,
	"FLUSHDB": true, "FLUSHALL": true, "SWAPDB": true,
	"MULTI": true, "EXEC": true, "DISCARD": true, "WATCH": true, "UNWATCH": true,
	"PUBLISH": true, "EVAL": true, "EVALSHA": true, "SCRIPT": true,
}

// keysFor extracts routing keys according to the command's schema. Unknown
// commands are treated as schemaNoKey so they fall back to the pool's
// no_key_policy rather than panicking on an unmaintained table entry.
func keysFor(m Message) [][]byte {
	if len(m.Args) < 2 {
		return nil
	}
	switch commandSchema[m.Command()] {
	case schemaFirstArg:
		return [][]byte{m.Args[1]}
	case schemaEveryArg:
		keys := make([][]byte, 0, len(m.Args)-1)
		for _, a := range m.Args[1:] {
			keys = append(keys, a)
		}
		return keys
	case schemaEveryOther:
		keys := make([][]byte, 0, (len(m.Args)-1+1)/2)
		for i := 1; i < len(m.Args); i += 2 {
			keys = append(keys, m.Args[i])
		}
		return keys
	default:
		return nil
	}
}

// IsLocal reports whether the command is answered by the proxy itself
// without being forwarded to any backend: PING/ECHO get a proxy-local
// reply since no backend round trip is meaningful for a liveness probe
// against a sharded fleet.
func (m Message) IsLocal() bool {
	return commandSchema[m.Command()] == schemaLocal
}
