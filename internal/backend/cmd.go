package backend

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"synchrotron/internal/resp"
)

// buildCmd dispatches a Message to the typed go-redis Pipeliner method for
// commands common enough to warrant one — this is what lets resp.FromCmd
// tell a simple-string "+OK" apart from a bulk "$2\r\nOK\r\n" on the wire,
// something the generic Do() reply loses. Anything not covered here still
// works correctly end to end via the generic fallback; it just renders
// through fromGeneric's looser type mapping.
func buildCmd(ctx context.Context, pipe redis.Pipeliner, m resp.Message) redis.Cmder {
	args := m.Args
	switch m.Command() {
	case "GET":
		if len(args) == 2 {
			return pipe.Get(ctx, string(args[1]))
		}
	case "SET":
		if len(args) == 3 {
			return pipe.Set(ctx, string(args[1]), args[2], 0)
		}
	case "DEL":
		if len(args) >= 2 {
			return pipe.Del(ctx, stringsOf(args[1:])...)
		}
	case "UNLINK":
		if len(args) >= 2 {
			return pipe.Unlink(ctx, stringsOf(args[1:])...)
		}
	case "EXISTS":
		if len(args) >= 2 {
			return pipe.Exists(ctx, stringsOf(args[1:])...)
		}
	case "MGET":
		if len(args) >= 2 {
			return pipe.MGet(ctx, stringsOf(args[1:])...)
		}
	case "MSET":
		if len(args) >= 3 && len(args)%2 == 1 {
			return pipe.MSet(ctx, valuesOf(args[1:]))
		}
	case "INCR":
		if len(args) == 2 {
			return pipe.Incr(ctx, string(args[1]))
		}
	case "DECR":
		if len(args) == 2 {
			return pipe.Decr(ctx, string(args[1]))
		}
	case "TTL":
		if len(args) == 2 {
			return pipe.TTL(ctx, string(args[1]))
		}
	case "EXPIRE":
		if len(args) == 3 {
			secs, err := strconv.Atoi(string(args[2]))
			if err == nil {
				return pipe.Expire(ctx, string(args[1]), time.Duration(secs)*time.Second)
			}
		}
	case "HGET":
		if len(args) == 3 {
			return pipe.HGet(ctx, string(args[1]), string(args[2]))
		}
	case "HSET":
		if len(args) >= 4 && len(args)%2 == 0 {
			return pipe.HSet(ctx, string(args[1]), valuesOf(args[2:]))
		}
	case "HDEL":
		if len(args) >= 3 {
			return pipe.HDel(ctx, string(args[1]), stringsOf(args[2:])...)
		}
	case "HGETALL":
		if len(args) == 2 {
			return pipe.HGetAll(ctx, string(args[1]))
		}
	case "LPUSH":
		if len(args) >= 3 {
			return pipe.LPush(ctx, string(args[1]), valuesOf(args[2:])...)
		}
	case "RPUSH":
		if len(args) >= 3 {
			return pipe.RPush(ctx, string(args[1]), valuesOf(args[2:])...)
		}
	case "SADD":
		if len(args) >= 3 {
			return pipe.SAdd(ctx, string(args[1]), valuesOf(args[2:])...)
		}
	case "SREM":
		if len(args) >= 3 {
			return pipe.SRem(ctx, string(args[1]), valuesOf(args[2:])...)
		}
	case "SMEMBERS":
		if len(args) == 2 {
			return pipe.SMembers(ctx, string(args[1]))
		}
	}

	return pipe.Do(ctx, argsOf(m)...)
}

func stringsOf(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}

func valuesOf(args [][]byte) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

