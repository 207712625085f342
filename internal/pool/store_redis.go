package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPoolTTL = 7 * 24 * time.Hour
	maxCellRetries = 5
)

// RedisStore keeps live pools in Redis.
//
//	sq:pool:<id>          meta JSON
//	sq:pool:<id>:cells    hash "row:col" -> claim JSON
//	sq:pool:<id>:scores   hash period -> score JSON
//	sq:room:<room>        set of pool ids
//	sq:room:<room>:open   id of the room's open pool
//	sq:code:<code>        pool id
//	sq:linked             set of pool ids with a score feed
//	squares.events.<id>   stream of Event
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultPoolTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) keyPool(id string) string   { return "sq:pool:" + strings.TrimSpace(id) }
func (s *RedisStore) keyCells(id string) string  { return s.keyPool(id) + ":cells" }
func (s *RedisStore) keyScores(id string) string { return s.keyPool(id) + ":scores" }
func (s *RedisStore) keyRoom(room string) string { return "sq:room:" + strings.TrimSpace(room) }
func (s *RedisStore) keyCode(code string) string {
	return "sq:code:" + strings.ToUpper(strings.TrimSpace(code))
}
func (s *RedisStore) keyRoomSlot(room string) string {
	return "sq:room:" + strings.TrimSpace(room) + ":open"
}
func (s *RedisStore) keyLinked() string          { return "sq:linked" }
func (s *RedisStore) keyStream(id string) string { return "squares.events." + strings.TrimSpace(id) }

func (s *RedisStore) ReserveCode(ctx context.Context, code, poolID string) (bool, error) {
	return s.rdb.SetNX(ctx, s.keyCode(code), poolID, s.ttl).Result()
}

func (s *RedisStore) PoolIDByCode(ctx context.Context, code string) (string, error) {
	id, err := s.rdb.Get(ctx, s.keyCode(code)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}

func (s *RedisStore) SavePool(ctx context.Context, p *Pool) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pool: %w", err)
	}
	if err := s.rdb.Set(ctx, s.keyPool(p.ID), raw, s.ttl).Err(); err != nil {
		return err
	}
	// keep companions alive as long as the meta
	_ = s.rdb.Expire(ctx, s.keyCells(p.ID), s.ttl).Err()
	_ = s.rdb.Expire(ctx, s.keyScores(p.ID), s.ttl).Err()
	if p.Status != StatusFinal {
		_ = touchSlotScript.Run(ctx, s.rdb, []string{s.keyRoomSlot(p.Room)}, p.ID, int64(s.ttl/time.Second)).Err()
	}
	return nil
}

func (s *RedisStore) LoadPool(ctx context.Context, poolID string) (*Pool, error) {
	raw, err := s.rdb.Get(ctx, s.keyPool(poolID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Pool
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pool: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) IndexRoom(ctx context.Context, room, poolID string) error {
	if strings.TrimSpace(room) == "" {
		return nil
	}
	if err := s.rdb.SAdd(ctx, s.keyRoom(room), poolID).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, s.keyRoom(room), s.ttl).Err()
}

func (s *RedisStore) PoolsInRoom(ctx context.Context, room string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.keyRoom(room)).Result()
}

func (s *RedisStore) LoadClaims(ctx context.Context, poolID string) ([]grid.PlacedClaim, error) {
	all, err := s.rdb.HGetAll(ctx, s.keyCells(poolID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]grid.PlacedClaim, 0, len(all))
	for field, raw := range all {
		cell, err := grid.ParseCell(field)
		if err != nil {
			return nil, err
		}
		var c grid.Claim
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("unmarshal claim %s: %w", field, err)
		}
		out = append(out, grid.PlacedClaim{Cell: cell, Claim: c})
	}
	return out, nil
}

// claimScript checks pool status, occupancy and the per-owner limit, then
// writes the claim. It runs as one Redis command so concurrent claims on other
// cells never abort each other.
//
//	KEYS[1] pool meta  KEYS[2] cells hash
//	ARGV[1] field  ARGV[2] claim JSON  ARGV[3] owner  ARGV[4] limit  ARGV[5] ttl seconds
var claimScript = redis.NewScript(`
local meta = redis.call('GET', KEYS[1])
if not meta then return 'gone' end
if cjson.decode(meta)['status'] == 'FINAL' then return 'final' end
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 1 then return 'taken' end
local limit = tonumber(ARGV[4])
if limit > 0 then
  local n = 0
  for _, raw in ipairs(redis.call('HVALS', KEYS[2])) do
    if cjson.decode(raw)['owner'] == ARGV[3] then n = n + 1 end
  end
  if n >= limit then return 'limit' end
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('EXPIRE', KEYS[2], ARGV[5])
return 'ok'
`)

// unclaimScript deletes a claim only if it still holds the value the caller
// inspected.
//
//	KEYS[1] pool meta  KEYS[2] cells hash
//	ARGV[1] field  ARGV[2] expected claim JSON
var unclaimScript = redis.NewScript(`
local meta = redis.call('GET', KEYS[1])
if not meta then return 'gone' end
if cjson.decode(meta)['status'] == 'FINAL' then return 'final' end
local cur = redis.call('HGET', KEYS[2], ARGV[1])
if not cur then return 'empty' end
if cur ~= ARGV[2] then return 'changed' end
redis.call('HDEL', KEYS[2], ARGV[1])
return 'ok'
`)

// releaseScript deletes KEYS[1] when it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// touchSlotScript extends KEYS[1] to ARGV[2] seconds while it holds ARGV[1].
var touchSlotScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

func scriptErr(reply string) error {
	switch reply {
	case "ok":
		return nil
	case "gone":
		return ErrPoolNotFound
	case "final":
		return ErrPoolFinal
	case "taken":
		return grid.ErrCellAlreadyClaimed
	case "limit":
		return grid.ErrClaimLimit
	case "empty":
		return grid.ErrCellNotClaimed
	}
	return fmt.Errorf("unexpected script reply %q", reply)
}

func (s *RedisStore) PutClaimIfAbsent(ctx context.Context, poolID string, pc grid.PlacedClaim, maxPerOwner int) error {
	raw, err := json.Marshal(pc.Claim)
	if err != nil {
		return fmt.Errorf("marshal claim: %w", err)
	}
	reply, err := claimScript.Run(ctx, s.rdb,
		[]string{s.keyPool(poolID), s.keyCells(poolID)},
		pc.Cell.Key(), string(raw), pc.Claim.Owner, maxPerOwner, int64(s.ttl/time.Second),
	).Text()
	if err != nil {
		return err
	}
	return scriptErr(reply)
}

// DeleteClaimIf reads the claim, lets allow decide, then deletes it only if
// the cell is unchanged. Writes to other cells never force a retry.
func (s *RedisStore) DeleteClaimIf(ctx context.Context, poolID string, cell grid.Cell, allow func(grid.Claim) error) (grid.Claim, error) {
	key := s.keyCells(poolID)
	field := cell.Key()
	for attempt := 0; attempt < maxCellRetries; attempt++ {
		raw, err := s.rdb.HGet(ctx, key, field).Result()
		if err == redis.Nil {
			return grid.Claim{}, grid.ErrCellNotClaimed
		}
		if err != nil {
			return grid.Claim{}, err
		}
		var cur grid.Claim
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return grid.Claim{}, fmt.Errorf("unmarshal claim %s: %w", field, err)
		}
		if allow != nil {
			if err := allow(cur); err != nil {
				return grid.Claim{}, err
			}
		}
		reply, err := unclaimScript.Run(ctx, s.rdb, []string{s.keyPool(poolID), key}, field, raw).Text()
		if err != nil {
			return grid.Claim{}, err
		}
		if reply == "changed" {
			continue
		}
		if err := scriptErr(reply); err != nil {
			return grid.Claim{}, err
		}
		return cur, nil
	}
	return grid.Claim{}, ErrConflict
}

// ReserveRoom takes the room's single open-pool slot.
func (s *RedisStore) ReserveRoom(ctx context.Context, room, poolID string) (bool, error) {
	return s.rdb.SetNX(ctx, s.keyRoomSlot(room), poolID, s.ttl).Result()
}

func (s *RedisStore) RoomHolder(ctx context.Context, room string) (string, error) {
	id, err := s.rdb.Get(ctx, s.keyRoomSlot(room)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}

func (s *RedisStore) ReleaseRoom(ctx context.Context, room, poolID string) error {
	return releaseScript.Run(ctx, s.rdb, []string{s.keyRoomSlot(room)}, poolID).Err()
}

func (s *RedisStore) LoadScores(ctx context.Context, poolID string) ([]grid.QuarterScore, error) {
	all, err := s.rdb.HGetAll(ctx, s.keyScores(poolID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]grid.QuarterScore, 0, len(all))
	for field, raw := range all {
		var q grid.QuarterScore
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("unmarshal score %s: %w", field, err)
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

// PutScore replaces the whole period entry.
func (s *RedisStore) PutScore(ctx context.Context, poolID string, q grid.QuarterScore) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}
	key := s.keyScores(poolID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(q.Period), raw)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) SetEventLinked(ctx context.Context, poolID string, linked bool) error {
	if linked {
		return s.rdb.SAdd(ctx, s.keyLinked(), poolID).Err()
	}
	return s.rdb.SRem(ctx, s.keyLinked(), poolID).Err()
}

func (s *RedisStore) LinkedPools(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, s.keyLinked()).Result()
}

func (s *RedisStore) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.keyStream(ev.PoolID),
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{
			"type": string(ev.Type),
			"data": string(data),
		},
	}).Err()
}
