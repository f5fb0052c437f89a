// Copyright 2025 ClawShield
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyRateLimit  = "agent:ratelimit:%s"
	keyBlacklist  = "agent:blacklist:%s"
	keyMessages   = "agent:messages:%s"
	keyBadIPs     = "threat:bad_ips"
	keyBadDomains = "threat:bad_domains"
)

// RedisStore implements KeyValueStore against Redis, via go-redis/v8.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr/password and verifies with a ping.
func NewRedisStore(ctx context.Context, addr, password string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     100,
		MinIdleConns: 10,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: failed to ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// IncrRateLimit implements the atomic-increment-with-first-write-TTL
// pattern: INCR then, only when the post-increment value is 1, EXPIRE.
func (s *RedisStore) IncrRateLimit(ctx context.Context, agentID string, ttl time.Duration) (int64, error) {
	key := fmt.Sprintf(keyRateLimit, agentID)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("store: IncrRateLimit: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("store: IncrRateLimit: arm ttl: %w", err)
		}
	}
	return count, nil
}

func (s *RedisStore) IsBlacklisted(ctx context.Context, agentID string) (bool, error) {
	n, err := s.client.Exists(ctx, fmt.Sprintf(keyBlacklist, agentID)).Result()
	if err != nil {
		return false, fmt.Errorf("store: IsBlacklisted: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Blacklist(ctx context.Context, agentID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, fmt.Sprintf(keyBlacklist, agentID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("store: Blacklist: %w", err)
	}
	return nil
}

func (s *RedisStore) RecentMessages(ctx context.Context, agentID string) ([]string, error) {
	vals, err := s.client.LRange(ctx, fmt.Sprintf(keyMessages, agentID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("store: RecentMessages: %w", err)
	}
	return vals, nil
}

func (s *RedisStore) PushMessage(ctx context.Context, agentID, fingerprint string, maxLen int, ttl time.Duration) error {
	key := fmt.Sprintf(keyMessages, agentID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, fingerprint)
	pipe.LTrim(ctx, key, 0, int64(maxLen-1))
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: PushMessage: %w", err)
	}
	return nil
}

func (s *RedisStore) IsBadIP(ctx context.Context, ip string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, keyBadIPs, ip).Result()
	if err != nil {
		return false, fmt.Errorf("store: IsBadIP: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) IsBadDomain(ctx context.Context, domain string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, keyBadDomains, domain).Result()
	if err != nil {
		return false, fmt.Errorf("store: IsBadDomain: %w", err)
	}
	return ok, nil
}
