package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xerud2002/Dos/internal/catalog"
)

const (
	providersKey = "catalog:providers"
	claimsKey    = "catalog:claims"
)

// RedisStore keeps providers as hashes, reviews as JSON lists per provider and
// claims as JSON strings. Sorted sets scored by creation time keep listing order.
type RedisStore struct {
	client *redis.Client
}

var _ catalog.Repository = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func providerKey(id string) string { return "catalog:provider:" + id }
func reviewsKey(id string) string  { return "catalog:provider:" + id + ":reviews" }
func claimKey(id string) string    { return "catalog:claim:" + id }

func (r *RedisStore) CreateProvider(ctx context.Context, p catalog.Provider) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, providerKey(p.ID), providerToHash(p))
	pipe.ZAdd(ctx, providersKey, redis.Z{Score: float64(p.CreatedAt.UnixNano()), Member: p.ID})

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "redis create provider %s", p.ID)
	}
	return nil
}

func (r *RedisStore) GetProvider(ctx context.Context, id string) (catalog.Provider, error) {
	fields, err := r.client.HGetAll(ctx, providerKey(id)).Result()
	if err != nil {
		return catalog.Provider{}, errors.Wrapf(err, "redis get provider %s", id)
	}
	if len(fields) == 0 {
		return catalog.Provider{}, catalog.ErrNotFound
	}

	return providerFromHash(id, fields)
}

func (r *RedisStore) ListProviders(ctx context.Context) ([]catalog.Provider, error) {
	ids, err := r.client.ZRange(ctx, providersKey, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis list provider ids")
	}
	if len(ids) == 0 {
		return []catalog.Provider{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, providerKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "redis list providers")
	}

	out := make([]catalog.Provider, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		p, err := providerFromHash(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, nil
}

func (r *RedisStore) SetProviderClaimed(ctx context.Context, id string, claimed bool) error {
	n, err := r.client.Exists(ctx, providerKey(id)).Result()
	if err != nil {
		return errors.Wrapf(err, "redis exists provider %s", id)
	}
	if n == 0 {
		return catalog.ErrNotFound
	}

	if err := r.client.HSet(ctx, providerKey(id), "claimed", formatBool(claimed)).Err(); err != nil {
		return errors.Wrapf(err, "redis set provider %s claimed", id)
	}
	return nil
}

func (r *RedisStore) AddReview(ctx context.Context, rv catalog.Review) error {
	b, err := json.Marshal(rv)
	if err != nil {
		return errors.Wrap(err, "encode review")
	}

	key := providerKey(rv.ProviderID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return catalog.ErrNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, reviewsKey(rv.ProviderID), b)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, catalog.ErrNotFound) {
		return err
	}
	if err != nil {
		return errors.Wrapf(err, "redis add review for %s", rv.ProviderID)
	}
	return nil
}

func (r *RedisStore) ListReviews(ctx context.Context, providerID string) ([]catalog.Review, error) {
	raw, err := r.client.LRange(ctx, reviewsKey(providerID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "redis list reviews for %s", providerID)
	}

	out := make([]catalog.Review, 0, len(raw))
	for _, item := range raw {
		var rv catalog.Review
		if err := json.Unmarshal([]byte(item), &rv); err != nil {
			return nil, errors.Wrapf(err, "decode review for %s", providerID)
		}
		out = append(out, rv)
	}

	return out, nil
}

func (r *RedisStore) AddClaim(ctx context.Context, c catalog.Claim) error {
	b, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode claim")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, claimKey(c.ID), b, 0)
	pipe.ZAdd(ctx, claimsKey, redis.Z{Score: float64(c.CreatedAt.UnixNano()), Member: c.ID})

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "redis add claim %s", c.ID)
	}
	return nil
}

func (r *RedisStore) GetClaim(ctx context.Context, id string) (catalog.Claim, error) {
	raw, err := r.client.Get(ctx, claimKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return catalog.Claim{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Claim{}, errors.Wrapf(err, "redis get claim %s", id)
	}

	var c catalog.Claim
	if err := json.Unmarshal(raw, &c); err != nil {
		return catalog.Claim{}, errors.Wrapf(err, "decode claim %s", id)
	}
	return c, nil
}

func (r *RedisStore) ListClaims(ctx context.Context) ([]catalog.Claim, error) {
	ids, err := r.client.ZRange(ctx, claimsKey, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis list claim ids")
	}
	if len(ids) == 0 {
		return []catalog.Claim{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = claimKey(id)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis list claims")
	}

	out := make([]catalog.Claim, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var c catalog.Claim
		if err := json.Unmarshal([]byte(s), &c); err != nil {
			return nil, errors.Wrapf(err, "decode claim %s", ids[i])
		}
		out = append(out, c)
	}

	return out, nil
}

func (r *RedisStore) SetClaimStatus(ctx context.Context, id string, status catalog.ClaimStatus) error {
	key := claimKey(id)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return catalog.ErrNotFound
		}
		if err != nil {
			return err
		}

		var c catalog.Claim
		if err := json.Unmarshal(raw, &c); err != nil {
			return errors.Wrapf(err, "decode claim %s", id)
		}
		c.Status = status

		b, err := json.Marshal(c)
		if err != nil {
			return errors.Wrap(err, "encode claim")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, catalog.ErrNotFound) {
		return err
	}
	if err != nil {
		return errors.Wrapf(err, "redis set claim %s status", id)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func providerToHash(p catalog.Provider) map[string]interface{} {
	return map[string]interface{}{
		"name":       p.Name,
		"phone":      p.Phone,
		"email":      p.Email,
		"company":    p.Company,
		"claimed":    formatBool(p.Claimed),
		"created_at": p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func providerFromHash(id string, fields map[string]string) (catalog.Provider, error) {
	p := catalog.Provider{
		ID:      id,
		Name:    fields["name"],
		Phone:   fields["phone"],
		Email:   fields["email"],
		Company: fields["company"],
	}

	if v := fields["claimed"]; v != "" {
		claimed, err := strconv.ParseBool(v)
		if err != nil {
			return catalog.Provider{}, errors.Wrapf(err, "parse claimed flag of provider %s", id)
		}
		p.Claimed = claimed
	}

	if v := fields["created_at"]; v != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return catalog.Provider{}, errors.Wrapf(err, "parse created_at of provider %s", id)
		}
		p.CreatedAt = createdAt
	}

	return p, nil
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}
