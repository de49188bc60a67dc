package recordstore

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/models"
)

// RedisStore keeps each record as a hash at <prefix><application id>.
// Verdicts are stored as "true" / "false".
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(applicationID string) string {
	return r.prefix + applicationID
}

func (r *RedisStore) UpsertClaim(ctx context.Context, applicationID string, claim models.ClaimFields) error {
	restricted := claim.Restrict()
	if len(restricted) == 0 {
		return apperrors.NewClaimParseFailedError("claim has no schema fields")
	}

	values := make([]interface{}, 0, 2*len(restricted)+2)
	values = append(values, models.FieldApplicationID, applicationID)
	for _, name := range models.ClaimFieldNames {
		if v, ok := restricted[name]; ok {
			values = append(values, name, v)
		}
	}
	if err := r.client.HSet(ctx, r.key(applicationID), values...).Err(); err != nil {
		return apperrors.NewRecordUpdateFailedError("claim", err)
	}
	return nil
}

func (r *RedisStore) SetVerdict(ctx context.Context, applicationID, field string, verdict bool) error {
	if err := checkVerdictField(field); err != nil {
		return err
	}
	err := r.client.HSet(ctx, r.key(applicationID),
		models.FieldApplicationID, applicationID,
		field, strconv.FormatBool(verdict),
	).Err()
	if err != nil {
		return apperrors.NewRecordUpdateFailedError(field, err)
	}
	return nil
}

func (r *RedisStore) MarkAborted(ctx context.Context, applicationID, stage, reason string) error {
	err := r.client.HSet(ctx, r.key(applicationID),
		models.FieldApplicationID, applicationID,
		models.FieldAbortedStage, stage,
		models.FieldAbortReason, reason,
	).Err()
	if err != nil {
		return apperrors.NewRecordUpdateFailedError(models.FieldAbortedStage, err)
	}
	return nil
}

// clearAbortScript deletes the marker fields only if ARGV[1] still names the
// aborted stage.
const clearAbortScript = `
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1], ARGV[3])
end
return 0`

func (r *RedisStore) ClearAbort(ctx context.Context, applicationID, stage string) error {
	err := r.client.Eval(ctx, clearAbortScript,
		[]string{r.key(applicationID)},
		models.FieldAbortedStage, stage, models.FieldAbortReason,
	).Err()
	if err != nil {
		return apperrors.NewRecordUpdateFailedError(models.FieldAbortedStage, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, applicationID string) (*models.Record, error) {
	fields, err := r.client.HGetAll(ctx, r.key(applicationID)).Result()
	if err != nil {
		return nil, apperrors.NewRecordUpdateFailedError("get", err)
	}
	if len(fields) == 0 {
		return nil, apperrors.NewRecordNotFoundError(applicationID)
	}

	rec := &models.Record{ApplicationID: applicationID}
	for name, value := range fields {
		switch {
		case models.IsClaimField(name):
			if rec.Claim == nil {
				rec.Claim = models.ClaimFields{}
			}
			rec.Claim[name] = value
		case models.IsVerdictField(name):
			if b, err := strconv.ParseBool(value); err == nil {
				rec.SetVerdict(name, b)
			}
		case name == models.FieldAbortedStage:
			rec.AbortedStage = value
		case name == models.FieldAbortReason:
			rec.AbortReason = value
		}
	}
	return rec, nil
}
