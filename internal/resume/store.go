// internal/resume/store.go
package resume

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"lendflow/internal/common/database"
	"lendflow/internal/common/logger"
	"lendflow/internal/wizard"
)

const keyPrefix = "lendflow:resume:"

// Snapshot is the small prefill subset cached between visits: the
// verification outcome plus the fields worth pre-populating. It is never
// authoritative; the wizard works from its own draft.
type Snapshot struct {
	Channel         string    `json:"channel"`
	Destination     string    `json:"destination"`
	Verified        bool      `json:"verified"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	RequestedAmount float64   `json:"requestedAmount,omitempty"`
	SavedAt         time.Time `json:"savedAt"`
}

// snapshotSchema guards against trusting stale or corrupted cache
// entries: anything that does not match the expected shape is discarded
// instead of being parsed blindly.
const snapshotSchema = `{
	"type": "object",
	"required": ["channel", "destination", "verified", "savedAt"],
	"properties": {
		"channel": {"type": "string", "enum": ["mobile", "email"]},
		"destination": {"type": "string", "minLength": 1},
		"verified": {"type": "boolean"},
		"firstName": {"type": "string"},
		"lastName": {"type": "string"},
		"email": {"type": "string"},
		"phone": {"type": "string"},
		"requestedAmount": {"type": "number", "minimum": 0},
		"savedAt": {"type": "string"}
	},
	"additionalProperties": false
}`

// Store caches resume snapshots in Redis, TTL-bounded and best-effort:
// a failed save or an invalid cached value never surfaces to the caller
// beyond a log line.
type Store struct {
	redis  *database.RedisClient
	schema *gojsonschema.Schema
	log    logger.Logger
	ttl    time.Duration
}

func NewStore(redis *database.RedisClient, ttl time.Duration, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(snapshotSchema))
	if err != nil {
		return nil, err
	}
	return &Store{redis: redis, schema: schema, log: log, ttl: ttl}, nil
}

// FromDraft builds the cacheable subset of a draft.
func FromDraft(d wizard.Draft) Snapshot {
	return Snapshot{
		Channel:         string(d.Verification.Channel),
		Destination:     d.Verification.Destination,
		Verified:        d.Verification.Verified,
		FirstName:       d.Personal.FirstName,
		LastName:        d.Personal.LastName,
		Email:           d.Personal.Email,
		Phone:           d.Personal.Phone,
		RequestedAmount: d.Loan.Amount,
		SavedAt:         time.Now().UTC(),
	}
}

// Save caches the snapshot under the session key. Failures are logged and
// swallowed; the cache is not authoritative.
func (s *Store) Save(ctx context.Context, sessionID string, snap Snapshot) {
	if err := s.redis.SetJSON(ctx, keyPrefix+sessionID, snap, s.ttl); err != nil {
		s.log.WithError(err).Warn("resume snapshot save failed", map[string]interface{}{
			"sessionId": sessionID,
		})
	}
}

// Load returns the cached snapshot for the session, or false when there is
// none or the cached value fails schema validation. Invalid entries are
// deleted so they are not retried on every load.
func (s *Store) Load(ctx context.Context, sessionID string) (Snapshot, bool) {
	raw, err := s.redis.Get(ctx, keyPrefix+sessionID)
	if err != nil {
		return Snapshot{}, false
	}

	result, err := s.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil || !result.Valid() {
		s.log.Warn("discarding invalid resume snapshot", map[string]interface{}{
			"sessionId": sessionID,
		})
		_ = s.redis.Del(ctx, keyPrefix+sessionID)
		return Snapshot{}, false
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		_ = s.redis.Del(ctx, keyPrefix+sessionID)
		return Snapshot{}, false
	}
	return snap, true
}

// Clear removes the cached snapshot, e.g. after submission or abandon.
func (s *Store) Clear(ctx context.Context, sessionID string) {
	if err := s.redis.Del(ctx, keyPrefix+sessionID); err != nil {
		s.log.WithError(err).Warn("resume snapshot delete failed", map[string]interface{}{
			"sessionId": sessionID,
		})
	}
}
