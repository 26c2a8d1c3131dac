package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hrflow/internal/platform/querier"
	"hrflow/internal/transport/http/api"
)

const (
	IdempotencyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// IdempotencyStore remembers the response produced for a (user, endpoint, key).
type IdempotencyStore interface {
	Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error)
	Save(ctx context.Context, userID, endpoint, key, requestHash string, response json.RawMessage) error
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type PostgresIdempotencyStore struct {
	db querier.Querier
}

func NewPostgresIdempotencyStore(db querier.Querier) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{db: db}
}

func (s *PostgresIdempotencyStore) Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	var storedHash string
	var stored json.RawMessage
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE user_id = $1 AND key = $2 AND endpoint = $3
  `, userID, key, endpoint).Scan(&storedHash, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if storedHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return stored, true, nil
}

func (s *PostgresIdempotencyStore) Save(ctx context.Context, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (user_id, key, endpoint, request_hash, response_json)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (user_id, key, endpoint)
    DO UPDATE SET response_json = EXCLUDED.response_json
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, userID, key, endpoint, requestHash, []byte(response))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

type SQLiteIdempotencyStore struct {
	db querier.SQL
}

func NewSQLiteIdempotencyStore(db querier.SQL) *SQLiteIdempotencyStore {
	return &SQLiteIdempotencyStore{db: db}
}

func (s *SQLiteIdempotencyStore) Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	var storedHash, stored string
	err := s.db.QueryRowContext(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE user_id = ? AND key = ? AND endpoint = ?
  `, userID, key, endpoint).Scan(&storedHash, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if storedHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return json.RawMessage(stored), true, nil
}

func (s *SQLiteIdempotencyStore) Save(ctx context.Context, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	res, err := s.db.ExecContext(ctx, `
    INSERT INTO idempotency_keys (user_id, key, endpoint, request_hash, response_json)
    VALUES (?, ?, ?, ?, ?)
    ON CONFLICT (user_id, key, endpoint)
    DO UPDATE SET response_json = excluded.response_json
    WHERE idempotency_keys.request_hash = excluded.request_hash
  `, userID, key, endpoint, requestHash, string(response))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// RedisIdempotencyStore keeps keys for a bounded time instead of forever.
type RedisIdempotencyStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client redis.UniversalClient, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

type redisIdempotencyRecord struct {
	Hash     string          `json:"hash"`
	Response json.RawMessage `json:"response"`
}

func (s *RedisIdempotencyStore) key(userID, endpoint, key string) string {
	return "hrflow:idempotency:" + userID + ":" + endpoint + ":" + key
}

func (s *RedisIdempotencyStore) Check(ctx context.Context, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID, endpoint, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec redisIdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, err
	}
	if rec.Hash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return rec.Response, true, nil
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	payload, err := json.Marshal(redisIdempotencyRecord{Hash: requestHash, Response: response})
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(userID, endpoint, key), payload, s.ttl).Result()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, _, err := s.Check(ctx, userID, endpoint, key, requestHash); err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(userID, endpoint, key), payload, s.ttl).Err()
}

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// mutating requests. Only 2xx responses are remembered so a failed attempt
// can be retried with the same key.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if store == nil || key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())
			if len(key) > maxIdempotencyKeyLen {
				api.Fail(w, http.StatusBadRequest, "validation_error", "Idempotency-Key is too long", requestID)
				return
			}
			user, ok := GetUser(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_request", "could not read request body", requestID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			endpoint := r.Method + " " + r.URL.Path
			hash := RequestHash(append([]byte(endpoint+"\n"), body...))

			stored, found, err := store.Check(r.Context(), user.UserID, endpoint, key, hash)
			if errors.Is(err, ErrIdempotencyConflict) {
				api.Fail(w, http.StatusConflict, "idempotency_conflict", "Idempotency-Key was already used for a different request", requestID)
				return
			}
			if err != nil {
				zap.L().Warn("idempotency check failed", zap.Error(err), zap.String("request_id", requestID))
			}
			if found {
				var resp storedResponse
				if err := json.Unmarshal(stored, &resp); err == nil && resp.Status != 0 {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("Idempotent-Replayed", "true")
					w.WriteHeader(resp.Status)
					_, _ = w.Write(resp.Body)
					return
				}
			}

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			if capture.status < 200 || capture.status >= 300 || !json.Valid(capture.body.Bytes()) {
				return
			}
			payload, err := json.Marshal(storedResponse{Status: capture.status, Body: json.RawMessage(bytes.TrimSpace(capture.body.Bytes()))})
			if err != nil {
				zap.L().Warn("idempotency encode failed", zap.Error(err))
				return
			}
			if err := store.Save(r.Context(), user.UserID, endpoint, key, hash, payload); err != nil {
				zap.L().Warn("idempotency save failed", zap.Error(err), zap.String("request_id", requestID))
			}
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
