package http

import (
	"bytes"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// 身分提供者下發的標頭：引擎無條件信任 (認證在上游完成)
const (
	headerUserID   = "X-User-ID"
	headerUserName = "X-User-Name"
)

const (
	// IdempotencyHeader 冪等鍵的標準 HTTP 標頭
	IdempotencyHeader = "Idempotency-Key"

	// 回應在 Redis 的快取時間
	idempotencyCacheTTL = 24 * time.Hour

	// 處理中鎖的存活上限，避免請求中途崩潰造成永久鎖
	lockTimeout = 10 * time.Second

	redisKeyPrefix = "idempotency:"
	lockKeyPrefix  = "lock:"
)

// identity 解析身分標頭並放入 request context
// 缺少或格式錯誤一律 401；中介層之後的 handler 可假設身分存在
func (s *Server) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.Header.Get(headerUserID), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Message: "Missing or invalid " + headerUserID + " header"})
			return
		}
		ident := identityInfo{
			UserID:   userID,
			UserName: r.Header.Get(headerUserName),
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), ident)))
	})
}

// responseRecorder 攔截狀態碼與回應內容，供快取使用
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// idempotency 以 Redis 實現請求冪等：
//  1. 依 Idempotency-Key 查快取，命中直接回放先前的回應
//  2. SetNX 取得分散式鎖，擋下同鍵並發請求
//  3. 執行請求，2xx 的回應寫入快取
//
// 未配置 Redis 或未帶鍵時直接放行
func (s *Server) idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if s.rdb == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()

		cacheKey := redisKeyPrefix + key
		lockKey := lockKeyPrefix + key

		cached, err := s.rdb.Get(ctx, cacheKey).Result()
		if err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Hit", "true")
			w.Write([]byte(cached))
			return
		} else if err != redis.Nil {
			log.Printf("idempotency cache lookup failed: %v", err)
		}

		acquired, err := s.rdb.SetNX(ctx, lockKey, "processing", lockTimeout).Result()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "Internal server error"})
			return
		}
		if !acquired {
			// 同鍵請求正在處理中
			writeJSON(w, http.StatusConflict, envelope{Success: false, Message: "A request with this idempotency key is currently being processed"})
			return
		}
		defer func() {
			if err := s.rdb.Del(ctx, lockKey).Err(); err != nil {
				log.Printf("failed to release idempotency lock: %v", err)
			}
		}()

		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.statusCode >= 200 && rec.statusCode < 300 {
			if err := s.rdb.Set(ctx, cacheKey, rec.body.String(), idempotencyCacheTTL).Err(); err != nil {
				log.Printf("failed to cache idempotent response: %v", err)
			}
		}
	})
}
