package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"gopkg.in/yaml.v3"

	http_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/http"
	memory_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// 帳本後端
const (
	BackendMySQL  = "mysql"
	BackendMemory = "memory"
)

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LedgerConfig struct {
	Backend string `yaml:"backend"`
	WALPath string `yaml:"wal_path"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Server ServerConfig `yaml:"server"`
	Ledger LedgerConfig `yaml:"ledger"`
	MySQL  mysql.Config `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
}

func main() {
	// 1. 載入設定
	cfg := loadConfig()

	// 2. 依設定初始化帳本儲存後端
	var store usecase.Store
	switch cfg.Ledger.Backend {
	case BackendMySQL:
		dbClient, err := mysql.NewClient(cfg.MySQL)
		if err != nil {
			log.Fatalf("Failed to connect to MySQL: %v", err)
		}
		defer dbClient.Close()
		log.Println("Connected to MySQL successfully")

		mysqlStore := mysql_adapter.NewStore(dbClient)
		if err := mysqlStore.AutoMigrate(); err != nil {
			log.Fatalf("Failed to migrate schema: %v", err)
		}
		store = mysqlStore
	case BackendMemory:
		// 初始化 WAL
		walFile, err := wal.NewWAL(cfg.Ledger.WALPath)
		if err != nil {
			log.Fatalf("Failed to init WAL: %v", err)
		}
		// 程式結束時關閉 WAL
		defer walFile.Close()

		memoryStore, err := memory_adapter.NewStore(walFile)
		if err != nil {
			log.Fatalf("Failed to init memory store: %v", err)
		}
		store = memoryStore
	default:
		log.Fatalf("Invalid ledger backend: %q", cfg.Ledger.Backend)
	}

	// 3. 初始化 UseCase
	coreUseCase := usecase.NewCoreUseCase(store)

	// 4. Redis (Optional)：啟用變更操作的冪等保護
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("Redis connection failed, idempotency guard disabled: %v", err)
			rdb = nil
		} else {
			log.Println("Connected to Redis successfully")
		}
	}

	// 5. 初始化 HTTP Adapter (Driving Adapter) 並啟動
	server := http_adapter.NewServer(coreUseCase, rdb)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("Starting HTTP server on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to serve: %v", err)
		}
	}()

	// Graceful Shutdown：收到訊號後等待進行中的工作單元完成
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server exited")
}

func loadConfig() Config {
	cfgData, err := os.ReadFile("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}

	// 補全預設配置 (如果 yaml 沒寫)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = BackendMemory
	}
	if cfg.Ledger.WALPath == "" {
		cfg.Ledger.WALPath = "wal.log"
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.MySQL.ConnMaxLifetime == 0 {
		cfg.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.MySQL.LockWaitSeconds == 0 {
		cfg.MySQL.LockWaitSeconds = 5
	}
	return cfg
}
