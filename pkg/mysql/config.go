package mysql

import (
	"fmt"
	"time"
)

// Config 定義 MySQL 連線與連線池的配置
type Config struct {
	Host     string // 資料庫主機地址
	Port     int    // 資料庫埠號 (預設 3306)
	User     string // 使用者名稱
	Password string // 密碼
	DBName   string // 資料庫名稱

	// 連線池設定 (Connection Pool)
	// 參考: https://github.com/go-sql-driver/mysql#important-settings
	MaxOpenConns    int           // 最大開啟連線數
	MaxIdleConns    int           // 最大閒置連線數
	ConnMaxLifetime time.Duration // 連線最大存活時間

	// 列鎖等待上限 (秒)。超過後 MySQL 回傳 1205，
	// 該筆操作回滾並以可重試錯誤回報呼叫端
	LockWaitSeconds int

	// GORM 設定
	LogLevel string // Log 等級: "silent", "error", "warn", "info"
}

// DSN (Data Source Name) 產生連線字串
// innodb_lock_wait_timeout 以 session 變數下發，讓鎖等待有界
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&innodb_lock_wait_timeout=%d",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
		c.LockWaitSeconds,
	)
}
