// file: internal/service/db_init.go
package service

import (
	"database/sql"
	"fmt"
	"log"
)

// InitPlatformTables 负责在网关启动时，检查并创建所有平台级的系统管理表。
// 用户行为事件表由推荐引擎的 BehaviorStore 自行初始化。
func InitPlatformTables(db *sql.DB) error {
	if err := initUserTable(db); err != nil {
		return fmt.Errorf("初始化用户表失败: %w", err)
	}
	if err := initGlobalSettingsTable(db); err != nil {
		return fmt.Errorf("初始化全局设置表失败: %w", err)
	}

	log.Println("✅ 数据库: 所有系统表结构初始化/检查完成。")
	return nil
}

// initUserTable 创建用户表
func initUserTable(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS _user(
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        role TEXT NOT NULL,
        rate_limit_per_second REAL, -- for user-specific rate limiting
        burst_size INTEGER
    );`
	_, err := db.Exec(query)
	if err != nil {
		return fmt.Errorf("创建 '_user' 表失败: %w", err)
	}
	// 为常用查询创建索引
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_user_username ON _user (username);`)
	return err
}

// initGlobalSettingsTable 创建全局设置表并写入速率限制缺省值
func initGlobalSettingsTable(db *sql.DB) error {
	queryGlobal := `
	CREATE TABLE IF NOT EXISTS global_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		description TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(queryGlobal); err != nil {
		return fmt.Errorf("创建 'global_settings' 表失败: %w", err)
	}
	// 插入默认的IP速率限制值，如果不存在的话
	insertGlobal := `
	INSERT OR IGNORE INTO global_settings (key, value, description) VALUES
		('ip_rate_limit_per_minute', '60', '未认证IP的默认每分钟请求数'),
		('ip_burst_size', '20', '未认证IP的默认瞬时请求峰值');`
	if _, err := db.Exec(insertGlobal); err != nil {
		return fmt.Errorf("插入默认全局设置失败: %w", err)
	}

	return nil
}
