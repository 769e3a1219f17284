// Package recommend file: internal/service/recommend/behavior.go
package recommend

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"PluginHarbor/internal/core/domain"
)

// maxBehaviorPerUser 每个用户行为环的容量上限，超出后从头部截断
const maxBehaviorPerUser = 1000

// BehaviorStore 维护每个用户的行为事件环（只追加、头部截断），
// 并透写到 behavior_events 表，进程重启后个性化状态可恢复。
// db 为 nil 时退化为纯内存模式（测试场景）。
type BehaviorStore struct {
	db *sql.DB

	mu     sync.RWMutex
	events map[string][]domain.UserBehavior // userID → 按时间先后排列的事件
}

// NewBehaviorStore 创建行为存储；传入 nil db 则只留内存
func NewBehaviorStore(db *sql.DB) *BehaviorStore {
	return &BehaviorStore{
		db:     db,
		events: make(map[string][]domain.UserBehavior),
	}
}

// InitTable 创建行为事件表
func InitTable(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS behavior_events(
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT NOT NULL,
        action TEXT NOT NULL,
        plugin_id TEXT NOT NULL,
        ts INTEGER NOT NULL, -- unix 秒
        metadata TEXT
    );`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("创建 'behavior_events' 表失败: %w", err)
	}
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_behavior_user_ts ON behavior_events (user_id, ts);`)
	return err
}

// Load 从数据库恢复每个用户最近的事件环
func (s *BehaviorStore) Load() error {
	if s.db == nil {
		return nil
	}
	rows, err := s.db.Query(`SELECT user_id, action, plugin_id, ts, metadata FROM behavior_events ORDER BY ts ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("读取行为事件失败: %w", err)
	}
	defer rows.Close()

	loaded := make(map[string][]domain.UserBehavior)
	for rows.Next() {
		var (
			b        domain.UserBehavior
			action   string
			ts       int64
			metaJSON sql.NullString
		)
		if err := rows.Scan(&b.UserID, &action, &b.PluginID, &ts, &metaJSON); err != nil {
			log.Printf("⚠️ [Recommend] 扫描行为事件行失败，已跳过: %v", err)
			continue
		}
		b.Action = domain.BehaviorAction(action)
		b.Timestamp = time.Unix(ts, 0)
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &b.Metadata); err != nil {
				log.Printf("⚠️ [Recommend] 行为事件 metadata 解析失败，已忽略: %v", err)
			}
		}
		ring := append(loaded[b.UserID], b)
		if len(ring) > maxBehaviorPerUser {
			ring = ring[len(ring)-maxBehaviorPerUser:]
		}
		loaded[b.UserID] = ring
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("遍历行为事件失败: %w", err)
	}

	s.mu.Lock()
	s.events = loaded
	s.mu.Unlock()
	log.Printf("✅ [Recommend] 已恢复 %d 个用户的行为历史", len(loaded))
	return nil
}

// Append 追加一条事件：内存环尾部追加并截断，再透写数据库。
// 这是个性化状态唯一的写入路径。
func (s *BehaviorStore) Append(b domain.UserBehavior) error {
	if b.UserID == "" || b.PluginID == "" {
		return fmt.Errorf("行为事件的 userId 和 pluginId 不能为空")
	}
	if !domain.ValidBehaviorAction(string(b.Action)) {
		return fmt.Errorf("非法的行为动作: '%s'", b.Action)
	}
	if b.Timestamp.IsZero() {
		b.Timestamp = time.Now()
	}

	s.mu.Lock()
	ring := append(s.events[b.UserID], b)
	if len(ring) > maxBehaviorPerUser {
		ring = ring[len(ring)-maxBehaviorPerUser:]
	}
	s.events[b.UserID] = ring
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	var metaJSON string
	if len(b.Metadata) > 0 {
		raw, err := json.Marshal(b.Metadata)
		if err != nil {
			return fmt.Errorf("序列化行为 metadata 失败: %w", err)
		}
		metaJSON = string(raw)
	}
	_, err := s.db.Exec(
		`INSERT INTO behavior_events (user_id, action, plugin_id, ts, metadata) VALUES (?, ?, ?, ?, ?)`,
		b.UserID, string(b.Action), b.PluginID, b.Timestamp.Unix(), metaJSON,
	)
	if err != nil {
		return fmt.Errorf("持久化行为事件失败: %w", err)
	}

	// 数据库侧同样只保留每用户最近的 maxBehaviorPerUser 条
	_, err = s.db.Exec(
		`DELETE FROM behavior_events WHERE user_id = ? AND id NOT IN (
            SELECT id FROM behavior_events WHERE user_id = ? ORDER BY ts DESC, id DESC LIMIT ?)`,
		b.UserID, b.UserID, maxBehaviorPerUser,
	)
	if err != nil {
		return fmt.Errorf("截断行为历史失败: %w", err)
	}
	return nil
}

// History 返回用户事件环的副本（时间先后序）
func (s *BehaviorStore) History(userID string) []domain.UserBehavior {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ring := s.events[userID]
	out := make([]domain.UserBehavior, len(ring))
	copy(out, ring)
	return out
}

// UserIDs 返回当前持有历史的全部用户，排序保证遍历稳定
func (s *BehaviorStore) UserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.events))
	for id := range s.events {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// InstalledSet 根据事件环推导用户当前已安装的插件集合
// （install 加入，uninstall 移除，按时间先后回放）
func (s *BehaviorStore) InstalledSet(userID string) map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	installed := make(map[string]bool)
	for _, b := range s.events[userID] {
		switch b.Action {
		case domain.ActionInstall:
			installed[b.PluginID] = true
		case domain.ActionUninstall:
			delete(installed, b.PluginID)
		}
	}
	return installed
}

// Ratings 根据 rate 事件推导用户对插件的最近一次评分
func (s *BehaviorStore) Ratings(userID string) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ratings := make(map[string]float64)
	for _, b := range s.events[userID] {
		if b.Action != domain.ActionRate {
			continue
		}
		if raw, ok := b.Metadata["rating"]; ok {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				ratings[b.PluginID] = v
			}
		}
	}
	return ratings
}
