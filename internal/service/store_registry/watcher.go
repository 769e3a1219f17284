// Package store_registry file: internal/service/store_registry/watcher.go
package store_registry

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatcher 启动文件系统监视器，商店文件被外部修改时使对应缓存失效。
// 运维人员可以直接编辑 stores/ 下的 JSON 文件，改动会在下一次读取时生效。
func (r *Registry) StartWatcher() error {
	log.Printf("🔍 [StoreRegistry] 尝试启动文件监视器于目录: %s", r.dir)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建 fsnotify watcher 失败: %w", err)
	}

	go func() {
		defer watcher.Close()
		log.Printf("信息: [StoreRegistry] 文件监视 goroutine 已启动。")
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					log.Printf("警告: [StoreRegistry] 文件监视器事件通道已关闭。")
					return
				}
				r.handleFsEvent(event)
			case errWatch, ok := <-watcher.Errors:
				if !ok {
					log.Printf("警告: [StoreRegistry] 文件监视器错误通道已关闭。")
					return
				}
				log.Printf("错误: [StoreRegistry] 文件监视器报告错误: %v", errWatch)
			}
		}
	}()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("添加商店目录 '%s' 到监视器失败: %w", r.dir, err)
	}
	log.Printf("信息: [StoreRegistry] 已成功添加商店目录 '%s' 到监视器。", r.dir)
	return nil
}

// handleFsEvent 处理单个文件系统事件，带防抖以应对编辑器的连续写入。
func (r *Registry) handleFsEvent(event fsnotify.Event) {
	cleanPath := filepath.Clean(event.Name)
	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return
	}

	r.eventTimersMu.Lock()
	defer r.eventTimersMu.Unlock()
	if timer, exists := r.eventTimers[cleanPath]; exists {
		timer.Stop()
	}
	r.eventTimers[cleanPath] = time.AfterFunc(debounceDuration, func() {
		storeID := strings.TrimSuffix(filepath.Base(cleanPath), ".json")
		r.Invalidate(storeID)
		log.Printf("🔄 [StoreRegistry] 商店文件 '%s' 发生变更，缓存已失效。", cleanPath)
		r.eventTimersMu.Lock()
		delete(r.eventTimers, cleanPath)
		r.eventTimersMu.Unlock()
	})
}
