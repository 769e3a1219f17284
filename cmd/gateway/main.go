// file: cmd/gateway/main.go

package main

import (
	"PluginHarbor/internal/adapter/storeclient"
	"PluginHarbor/internal/core/domain"
	"PluginHarbor/internal/core/port"
	"PluginHarbor/internal/downloader"
	"PluginHarbor/internal/harmiddleware"
	"PluginHarbor/internal/harobserve"
	"PluginHarbor/internal/service"
	"PluginHarbor/internal/service/recommend"
	"PluginHarbor/internal/service/store_manager"
	"PluginHarbor/internal/service/store_registry"
	"PluginHarbor/internal/service/taxonomy"
	"PluginHarbor/internal/transport/http/router"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"

	_ "modernc.org/sqlite"
)

const version = "v1.0.0-alpha2"

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type RegistryConfig struct {
	Path            string                     `mapstructure:"path"`
	CacheEntries    int                        `mapstructure:"cache_entries"`
	CacheTTLMinutes int                        `mapstructure:"cache_ttl_minutes"`
	Seeds           []store_registry.SeedStore `mapstructure:"seeds"`
}

type LimitsConfig struct {
	GlobalRate          float64 `mapstructure:"global_rate"`
	GlobalBurst         int     `mapstructure:"global_burst"`
	LoginMaxFailures    int     `mapstructure:"login_max_failures"`
	LoginLockoutMinutes int     `mapstructure:"login_lockout_minutes"`
	RefreshIndexMinutes int     `mapstructure:"refresh_index_minutes"`
}

type ObservabilityConfig struct {
	EnablePprof bool   `mapstructure:"enable_pprof"`
	PprofAddr   string `mapstructure:"pprof_addr"`
}

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Registry      RegistryConfig      `mapstructure:"registry"`
	Limits        LimitsConfig        `mapstructure:"limits"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

func main() {
	// 在日志系统完全初始化前，使用标准 log
	log.Printf("PluginHarbor Gateway %s 正在启动...", version)

	exePath, err := os.Executable()
	if err != nil {
		log.Fatalf("CRITICAL: 无法获取可执行文件路径: %v", err)
	}
	rootDir := filepath.Dir(filepath.Dir(exePath))

	viper.SetConfigFile(filepath.Join(rootDir, "configs", "config.yaml"))
	viper.SetEnvPrefix("HARBOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("registry.path", "instance/registry")
	viper.SetDefault("limits.global_rate", 50)
	viper.SetDefault("limits.global_burst", 100)
	viper.SetDefault("limits.login_max_failures", 5)
	viper.SetDefault("limits.login_lockout_minutes", 15)
	viper.SetDefault("limits.refresh_index_minutes", 10)
	viper.SetDefault("observability.pprof_addr", "0.0.0.0:6060")

	if err := viper.ReadInConfig(); err != nil {
		// 配置文件缺失时退回默认值 + 环境变量
		var notFound *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, new(viper.ConfigFileNotFoundError)) {
			log.Fatalf("CRITICAL: 读取配置文件失败: %v", err)
		}
		log.Println("ℹ️  未找到配置文件，使用默认配置与环境变量。")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("CRITICAL: 解析配置到结构体失败: %v", err)
	}

	harobserve.InitLogger(config.Server.LogLevel)
	slog.Info("PluginHarbor Gateway starting up", "version", version)
	slog.Info("检测到项目根目录", "path", rootDir)

	instanceDir := filepath.Join(rootDir, "instance")
	if _, err := os.Stat(instanceDir); os.IsNotExist(err) {
		_ = os.MkdirAll(instanceDir, 0755)
	}
	sysDB, err := initGatewayDB(filepath.Join(instanceDir, "gateway.db"))
	if err != nil {
		log.Fatalf("CRITICAL: 初始化网关数据库失败: %v", err)
	}
	defer func() {
		slog.Info("正在关闭网关数据库连接...")
		if err := sysDB.Close(); err != nil {
			slog.Error("关闭网关数据库时发生错误", "error", err)
		}
	}()

	// 确保表结构存在
	if err := service.InitPlatformTables(sysDB); err != nil {
		log.Fatalf("CRITICAL: 初始化平台系统表失败: %v", err)
	}
	if err := recommend.InitTable(sysDB); err != nil {
		log.Fatalf("CRITICAL: 初始化行为事件表失败: %v", err)
	}

	registryPath := config.Registry.Path
	if !filepath.IsAbs(registryPath) {
		registryPath = filepath.Join(rootDir, registryPath)
	}
	registry, err := store_registry.NewRegistry(
		registryPath,
		config.Registry.CacheEntries,
		time.Duration(config.Registry.CacheTTLMinutes)*time.Minute,
	)
	if err != nil {
		slog.Error("初始化商店注册表失败", "error", err)
		os.Exit(1)
	}
	slog.Info("服务层: StoreRegistry 初始化完成", "path", registryPath)

	ctx := context.Background()
	if err := registry.Seed(ctx, config.Registry.Seeds); err != nil {
		slog.Error("播种内置商店失败", "error", err)
		os.Exit(1)
	}
	if err := registry.StartWatcher(); err != nil {
		slog.Warn("商店注册表文件监视器启动失败，外部改动需等待缓存过期", "error", err)
	}

	behaviors := recommend.NewBehaviorStore(sysDB)
	if err := behaviors.Load(); err != nil {
		slog.Warn("恢复用户行为历史失败，推荐将从冷启动开始", "error", err)
	}
	recommender := recommend.NewEngine(behaviors, 10*time.Minute)
	taxoSvc := taxonomy.NewService()

	factory := func(store domain.PluginStore) (port.StoreClient, error) {
		return storeclient.New(store)
	}
	manager, err := store_manager.NewManager(registry, factory, nil, recommender, taxoSvc, downloader.Default(), nil, nil)
	if err != nil {
		slog.Error("初始化 StoreManager 失败", "error", err)
		os.Exit(1)
	}
	slog.Info("服务层: StoreManager 初始化完成")

	limitConfig, err := service.NewLimitConfigStore(sysDB)
	if err != nil {
		slog.Error("初始化 LimitConfigStore 失败", "error", err)
		os.Exit(1)
	}
	rateLimiter := harmiddleware.NewGatewayRateLimiter(limitConfig, config.Limits.GlobalRate, config.Limits.GlobalBurst)
	loginLock := harmiddleware.NewLoginFailureLock(
		config.Limits.LoginMaxFailures,
		time.Duration(config.Limits.LoginLockoutMinutes)*time.Minute,
	)
	slog.Info("服务层: GatewayRateLimiter 初始化完成")

	refreshLog := harobserve.With("refresher")
	refreshAll := func() {
		if err := manager.RefreshIndex(ctx); err != nil {
			refreshLog.Warn("刷新搜索索引失败", "error", err)
			return
		}
		if entries, err := registry.LocalEntries(ctx); err == nil {
			taxoSvc.RefreshStatistics(entries)
		}
	}
	refreshAll()
	go func() {
		ticker := time.NewTicker(time.Duration(config.Limits.RefreshIndexMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			refreshAll()
		}
	}()
	slog.Info("后台任务: 索引与统计定期刷新已启动。")

	var setupToken string
	var setupTokenDeadline time.Time
	if service.UserCount(sysDB) == 0 {
		setupToken = genToken()
		setupTokenDeadline = time.Now().Add(30 * time.Minute)
		slog.Warn("系统中无管理员，安装令牌已生成 (30分钟内有效)", "setup_token", setupToken)
	}

	httpRouter := router.New(router.Dependencies{
		Discovery:          manager,
		Recommender:        manager,
		Reviews:            manager,
		Taxonomy:           taxoSvc,
		StoreAdmin:         manager,
		AuthDB:             sysDB,
		LimitConfig:        limitConfig,
		Limiter:            rateLimiter,
		LoginLock:          loginLock,
		SetupToken:         setupToken,
		SetupTokenDeadline: setupTokenDeadline,
	})
	slog.Info("传输层: HTTP 路由器创建完成。")

	addr := fmt.Sprintf(":%d", config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: httpRouter,
	}

	go func() {
		slog.Info("PluginHarbor 网关启动成功，开始监听HTTP请求...", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP服务启动失败", "error", err)
			os.Exit(1)
		}
	}()

	if config.Observability.EnablePprof {
		harobserve.EnablePprof(config.Observability.PprofAddr)
	}
	harobserve.Register()
	slog.Info("监控: metrics 已注册。")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("收到停机信号，准备优雅关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP服务优雅关闭失败", "error", err)
		os.Exit(1)
	}

	slog.Info("HTTP服务已成功关闭。")
	slog.Info("程序即将退出。")
}

// initGatewayDB 封装了网关系统数据库的初始化逻辑
func initGatewayDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=ON&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开/创建网关数据库 '%s' 失败: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接网关数据库 '%s' (Ping) 失败: %w", path, err)
	}
	return db, nil
}

// genToken 生成一次性的安装令牌
func genToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "fallback_token_generation_failed"
	}
	return hex.EncodeToString(b)
}
