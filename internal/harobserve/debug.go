// Package harobserve file: internal/harobserve/debug.go
package harobserve

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"
)

// EnablePprof 在独立端口上暴露 /debug/pprof 端点，避免与业务路由共用 mux。
// addr 形如 "localhost:6060" 或 ":6060"；为空则不启动。
func EnablePprof(addr string) {
	if addr == "" {
		slog.Info("pprof 未配置监听地址，跳过启动")
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("pprof 调试端点已启动", "address", addr)
		if err := server.ListenAndServe(); err != nil {
			slog.Error("pprof 端点退出", "error", err)
		}
	}()
}
