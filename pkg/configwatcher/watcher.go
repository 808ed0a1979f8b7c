package configwatcher

import (
	"context"
	"path/filepath"
	"time"

	"assessment_backend/internal/config"
	"assessment_backend/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type ConfigReloader func(cfg *config.Config)

const debounce = time.Second

// WatchConfig 监听配置文件变化，防抖后重新加载并回调，直到 ctx 结束
func WatchConfig(ctx context.Context, configPath string, reloader ConfigReloader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}
	// 监听目录，编辑器的原子替换不会丢失 watch
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// 防抖处理
				fire = time.After(debounce)
			}
		case <-fire:
			fire = nil
			newCfg, err := config.LoadConfig(filepath.Dir(absPath))
			if err != nil {
				logger.Log.Error("Failed to reload config", zap.Error(err))
				continue
			}
			reloader(newCfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.Error("Config watcher error", zap.Error(err))
		}
	}
}

// LogLevelReloader 热更新时只应用日志级别，其余配置需重启生效
func LogLevelReloader(cfg *config.Config) {
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		logger.Log.Warn("Ignoring invalid log level", zap.String("level", cfg.Log.Level), zap.Error(err))
		return
	}
	logger.Log.Info("Log level reloaded", zap.String("level", cfg.Log.Level))
}
