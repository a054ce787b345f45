// ecsctl 是公文收发登记系统的运维命令行：迁移数据库、管理用户与系统配置。
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ecs/backend/internal/auth"
	"ecs/backend/internal/config"
	"ecs/backend/internal/logger"
	"ecs/backend/internal/service"
	"ecs/backend/internal/storage/memory"
	sqlstore "ecs/backend/internal/storage/sql"
)

func main() {
	if err := newRootCmd(&app{out: os.Stdout}).Execute(); err != nil {
		os.Exit(1)
	}
}

// app 命令共享的配置与输出
type app struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ecsctl",
		Short:         "公文收发登记系统管理工具",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.SetOut(a.out)

	root.AddCommand(
		newMigrateCmd(a),
		newUserCmd(a),
		newSettingsCmd(a),
	)
	return root
}

// init 按需加载配置与日志
func (a *app) init() error {
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		a.cfg = cfg
	}
	if a.log == nil {
		log, err := logger.NewLogger(logger.FromConfig(a.cfg.Log))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.log = log
	}
	return nil
}

// openStore 打开数据库，Open 会执行自动迁移
func (a *app) openStore() (*sqlstore.Store, error) {
	return sqlstore.Open(a.cfg.Database, a.log)
}

// authService 命令行不建立会话，使用内存会话存储
func (a *app) authService(store *sqlstore.Store) *auth.Service {
	return auth.NewService(store, store, memory.NewSessionStore(), nil, auth.Options{}, a.log)
}

func (a *app) settingService(store *sqlstore.Store) *service.SettingService {
	return service.NewSettingService(store, service.NewActivityService(store, a.log))
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}
