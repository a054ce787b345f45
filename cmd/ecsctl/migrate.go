package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "迁移数据库表结构并写入默认配置",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Migrate(); err != nil {
				return err
			}

			settings := a.settingService(store)
			defer settings.Close()
			if err := settings.Seed(cmd.Context()); err != nil {
				return err
			}

			a.log.Info("database migrated", zap.String("driver", store.Driver()))
			a.printf("数据库迁移完成 (%s)\n", store.Driver())
			return nil
		},
	}
}
