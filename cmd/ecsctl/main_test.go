package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ecs/backend/internal/config"
)

func testApp(t *testing.T) *app {
	t.Helper()
	return &app{
		cfg: &config.Config{
			Database: config.DatabaseConfig{
				Driver: "sqlite",
				DSN:    filepath.Join(t.TempDir(), "ecs.db"),
			},
		},
		log: zap.NewNop(),
	}
}

// runCmd 每次使用新的命令树执行，返回输出
func runCmd(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a.out = &out

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	a := testApp(t)

	out, err := runCmd(t, a, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "数据库迁移完成 (sqlite)")

	out, err = runCmd(t, a, "settings", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "org_name")
	assert.Contains(t, out, "items_per_page")
}

func TestUserCommands(t *testing.T) {
	a := testApp(t)

	out, err := runCmd(t, a, "user", "create", "--username", "clerk", "--password", "Password123!", "--full-name", "Office Clerk")
	require.NoError(t, err)
	assert.Contains(t, out, "已创建用户 clerk")

	_, err = runCmd(t, a, "user", "create", "--username", "clerk", "--password", "Password123!")
	assert.Error(t, err, "用户名重复")

	_, err = runCmd(t, a, "user", "create", "--username", "nopass")
	assert.Error(t, err, "缺少必填参数")

	out, err = runCmd(t, a, "user", "disable", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "用户 1 已禁用")

	out, err = runCmd(t, a, "user", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "clerk")
	assert.Contains(t, out, "Office Clerk")
	assert.Contains(t, out, "false")

	_, err = runCmd(t, a, "user", "enable", "abc")
	assert.Error(t, err)
}

func TestSettingsSet(t *testing.T) {
	a := testApp(t)

	out, err := runCmd(t, a, "settings", "set", "items_per_page", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "items_per_page = 50")

	_, err = runCmd(t, a, "settings", "set", "items_per_page", "0")
	assert.Error(t, err)

	out, err = runCmd(t, a, "settings", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "50")
}
