package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ecs/backend/internal/auth"
	"ecs/backend/internal/domain"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "用户管理",
	}
	cmd.AddCommand(
		newUserCreateCmd(a),
		newUserListCmd(a),
		newUserActiveCmd(a, "enable", "启用", true),
		newUserActiveCmd(a, "disable", "禁用", false),
	)
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var input auth.CreateUserInput

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "创建登录用户",
		Example: "  ecsctl user create --username clerk --password 'S3cure-pass' --full-name 'Office Clerk'",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			user, err := a.authService(store).CreateUser(cmd.Context(), input)
			if err != nil {
				return err
			}
			a.printf("已创建用户 %s (ID %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Username, "username", "", "用户名（必填）")
	cmd.Flags().StringVar(&input.Password, "password", "", "密码（必填）")
	cmd.Flags().StringVar(&input.FullName, "full-name", "", "姓名")
	cmd.Flags().StringVar(&input.Email, "email", "", "邮箱")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出全部用户",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			users, err := a.authService(store).ListUsers(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tACTIVE\tLAST LOGIN")
			for _, u := range users {
				fmt.Fprintln(w, userRow(u))
			}
			return w.Flush()
		},
	}
}

func userRow(u domain.User) string {
	lastLogin := "-"
	if u.LastLoginAt != nil {
		lastLogin = u.LastLoginAt.Local().Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("%d\t%s\t%s\t%t\t%s", u.ID, u.Username, u.FullName, u.IsActive, lastLogin)
}

func newUserActiveCmd(a *app, use, verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: verb + "用户",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := a.authService(store).SetActive(cmd.Context(), uint(id), active); err != nil {
				return err
			}
			a.printf("用户 %d 已%s\n", id, verb)
			return nil
		},
	}
}
