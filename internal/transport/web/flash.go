package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	flashCookie = "ecs_flash"
	flashMaxAge = 60
)

// FlashKind 提示类型，对应页面样式
type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
	FlashInfo    FlashKind = "info"
)

// Flash 跳转后只显示一次的提示
type Flash struct {
	Kind    FlashKind `json:"k"`
	Message string    `json:"m"`
}

func setFlash(c *gin.Context, f Flash, secure bool) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, base64.RawURLEncoding.EncodeToString(data), flashMaxAge, "/", "", secure, true)
}

// popFlash 读取并清除提示
func popFlash(c *gin.Context, secure bool) *Flash {
	value, err := c.Cookie(flashCookie)
	if err != nil || value == "" {
		return nil
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, "", -1, "/", "", secure, true)

	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var f Flash
	if err := json.Unmarshal(data, &f); err != nil || f.Message == "" {
		return nil
	}
	return &f
}
