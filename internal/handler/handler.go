// Package handler 群组服务的 HTTP 处理器，只做参数绑定与响应转换。
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "sudooom.im.group/pkg/errors"
	"sudooom.im.group/pkg/response"
)

// parseID 解析路径中的数字 ID，失败时直接写入参数错误响应
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, "invalid "+name)
		return 0, false
	}
	return id, true
}

// bindJSON 绑定请求体，失败时直接写入参数错误响应
func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		response.ErrorWithMsg(c, apperrors.CodeInvalidParams, err.Error())
		return false
	}
	return true
}
