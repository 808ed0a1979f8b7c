package controller

import (
	"strconv"

	"assessment_backend/internal/service"
	"assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// viewer 从令牌中取出调用者；未登录时直接写 401
func viewer(ctx *gin.Context) (service.Viewer, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return service.Viewer{}, false
	}
	return service.Viewer{UserID: user.UserID, Staff: user.IsStaff()}, true
}

// pathID 解析路径中的数字 ID；非法时写 400
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func pathIndex(ctx *gin.Context, name string) (int, bool) {
	idx, ok := util.ParseIndex(ctx.Param(name))
	if !ok {
		util.BadRequest(ctx, "invalid "+name)
	}
	return idx, ok
}
