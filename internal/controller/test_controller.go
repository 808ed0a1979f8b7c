package controller

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"assessment_backend/internal/service"
	"assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// TestController 考试生命周期与统计导出（教师端）
type TestController struct {
	LifecycleService *service.LifecycleService
	ReportService    *service.ReportService
}

func NewTestController(lifecycleService *service.LifecycleService, reportService *service.ReportService) *TestController {
	return &TestController{
		LifecycleService: lifecycleService,
		ReportService:    reportService,
	}
}

// @Summary 设置考试时间
// @Tags 考试管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Param schedule body service.ScheduleInput true "开始/结束时间"
// @Success 200 {object} util.Response
// @Router /api/staff/tests/{id}/schedule [post]
func (c *TestController) Schedule(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.ScheduleInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	test, err := c.LifecycleService.ScheduleTest(ctx.Request.Context(), id, req)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// @Summary 立即发布
// @Tags 考试管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/staff/tests/{id}/publish [post]
func (c *TestController) Publish(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	test, err := c.LifecycleService.PublishNow(ctx.Request.Context(), id)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// @Summary 结束考试
// @Description 结束考试并自动提交所有未交卷的作答
// @Tags 考试管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/staff/tests/{id}/complete [post]
func (c *TestController) Complete(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	test, err := c.LifecycleService.CompleteTest(ctx.Request.Context(), id)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// @Summary 归档考试
// @Tags 考试管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/staff/tests/{id}/archive [post]
func (c *TestController) Archive(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	test, err := c.LifecycleService.ArchiveTest(ctx.Request.Context(), id)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// @Summary 考试统计
// @Tags 考试管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/staff/tests/{id}/stats [get]
func (c *TestController) Stats(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	stats, err := c.ReportService.Stats(ctx.Request.Context(), id)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// @Summary 导出成绩
// @Description 默认直接下载 CSV；upload=true 时上传到对象存储并返回链接
// @Tags 考试管理
// @Produce text/csv
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Param upload query bool false "上传到存储"
// @Success 200 {file} file
// @Router /api/staff/tests/{id}/export [get]
func (c *TestController) Export(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if ctx.Query("upload") == "true" {
		url, err := c.ReportService.ExportToStorage(ctx.Request.Context(), id)
		if err != nil {
			util.FromError(ctx, err)
			return
		}
		util.Success(ctx, gin.H{"url": url})
		return
	}

	// 先写缓冲区，出错时还能返回 JSON 错误
	var buf bytes.Buffer
	if err := c.ReportService.ExportCSV(ctx.Request.Context(), id, &buf); err != nil {
		util.FromError(ctx, err)
		return
	}
	name := fmt.Sprintf("test-%d-%s.csv", id, time.Now().Format("20060102"))
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	ctx.Data(http.StatusOK, util.MimeCSV, buf.Bytes())
}
