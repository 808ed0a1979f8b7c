package controller

import (
	"assessment_backend/internal/model"
	"assessment_backend/internal/service"
	"assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type GradingController struct {
	GradingService *service.GradingService
	AttemptService *service.AttemptService
}

func NewGradingController(gradingService *service.GradingService, attemptService *service.AttemptService) *GradingController {
	return &GradingController{
		GradingService: gradingService,
		AttemptService: attemptService,
	}
}

// @Summary 待人工评分列表
// @Tags 评分
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response
// @Router /api/staff/tests/{id}/ungraded [get]
func (c *GradingController) ListUngraded(ctx *gin.Context) {
	testID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	items, err := c.GradingService.ListUngraded(ctx.Request.Context(), testID)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, items)
}

// @Summary 人工评分
// @Tags 评分
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param questionId path int true "题目ID"
// @Param grade body service.GradeInput true "得分与评语"
// @Success 200 {object} util.Response
// @Router /api/staff/attempts/{id}/answers/{questionId}/grade [put]
func (c *GradingController) GradeAnswer(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}
	var req service.GradeInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	ans, err := c.GradingService.GradeAnswer(ctx.Request.Context(), attemptID, questionID, req, v.UserID)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, ans)
}

type bulkGradeRequest struct {
	Grades []service.BulkGrade `json:"grades" binding:"required,min=1,dive"`
}

// @Summary 按题批量评分
// @Description 全部校验通过后一次性提交，任一条失败则整体不生效
// @Tags 评分
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Param questionId path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/staff/tests/{id}/questions/{questionId}/grades [post]
func (c *GradingController) BulkGrade(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	testID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}
	var req bulkGradeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	n, err := c.GradingService.BulkGradeQuestion(ctx.Request.Context(), testID, questionID, req.Grades, v.UserID)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"graded": n})
}

// @Summary 汇总成绩并排名
// @Tags 评分
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/staff/tests/{id}/finalize [post]
func (c *GradingController) Finalize(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	testID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	summary, err := c.GradingService.FinalizeGrading(ctx.Request.Context(), testID, v.UserID)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

// @Summary 管理员强制交卷
// @Tags 评分
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response
// @Router /api/staff/attempts/{id}/auto-submit [post]
func (c *GradingController) ForceSubmit(ctx *gin.Context) {
	attemptID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	attempt, err := c.AttemptService.AutoSubmit(ctx.Request.Context(), attemptID, model.SubmitSourceAdmin)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}
