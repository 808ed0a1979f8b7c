package controller

import (
	"assessment_backend/internal/service"
	"assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	AttemptService *service.AttemptService
}

func NewAttemptController(attemptService *service.AttemptService) *AttemptController {
	return &AttemptController{AttemptService: attemptService}
}

// @Summary 开始作答
// @Description 创建一次作答并返回第一个分区的题目（不含答案）
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "考试ID"
// @Success 201 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/tests/{id}/attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	testID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	view, err := c.AttemptService.StartAttempt(ctx.Request.Context(), testID, v.UserID, service.ClientInfo{
		IP:        ctx.ClientIP(),
		UserAgent: ctx.Request.UserAgent(),
	})
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Created(ctx, view)
}

// @Summary 作答详情（续考）
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	view, err := c.AttemptService.GetAttempt(ctx.Request.Context(), id, v)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 进入分区
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param index path int true "分区下标"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/sections/{index}/start [post]
func (c *AttemptController) StartSection(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	index, ok := pathIndex(ctx, "index")
	if !ok {
		return
	}
	view, err := c.AttemptService.StartSection(ctx.Request.Context(), id, v, index)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 分区状态
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param index path int true "分区下标"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/sections/{index} [get]
func (c *AttemptController) GetSectionStatus(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	index, ok := pathIndex(ctx, "index")
	if !ok {
		return
	}
	status, err := c.AttemptService.GetSectionStatus(ctx.Request.Context(), id, v, index)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// @Summary 分区题目
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param index path int true "分区下标"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/sections/{index}/questions [get]
func (c *AttemptController) GetSectionQuestions(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	index, ok := pathIndex(ctx, "index")
	if !ok {
		return
	}
	view, err := c.AttemptService.GetSectionQuestions(ctx.Request.Context(), id, v, index)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 保存答案
// @Tags 作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param answer body service.AnswerInput true "答案"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/answers [put]
func (c *AttemptController) SubmitAnswer(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.AnswerInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	ans, err := c.AttemptService.SubmitAnswer(ctx.Request.Context(), id, v, req)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, ans)
}

type flagRequest struct {
	Flagged bool `json:"flagged"`
}

// @Summary 标记题目
// @Tags 作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param questionId path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/answers/{questionId}/flag [put]
func (c *AttemptController) FlagQuestion(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}
	var req flagRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.AttemptService.FlagQuestion(ctx.Request.Context(), id, v, questionID, req.Flagged); err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"questionId": questionID, "flagged": req.Flagged})
}

// @Summary 交卷
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	attempt, err := c.AttemptService.Submit(ctx.Request.Context(), id, v)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 查询成绩
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/attempts/{id}/result [get]
func (c *AttemptController) GetResult(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	res, err := c.AttemptService.GetResult(ctx.Request.Context(), id, v)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 答案回顾
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/review [get]
func (c *AttemptController) GetReview(ctx *gin.Context) {
	v, ok := viewer(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	items, err := c.AttemptService.GetReview(ctx.Request.Context(), id, v)
	if err != nil {
		util.FromError(ctx, err)
		return
	}
	util.Success(ctx, items)
}
