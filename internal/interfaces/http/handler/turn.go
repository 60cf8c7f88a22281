package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"fiction-ai-api/internal/application/orchestrator"
	"fiction-ai-api/internal/interfaces/http/dto"
)

// TurnHandler 对话回合处理器
type TurnHandler struct {
	orch *orchestrator.Orchestrator
}

// NewTurnHandler 创建对话回合处理器
func NewTurnHandler(orch *orchestrator.Orchestrator) *TurnHandler {
	return &TurnHandler{orch: orch}
}

// HandleTurn 处理一句用户输入
// POST /v1/turns
func (h *TurnHandler) HandleTurn(c *gin.Context) {
	var req dto.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "text is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		dto.BadRequest(c, "text must not be blank")
		return
	}

	result, err := h.orch.HandleTurn(c.Request.Context(), req.Text)
	if err != nil {
		dto.AppError(c, err)
		return
	}

	dto.Success(c, dto.TurnResponse{
		Text:   result.Text,
		Intent: string(result.Intent),
	})
}
