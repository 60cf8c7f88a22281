package dto

// TurnRequest 对话回合请求
type TurnRequest struct {
	Text string `json:"text" binding:"required"`
}

// TurnResponse 对话回合响应
type TurnResponse struct {
	Text   string `json:"text"`
	Intent string `json:"intent"`
}
