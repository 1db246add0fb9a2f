package handlers

// ErrorResponse is returned by every failing endpoint
type ErrorResponse struct {
	Error string `json:"error" example:"monitor not found"`
}

// SuccessResponse is returned by endpoints without a richer body
type SuccessResponse struct {
	Message string `json:"message" example:"Monitor stop requested"`
}
