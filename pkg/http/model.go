package http

// APIResponse is the envelope every endpoint returns.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"limit"`
	Message string                 `json:"message,omitempty" example:"limit is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}
