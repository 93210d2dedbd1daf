package dto

// ErrorResponse is the body of every non-2xx answer. Fields is only set for
// validation failures and maps json field names to what is wrong with them.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func NewError(status int, message string) ErrorResponse {
	return ErrorResponse{Status: status, Message: message}
}
