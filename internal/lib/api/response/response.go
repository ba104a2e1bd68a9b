package response

// Response is the envelope every API and websocket reply is wrapped in.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// Error codes reported to clients. Auth failures close the connection,
// everything else is scoped to the single request that triggered it.
const (
	CodeAuthFailed  = "AUTH_FAILED"
	CodeNotMember   = "NOT_MEMBER"
	CodeNotAllowed  = "NOT_ALLOWED"
	CodeNotFound    = "NOT_FOUND"
	CodeStoreError  = "STORE_ERROR"
	CodeDBError     = "DB_ERROR"
	CodeBadRequest  = "BAD_REQUEST"
	CodeInternalErr = "INTERNAL_ERROR"
)

func Ok(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

func Error(message string) Response {
	return Response{
		Success: false,
		Message: message,
	}
}

// ErrorCode builds a failure envelope carrying a machine-readable code.
func ErrorCode(code, message string) Response {
	return Response{
		Success: false,
		Message: message,
		Code:    code,
	}
}
