package response

// Error is the extras payload of a failed request.
type Error struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e Error) Error() string {
	return e.Message
}

func NewError(message string, fields map[string]string) Error {
	return Error{
		Message: message,
		Fields:  fields,
	}
}
