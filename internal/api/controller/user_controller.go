package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"ctchen222/popug-auth/internal/api/models"
	"ctchen222/popug-auth/internal/api/response"
	"ctchen222/popug-auth/internal/api/service"
	"ctchen222/popug-auth/internal/auth"
	"ctchen222/popug-auth/internal/validator"

	"github.com/gin-gonic/gin"
)

// Client-facing messages. None of them reveal which check failed.
const (
	msgInvalidBody        = "Request body is not valid JSON"
	msgValidationFailed   = "Request validation failed"
	msgUsernameTaken      = "Username is already taken"
	msgInvalidCredentials = "Invalid username and/or password"
	msgNotAuthenticated   = "Could not validate credentials"
	msgInternal           = "Internal server error"
)

// ContextUsernameKey is the gin context key holding the authenticated username.
const ContextUsernameKey = "auth.username"

// UserController handles user-related HTTP requests.
type UserController struct {
	userService service.UserService
}

// NewUserController creates a new UserController.
func NewUserController(userService service.UserService) *UserController {
	return &UserController{
		userService: userService,
	}
}

// Register handles the user registration endpoint.
func (uc *UserController) Register(c *gin.Context) {
	var req models.RegisterRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := uc.userService.Register(c.Request.Context(), &req)
	switch {
	case err == nil:
		response.CreatedResponse(c)
	case errors.Is(err, service.ErrUsernameTaken):
		response.ErrorResponse(c, http.StatusConflict, msgUsernameTaken)
	case errors.Is(err, service.ErrPasswordTooLong):
		response.ValidationErrorResponse(c, msgValidationFailed, map[string]string{"password": "bcryptsize"})
	default:
		internalError(c, "register failed", err)
	}
}

// Login handles the user login endpoint.
func (uc *UserController) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, err := uc.userService.Login(c.Request.Context(), &req)
	switch {
	case err == nil:
		response.SuccessResponse(c, models.LoginResponse{Token: token})
	case errors.Is(err, service.ErrInvalidCredentials):
		response.ErrorResponse(c, http.StatusUnauthorized, msgInvalidCredentials)
	default:
		internalError(c, "login failed", err)
	}
}

// Protected echoes the identity established by RequireAuth.
func (uc *UserController) Protected(c *gin.Context) {
	username := c.GetString(ContextUsernameKey)
	if username == "" {
		unauthorized(c)
		return
	}
	response.SuccessResponse(c, models.IdentityResponse{Name: username})
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's username under ContextUsernameKey.
func (uc *UserController) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c)
			return
		}

		username, err := uc.userService.Authenticate(c.Request.Context(), token)
		if err != nil {
			slog.DebugContext(c.Request.Context(), "rejected bearer token", "error", err)
			unauthorized(c)
			return
		}

		c.Set(ContextUsernameKey, username)
		c.Next()
	}
}

// bindAndValidate decodes the JSON body into req and runs the explicit
// validation step. It writes a 422 and returns false on failure.
func bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ValidationErrorResponse(c, msgInvalidBody, nil)
		return false
	}
	if err := validator.Struct(req); err != nil {
		response.ValidationErrorResponse(c, msgValidationFailed, validator.FieldErrors(err))
		return false
	}
	return true
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	response.ErrorResponse(c, http.StatusUnauthorized, msgNotAuthenticated)
}

func internalError(c *gin.Context, msg string, err error) {
	slog.ErrorContext(c.Request.Context(), msg, "error", err)
	response.ErrorResponse(c, http.StatusInternalServerError, msgInternal)
}
