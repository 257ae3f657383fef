package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"samadhaan/internal/middleware"
	"samadhaan/internal/models"
	"samadhaan/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// @Summary      Запрос кода
// @Description  Проверяет номер (E.164), тратит лимит и отправляет 6-значный код по SMS
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        login  body      models.LoginRequest  true  "Номер телефона"
// @Success      200    {object}  models.ChallengeTicket
// @Failure      400    {object}  ErrorResponse
// @Failure      429    {object}  ErrorResponse
// @Failure      503    {object}  ErrorResponse
// @Router       /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "login", err)
		return
	}
	ticket, err := h.authService.Login(c.Request.Context(), req.Phone, c.ClientIP())
	if err != nil {
		respondError(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// @Summary      Подтверждение кода
// @Description  Проверяет код, находит или создаёт пользователя и выдаёт пару токенов
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        verify  body      models.VerifyRequest  true  "Handle и код"
// @Success      200     {object}  models.VerifyResponse
// @Failure      400     {object}  ErrorResponse
// @Failure      410     {object}  ErrorResponse
// @Failure      503     {object}  ErrorResponse
// @Router       /api/v1/auth/verify [post]
func (h *AuthHandler) Verify(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "verify", err)
		return
	}
	device := req.Device
	if device == "" {
		device = c.Request.UserAgent()
	}
	res, err := h.authService.Verify(c.Request.Context(), req.ChallengeHandle, req.Code, device)
	if err != nil {
		respondError(c, "verify", err)
		return
	}
	c.JSON(http.StatusOK, models.VerifyResponse{TokenPair: *res.Tokens, User: res.User})
}

// @Summary      Обновление токенов
// @Description  Ротация: старый refresh-токен становится недействительным
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        refresh  body      models.RefreshRequest  true  "Refresh-токен"
// @Success      200      {object}  models.TokenPair
// @Failure      400      {object}  ErrorResponse
// @Failure      401      {object}  ErrorResponse
// @Failure      503      {object}  ErrorResponse
// @Router       /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh", err)
		return
	}
	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// @Summary      Выход
// @Description  Деактивирует сессию refresh-токена. Идемпотентно.
// @Tags         Auth
// @Accept       json
// @Param        logout  body  models.RefreshRequest  true  "Refresh-токен"
// @Success      204
// @Failure      400  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "logout", err)
		return
	}
	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		respondError(c, "logout", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Выход со всех устройств
// @Tags         Auth
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /api/v1/auth/logout/all [post]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID, ok := getInt64FromCtx(c, middleware.CtxUserID)
	if !ok {
		respondError(c, "logout_all", services.ErrTokenMalformed)
		return
	}
	if err := h.authService.LogoutAll(c.Request.Context(), userID); err != nil {
		respondError(c, "logout_all", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Профиль
// @Description  Пользователь и его членство в организациях (только чтение)
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.Profile
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := getInt64FromCtx(c, middleware.CtxUserID)
	if !ok {
		respondError(c, "me", services.ErrTokenMalformed)
		return
	}
	p, err := h.authService.Profile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "me", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Активные сессии
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   models.Session
// @Failure      401  {object}  ErrorResponse
// @Router       /api/v1/auth/sessions [get]
func (h *AuthHandler) Sessions(c *gin.Context) {
	userID, ok := getInt64FromCtx(c, middleware.CtxUserID)
	if !ok {
		respondError(c, "sessions", services.ErrTokenMalformed)
		return
	}
	list, err := h.authService.Sessions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "sessions", err)
		return
	}
	c.JSON(http.StatusOK, list)
}
