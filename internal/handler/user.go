package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aegisher/api/internal/model"
	"aegisher/api/internal/service"
)

// UserHandler serves users and their trusted circles
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler 创建用户处理器
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterRoutes 注册路由
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.POST("", h.CreateUser)
		users.GET("/:id", h.GetUser)
	}

	circle := r.Group("/trusted-circle")
	{
		circle.GET("/:userId", h.ListContacts)
		circle.POST("/:userId/add", h.AddContact)
		circle.PUT("/:userId/:contactId", h.UpdateContact)
		circle.DELETE("/:userId/:contactId", h.RemoveContact)
	}
}

// CreateUser 创建用户
// @Summary Create a user
// @Tags Users
// @Accept json
// @Produce json
// @Param body body model.CreateUserRequest true "User"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req model.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "user": user})
}

// GetUser 获取用户
// @Summary Get a user
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// ListContacts 获取信任圈
// @Summary List trusted contacts
// @Tags TrustedCircle
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /trusted-circle/{userId} [get]
func (h *UserHandler) ListContacts(c *gin.Context) {
	contacts, err := h.users.Contacts(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"count":    len(contacts),
		"contacts": contacts,
	})
}

// AddContact 添加联系人
// @Summary Add a trusted contact
// @Tags TrustedCircle
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param body body model.AddContactRequest true "Contact"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /trusted-circle/{userId}/add [post]
func (h *UserHandler) AddContact(c *gin.Context) {
	var req model.AddContactRequest
	if !bindJSON(c, &req) {
		return
	}
	contact, err := h.users.AddContact(c.Request.Context(), c.Param("userId"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Contact added to trusted circle",
		"contact": contact,
	})
}

// UpdateContact 更新联系人
// @Summary Update a trusted contact
// @Description Only the provided fields change
// @Tags TrustedCircle
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param contactId path string true "Contact ID"
// @Param body body model.UpdateContactRequest true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /trusted-circle/{userId}/{contactId} [put]
func (h *UserHandler) UpdateContact(c *gin.Context) {
	var req model.UpdateContactRequest
	if !bindJSON(c, &req) {
		return
	}
	contact, err := h.users.UpdateContact(c.Request.Context(), c.Param("userId"), c.Param("contactId"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Contact updated",
		"contact": contact,
	})
}

// RemoveContact 删除联系人
// @Summary Remove a trusted contact
// @Tags TrustedCircle
// @Produce json
// @Param userId path string true "User ID"
// @Param contactId path string true "Contact ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /trusted-circle/{userId}/{contactId} [delete]
func (h *UserHandler) RemoveContact(c *gin.Context) {
	if err := h.users.RemoveContact(c.Request.Context(), c.Param("userId"), c.Param("contactId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Contact removed from trusted circle",
	})
}
