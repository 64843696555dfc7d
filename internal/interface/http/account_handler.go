package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-service/internal/application"
	"github.com/oksasatya/account-service/internal/domain/entity"
	"github.com/oksasatya/account-service/pkg/helpers"
	"github.com/oksasatya/account-service/pkg/response"
	"github.com/oksasatya/account-service/pkg/validation"
)

const maxAvatarBytes = 5 << 20

// AccountService is the application surface the handler depends on.
type AccountService interface {
	Authenticate(ctx context.Context, username, password string) (*entity.Account, error)
	Register(ctx context.Context, in application.RegisterInput) (*entity.Account, error)
	GetByID(ctx context.Context, id string) (*entity.Account, error)
	GetByUsername(ctx context.Context, username string) (*entity.Account, error)
	Update(ctx context.Context, id string, patch entity.AccountPatch) (*entity.Account, error)
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]*entity.Account, error)
	SearchAccounts(ctx context.Context, q string, size int) ([]*entity.Account, error)
	UploadAvatar(ctx context.Context, id string, r io.Reader, filename, contentType string) (*entity.Account, error)
}

type AccountHandler struct {
	Svc    AccountService
	Logger *logrus.Logger
}

func NewAccountHandler(svc AccountService, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{Svc: svc, Logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username    string `json:"username" binding:"required,username"`
	Password    string `json:"password" binding:"required,pwd"`
	Email       string `json:"email" binding:"omitempty,email"`
	DisplayName string `json:"display_name" binding:"omitempty,max=100"`
	Phone       string `json:"phone" binding:"omitempty,phone"`
	AvatarURL   string `json:"avatar_url" binding:"omitempty,url"`
}

// updateRequest accepts an "id" so clients can send back a full account;
// it is ignored in favour of the path id.
type updateRequest struct {
	ID          *string `json:"id"`
	Username    *string `json:"username" binding:"omitempty,username"`
	Password    *string `json:"password" binding:"omitempty,pwd"`
	Email       *string `json:"email" binding:"omitempty,email"`
	DisplayName *string `json:"display_name" binding:"omitempty,max=100"`
	Phone       *string `json:"phone" binding:"omitempty,phone"`
	AvatarURL   *string `json:"avatar_url" binding:"omitempty,url"`
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	a, err := h.Svc.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, a, "login successful", nil)
}

func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	a, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, a, "account registered", nil)
}

func (h *AccountHandler) List(c *gin.Context) {
	all, err := h.Svc.ListAll(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, all, "accounts", map[string]any{"count": len(all)})
}

func (h *AccountHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	hits, err := h.Svc.SearchAccounts(c.Request.Context(), c.Query("q"), size)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, hits, "search results", map[string]any{"count": len(hits)})
}

func (h *AccountHandler) GetByID(c *gin.Context) {
	a, err := h.Svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, a, "account", nil)
}

func (h *AccountHandler) GetByUsername(c *gin.Context) {
	a, err := h.Svc.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, a, "account", nil)
}

func (h *AccountHandler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	a, err := h.Svc.Update(c.Request.Context(), c.Param("id"), entity.AccountPatch{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, a, "account updated", nil)
}

func (h *AccountHandler) Delete(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, map[string]any{"deleted": true}, "account deleted", nil)
}

// UploadAvatar accepts a multipart "file" field. The content type is sniffed
// from the bytes; the client-declared header is not trusted.
func (h *AccountHandler) UploadAvatar(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{"file": "is required"})
		return
	}
	if fh.Size > maxAvatarBytes {
		response.Error[any](c, http.StatusRequestEntityTooLarge, "file too large", map[string]string{"file": "must be at most 5MB"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{"file": "cannot be read"})
		return
	}
	defer func() { _ = f.Close() }()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{"file": "cannot be read"})
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		h.writeError(c, err)
		return
	}

	a, err := h.Svc.UploadAvatar(c.Request.Context(), c.Param("id"), f, fh.Filename, mt.String())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, a, "avatar uploaded", nil)
}

func (h *AccountHandler) writeError(c *gin.Context, err error) {
	var ve *application.ValidationError
	switch {
	case errors.As(err, &ve):
		response.Error[any](c, http.StatusBadRequest, "validation failed", map[string]string{ve.Field: ve.Message})
	case errors.Is(err, application.ErrInvalidCredentials):
		response.Error[any](c, http.StatusUnauthorized, application.ErrInvalidCredentials.Error(), nil)
	case errors.Is(err, application.ErrNotFound):
		response.Error[any](c, http.StatusNotFound, "account not found", nil)
	case errors.Is(err, application.ErrConflict):
		response.Error[any](c, http.StatusConflict, "username already taken", map[string]string{"username": "is already taken"})
	case errors.Is(err, application.ErrUnavailable):
		response.Error[any](c, http.StatusServiceUnavailable, "feature not configured", nil)
	default:
		if h.Logger != nil {
			helpers.LogError(h.Logger, "account request failed", err, logrus.Fields{
				"request_id": c.GetString("request_id"),
				"path":       c.FullPath(),
			})
		}
		response.Error[any](c, http.StatusInternalServerError, "internal server error", nil)
	}
}
