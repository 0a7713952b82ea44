package signing

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	reports := rg.Group("/reports")
	{
		reports.GET("/:id", h.GetReport)
		reports.POST("/:id/signatures/request-otp", h.RequestOTP)
		reports.POST("/:id/signatures/verify-otp", h.VerifyOTP)
		reports.POST("/:id/signatures", h.SubmitSignature)
	}
}

type requestOTPRequest struct {
	Role        SignerRole `json:"role" binding:"required"`
	ClientToken string     `json:"client_token"`
}

type verifyOTPRequest struct {
	Role        SignerRole `json:"role" binding:"required"`
	OTP         string     `json:"otp" binding:"required"`
	ClientToken string     `json:"client_token"`
}

type submitSignatureRequest struct {
	Role           SignerRole `json:"role" binding:"required"`
	OTP            string     `json:"otp" binding:"required"`
	SignatureImage string     `json:"signature_image" binding:"required"`
	ClientToken    string     `json:"client_token"`
}

func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func reportID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return uuid.Nil, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	msg := err.Error()
	var e *Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	c.JSON(HTTPStatus(err), gin.H{"error": msg})
}

func (h *Handler) RequestOTP(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	var req requestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issued, err := h.service.RequestOTP(c.Request.Context(), id, RequestOTPInput{
		Role:       req.Role,
		Credential: Credential{Bearer: bearerToken(c), ClientToken: req.ClientToken},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issued)
}

func (h *Handler) VerifyOTP(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verified, err := h.service.VerifyOTP(c.Request.Context(), id, VerifyOTPInput{
		Role:       req.Role,
		Code:       req.OTP,
		Credential: Credential{Bearer: bearerToken(c), ClientToken: req.ClientToken},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, verified)
}

func (h *Handler) SubmitSignature(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}
	var req submitSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.SubmitSignature(c.Request.Context(), id, SubmitSignatureInput{
		Role:           req.Role,
		Code:           req.OTP,
		SignatureImage: req.SignatureImage,
		Credential:     Credential{Bearer: bearerToken(c), ClientToken: req.ClientToken},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetReport(c *gin.Context) {
	id, ok := reportID(c)
	if !ok {
		return
	}

	view, err := h.service.GetReport(c.Request.Context(), id, Credential{
		Bearer:      bearerToken(c),
		ClientToken: c.Query("token"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
