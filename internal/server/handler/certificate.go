package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/decertify/decertify/internal/certificate"
	"github.com/decertify/decertify/internal/identity"
	"go.uber.org/zap"
)

// CertificateHandler handles HTTP requests for certificate issuance,
// verification, and listing.
type CertificateHandler struct {
	anchor   *certificate.AnchorService
	resolver *certificate.VerificationResolver
	tokens   *identity.TokenIssuer
	logger   *zap.Logger
}

// NewCertificateHandler creates a new CertificateHandler.
func NewCertificateHandler(
	anchor *certificate.AnchorService,
	resolver *certificate.VerificationResolver,
	tokens *identity.TokenIssuer,
	logger *zap.Logger,
) *CertificateHandler {
	return &CertificateHandler{anchor: anchor, resolver: resolver, tokens: tokens, logger: logger}
}

// Register mounts the certificate routes on the given router group.
// Verification and record reads are public; everything else requires a
// session token.
func (h *CertificateHandler) Register(rg *gin.RouterGroup) {
	certs := rg.Group("/certificates")
	{
		certs.POST("", identity.RequireUser(h.tokens), h.Issue)
		certs.POST("/verify", h.Verify)
		certs.GET("/issued", identity.RequireUser(h.tokens), h.ListIssued)
		certs.GET("/:id", h.Get)
		certs.POST("/:id/revoke", identity.RequireUser(h.tokens), h.Revoke)
	}
}

// Issue handles POST /certificates — anchors and persists a new certificate.
// The issuer address comes from the caller's session, never the body.
func (h *CertificateHandler) Issue(c *gin.Context) {
	var req certificate.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims := identity.ClaimsFromContext(c)
	req.IssuerAddress = claims.WalletAddress

	rec, err := h.anchor.Issue(c.Request.Context(), req)
	if err != nil {
		var ve *certificate.ErrValidation
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Msg})
			return
		}
		if errors.Is(err, certificate.ErrIssuanceFailed) {
			h.logger.Error("issuance failed", zap.Error(err))
			RecordIssuance("failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "certificate issuance failed"})
			return
		}
		h.logger.Error("issue certificate", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	RecordIssuance("ok")
	c.JSON(http.StatusCreated, gin.H{
		"certificate":    rec,
		"transaction_id": rec.TransactionID,
	})
}

// Verify handles POST /certificates/verify — public, no auth.
// A missing record yields 404 with a found=false body; only infrastructure
// faults produce 5xx.
func (h *CertificateHandler) Verify(c *gin.Context) {
	var criteria certificate.Criteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verdict, err := h.resolver.Resolve(c.Request.Context(), criteria)
	if err != nil {
		var ve *certificate.ErrValidation
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Msg})
			return
		}
		if errors.Is(err, certificate.ErrVerificationUnavailable) {
			h.logger.Warn("verification unavailable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verification temporarily unavailable"})
			return
		}
		h.logger.Error("verify certificate", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if !verdict.Found {
		RecordVerification("not_found")
		c.JSON(http.StatusNotFound, verdict)
		return
	}

	RecordVerification(string(verdict.Status))
	c.JSON(http.StatusOK, verdict)
}

// Get handles GET /certificates/:id — public read of a single record.
func (h *CertificateHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	rec, err := h.anchor.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, certificate.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
			return
		}
		h.logger.Error("get certificate", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// ListIssued handles GET /certificates/issued — certificates issued by the
// caller's wallet address.
func (h *CertificateHandler) ListIssued(c *gin.Context) {
	claims := identity.ClaimsFromContext(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.anchor.ListIssuedBy(c.Request.Context(), claims.WalletAddress, limit, offset)
	if err != nil {
		h.logger.Error("list issued certificates", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"certificates": records,
		"count":        len(records),
	})
}

// Revoke handles POST /certificates/:id/revoke — issuer-only.
func (h *CertificateHandler) Revoke(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	claims := identity.ClaimsFromContext(c)
	if err := h.anchor.Revoke(c.Request.Context(), id, claims.WalletAddress); err != nil {
		if errors.Is(err, certificate.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
			return
		}
		var ve *certificate.ErrValidation
		if errors.As(err, &ve) {
			c.JSON(http.StatusForbidden, gin.H{"error": ve.Msg})
			return
		}
		h.logger.Error("revoke certificate", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
