package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"castpair/internal/domain"
	"castpair/internal/metrics"
)

// MaxBodySize bounds request bodies; sealed payloads are small.
const MaxBodySize = 1 << 20

// Handler serves the pairing API from a Store.
type Handler struct {
	store   *Store
	metrics *metrics.Server
	log     logrus.FieldLogger
}

// NewHandler returns a handler backed by store. m may be nil.
func NewHandler(store *Store, m *metrics.Server, log logrus.FieldLogger) *Handler {
	return &Handler{store: store, metrics: m, log: log.WithField("component", "server")}
}

// NewRouter builds the gin engine with the pairing routes, access logging
// and, when g is non-nil, /metrics.
func NewRouter(h *Handler, g prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), AccessLog(h.log), MaxSize(MaxBodySize))

	cast := r.Group("/cast")
	{
		cast.POST("/device-info", h.RegisterDevice)
		cast.GET("/device-info/:code", h.DeviceInfo)
		cast.POST("/cast-data", h.ClaimCastData)
		cast.GET("/cast-data/:code", h.CastData)
	}
	if g != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(g)))
	}
	return r
}

// RegisterDevice issues a pairing code for the posted public key.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var in domain.DeviceInfo
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	code, err := h.store.Register(in.PublicKey)
	if err != nil {
		if errors.Is(err, ErrInvalidKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.WithError(err).Error("register device")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue code"})
		return
	}
	h.metrics.ObserveCodeIssued()
	h.log.WithField("code", code.String()).Info("issued pairing code")
	c.JSON(http.StatusOK, domain.DeviceCode{DeviceCode: code})
}

// DeviceInfo returns the public key registered for a code.
func (h *Handler) DeviceInfo(c *gin.Context) {
	code := domain.PairingCode(c.Param("code"))
	pub, err := h.store.PublicKey(code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, domain.DeviceInfo{PublicKey: pub})
}

// ClaimCastData attaches a sealed payload to a code.
func (h *Handler) ClaimCastData(c *gin.Context) {
	var in domain.CastDataClaim
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	err := h.store.Claim(in.DeviceCode, in.EncPayload)
	switch {
	case err == nil:
	case errors.Is(err, ErrEmptyPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.metrics.ObserveClaim()
	h.log.WithField("code", in.DeviceCode.String()).Info("payload claimed")
	c.Status(http.StatusNoContent)
}

// CastData returns the claimed payload for a code, or an empty string while
// the code is still waiting.
func (h *Handler) CastData(c *gin.Context) {
	code := domain.PairingCode(c.Param("code"))
	enc, err := h.store.Take(code)
	if err != nil {
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		return
	}
	if enc != "" {
		h.metrics.ObserveDelivery()
		h.log.WithField("code", code.String()).Info("payload delivered")
	}
	c.JSON(http.StatusOK, domain.CastData{EncCastData: enc})
}
