package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"meta-pixel-relay/internal/auth"
	"meta-pixel-relay/internal/config"
	"meta-pixel-relay/internal/logx"
	"meta-pixel-relay/internal/model"
	"meta-pixel-relay/internal/pixel"
	"meta-pixel-relay/internal/track"
	"meta-pixel-relay/internal/usercontext"
	"meta-pixel-relay/internal/util"
)

// adminTokenHeader authenticates calls to the /v1/admin endpoints.
const adminTokenHeader = "X-Relay-Admin-Token"

type handlers struct {
	cfg     *config.Config
	tracker *track.Tracker
	logger  *logx.Logger
}

func (h *handlers) register(router *gin.Engine) {
	v1 := router.Group("/v1")

	tr := v1.Group("/track")
	tr.POST("/pageview", h.handlePageView)
	tr.POST("/view-content", h.handleViewContent)
	tr.POST("/view-category", h.handleViewCategory)
	tr.POST("/add-to-wishlist", h.handleAddToWishlist)
	tr.POST("/add-to-cart", h.handleAddToCart)
	tr.POST("/initiate-checkout", h.handleInitiateCheckout)
	tr.POST("/add-payment-info", h.handleAddPaymentInfo)
	tr.POST("/purchase", h.handlePurchase)
	tr.POST("/search", h.handleSearch)
	tr.POST("/lead", h.handleLead)
	tr.POST("/registration", h.handleRegistration)

	v1.GET("/pixel/bootstrap", h.handlePixelBootstrap)

	admin := v1.Group("/admin", h.adminAuth)
	admin.POST("/self-test", h.handleSelfTest)
	admin.GET("/settings", h.handleGetSettings)
	admin.PUT("/settings", h.handleUpdateSettings)
	admin.POST("/settings/reload", h.handleReloadSettings)
	admin.GET("/logs", h.handleTailLogs)
	admin.DELETE("/logs", h.handleClearLogs)
}

// visitorContext is the identity block every tracking webhook carries. The
// storefront forwards whatever it knows about the visitor; every field is
// optional.
type visitorContext struct {
	SessionID       string               `json:"session_id"`
	PageURL         string               `json:"page_url"`
	Profile         *usercontext.Profile `json:"profile"`
	CheckoutForm    *model.Customer      `json:"checkout_form"`
	SessionCustomer *model.Customer      `json:"session_customer"`
	Cookies         map[string]string    `json:"cookies"`
}

type pageViewPayload struct {
	Visitor visitorContext `json:"visitor"`
	PageID  string         `json:"page_id"`
}

type productPayload struct {
	Visitor    visitorContext `json:"visitor"`
	Product    model.Product  `json:"product"`
	Quantity   int            `json:"quantity"`
	WishlistID string         `json:"wishlist_id"`
}

type categoryPayload struct {
	Visitor  visitorContext `json:"visitor"`
	Category string         `json:"category"`
	TermID   int64          `json:"term_id"`
}

type cartPayload struct {
	Visitor visitorContext `json:"visitor"`
	Cart    model.Cart     `json:"cart"`
}

type orderPayload struct {
	Visitor visitorContext `json:"visitor"`
	Order   model.Order    `json:"order"`
}

type searchPayload struct {
	Visitor visitorContext `json:"visitor"`
	Query   string         `json:"query"`
}

type leadPayload struct {
	Visitor  visitorContext `json:"visitor"`
	FormName string         `json:"form_name"`
	FormID   string         `json:"form_id"`
}

type registrationPayload struct {
	Visitor    visitorContext `json:"visitor"`
	CustomerID int64          `json:"customer_id"`
}

// trackResponse reports the outcome of one webhook. BrowserEvents and Script
// hand the storefront the fbq emissions that share the server event id.
type trackResponse struct {
	Status        string        `json:"status"`
	EventID       string        `json:"event_id,omitempty"`
	BrowserEvents []pixel.Event `json:"browser_events,omitempty"`
	Script        string        `json:"script,omitempty"`
}

// decode reads and authenticates the webhook body, then unmarshals it into
// dst. It writes the error response itself and reports whether the handler
// should proceed.
func (h *handlers) decode(c *gin.Context, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return false
	}
	if secret := h.cfg.WebhookSecret; secret != "" {
		signature := c.GetHeader(auth.SignatureHeader)
		if signature == "" || !auth.VerifySignature(secret, body, signature) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
			return false
		}
	}
	if util.IsBot(c.GetHeader("User-Agent"), h.cfg.BotUserAgents) {
		c.JSON(http.StatusOK, trackResponse{Status: "skipped"})
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return false
	}
	return true
}

// request builds the per-invocation tracking state from the webhook's visitor
// block plus the transport context of the webhook call itself.
func (h *handlers) request(c *gin.Context, v visitorContext) *track.Request {
	query := url.Values{}
	if parsed, err := url.Parse(v.PageURL); err == nil {
		query = parsed.Query()
	}
	in := usercontext.Input{
		Profile:   v.Profile,
		Checkout:  v.CheckoutForm,
		Session:   v.SessionCustomer,
		SessionID: v.SessionID,
		Request: usercontext.Request{
			Headers:    c.Request.Header,
			RemoteAddr: c.Request.RemoteAddr,
			Cookies:    v.Cookies,
			Query:      query,
		},
	}
	return track.NewRequest(in, v.PageURL)
}

func (h *handlers) respond(c *gin.Context, req *track.Request, eventID string) {
	resp := trackResponse{Status: "sent", EventID: eventID}
	if eventID == "" {
		resp.Status = "skipped"
	}
	if events := req.Pixel.Events(); len(events) > 0 {
		resp.BrowserEvents = events
		resp.Script = req.Pixel.RenderCalls()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) handlePageView(c *gin.Context) {
	var p pageViewPayload
	if !h.decode(c, &p) {
		return
	}
	req := h.request(c, p.Visitor)
	h.respond(c, req, h.tracker.PageView(c.Request.Context(), req, p.PageID))
}

func (h *handlers) handleViewContent(c *gin.Context) {
	var p productPayload
	if !h.decode(c, &p) {
		return
	}
	if p.Product.ID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product.id is required"})
		return
	}
	req := h.request(c, p.Visitor)
	h.respond(c, req, h.tracker.ViewContent(c.Request.Context(), req, p.Product))
}

func (h *handlers) handleViewCategory(c *gin.Context) {
	var p categoryPayload
	if !h.decode(c, &p) {
		return
	}
	if p.Category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})
		return
	}
	req := h.request(c, p.Visitor)
	h.respond(c, req, h.tracker.ViewCategory(c.Request.Context(), req, p.Category, p.TermID))
}

func (h *handlers) handleAddToWishlist(c *gin.Context) {
	var p productPayload
	if !h.decode(c, &p) {
		return
	}
	if p.Product.ID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product.id is required"})
		return
	}
	req := h.request(c, p.Visitor)
	h.respond(c, req, h.tracker.AddToWishlist(c.Request.Context(), req, p.Product, p.WishlistID))
}

func (h *handlers) handleAddToCart(c *gin.Context) {
	var p productPayload
	if !h.decode(c, &p) {
		return
	}
	if p.Product.ID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product.id is required"})
		return
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	req := h.request(c, p.Visitor)
	h.respond(c, req, h.tracker.AddToCart(c.Request.Context(), req, p.Product, p.Quantity))
}

func (h *handlers) handleInitiateCheckout(c *gin.Context) {
	var p cartPayload
	if !h.decode(c, &p) {
		return
	}
	req := h.request(c, p.Visitor)
	h.respond(c, req, h.tracker.InitiateCheckout(c.Request.Context(), req, p.Cart))
}

func (h *handlers) handleAddPaymentInfo(c *gin.Context) {
	var p cartPayload
	if !h.decode(c, &p) {
		return
	}
	req := h.request(c, p.Visitor)
	h.respond(c, req, h.tracker.AddPaymentInfo(c.Request.Context(), req, p.Cart))
}

func (h *handlers) handlePurchase(c *gin.Context) {
	var p orderPayload
	if !h.decode(c, &p) {
		return
	}
	if p.Order.ID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order.id is required"})
		return
	}
	req := h.request(c, p.Visitor)
	h.respond(c, req, h.tracker.Purchase(c.Request.Context(), req, p.Order))
}

func (h *handlers) handleSearch(c *gin.Context) {
	var p searchPayload
	if !h.decode(c, &p) {
		return
	}
	req := h.request(c, p.Visitor)
	h.respond(c, req, h.tracker.Search(c.Request.Context(), req, p.Query))
}

func (h *handlers) handleLead(c *gin.Context) {
	var p leadPayload
	if !h.decode(c, &p) {
		return
	}
	req := h.request(c, p.Visitor)
	h.respond(c, req, h.tracker.Lead(c.Request.Context(), req, p.FormName, p.FormID))
}

func (h *handlers) handleRegistration(c *gin.Context) {
	var p registrationPayload
	if !h.decode(c, &p) {
		return
	}
	req := h.request(c, p.Visitor)
	h.respond(c, req, h.tracker.CompleteRegistration(c.Request.Context(), req, p.CustomerID))
}

// handlePixelBootstrap serves the loader snippet the storefront injects into
// its page head. It requires no auth: the snippet only contains the pixel id,
// which is public by nature.
func (h *handlers) handlePixelBootstrap(c *gin.Context) {
	settings := h.cfg.Settings()
	if !settings.PixelEnabled || settings.PixelID == "" {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled":  true,
		"script":   pixel.Bootstrap(settings.PixelID),
		"noscript": pixel.NoscriptTag(settings.PixelID),
	})
}

func (h *handlers) adminAuth(c *gin.Context) {
	token := h.cfg.AdminToken
	if token == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin token not configured"})
		return
	}
	if c.GetHeader(adminTokenHeader) != token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
		return
	}
	c.Next()
}

func (h *handlers) handleSelfTest(c *gin.Context) {
	if err := h.tracker.SelfTest(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"status": "failed", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) handleGetSettings(c *gin.Context) {
	settings := h.cfg.Settings()
	if settings.AccessToken != "" {
		settings.AccessToken = "********"
	}
	c.JSON(http.StatusOK, settings)
}

func (h *handlers) handleUpdateSettings(c *gin.Context) {
	var s config.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload"})
		return
	}
	if err := h.cfg.UpdateSettings(s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.SetEnabled(h.cfg.Settings().EnableLogging)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) handleReloadSettings(c *gin.Context) {
	if err := h.cfg.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.SetEnabled(h.cfg.Settings().EnableLogging)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) handleTailLogs(c *gin.Context) {
	lines := 200
	if raw := c.Query("lines"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			lines = parsed
		}
	}
	tail, err := h.logger.Tail(lines)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": tail})
}

func (h *handlers) handleClearLogs(c *gin.Context) {
	if err := h.logger.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
