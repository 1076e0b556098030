package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-escrow/internal/auth"
	"ms-escrow/internal/cache"
	"ms-escrow/internal/config"
	"ms-escrow/internal/escrow"
	"ms-escrow/internal/keys"
	"ms-escrow/internal/logger"
	"ms-escrow/internal/qr"
	"ms-escrow/internal/utils"
)

type Handler struct {
	Service *escrow.Service
	Cache   *cache.EventCache
	QR      *qr.Generator
	Logger  *logger.Logger
	Faucet  config.FaucetConfig
}

func NewHandler(service *escrow.Service, eventCache *cache.EventCache, qrGen *qr.Generator, log *logger.Logger, faucet config.FaucetConfig) *Handler {
	return &Handler{
		Service: service,
		Cache:   eventCache,
		QR:      qrGen,
		Logger:  log,
		Faucet:  faucet,
	}
}

// Routes mounts every endpoint on a fresh router.
func (h *Handler) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/health", h.Health)
	r.Post("/airdrop", h.Airdrop)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/{address}", h.GetEvent)
		r.Post("/{address}/tickets", h.CreateTicket)
		r.Post("/{address}/join", h.JoinEvent)
		r.Post("/{address}/checkin", h.CheckIn)
		r.Post("/{address}/withdraw", h.Withdraw)
	})

	r.Get("/organizers/{address}/events", h.ListOrganizerEvents)

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/{address}", h.GetTicket)
		r.Get("/{address}/qr", h.TicketQR)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	signer, err := auth.SignerFromRequest(r)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse(err.Error(), "UNAUTHORIZED"))
		return
	}

	var req struct {
		EventID     uint64 `json:"event_id"`
		Price       uint64 `json:"price"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", "BAD_REQUEST"))
		return
	}

	addr, event, err := h.Service.CreateEvent(r.Context(), signer, req.EventID, req.Price, req.Title, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("event created", map[string]any{
		"address": addr.String(),
		"event":   event,
	}))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	addrStr := chi.URLParam(r, "address")

	var cached escrow.EventSummary
	if h.Cache.Get(r.Context(), addrStr, &cached) {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("event", cached))
		return
	}

	addr, err := keys.Parse(addrStr)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid address", "BAD_REQUEST"))
		return
	}

	summary, err := h.Service.GetEvent(r.Context(), addr)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.Cache.Set(r.Context(), addrStr, summary)
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("event", summary))
}

func (h *Handler) ListOrganizerEvents(w http.ResponseWriter, r *http.Request) {
	organizer, err := keys.Parse(chi.URLParam(r, "address"))
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid address", "BAD_REQUEST"))
		return
	}

	summaries, err := h.Service.ListEventsByOrganizer(r.Context(), organizer)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("events", summaries))
}

func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	signer, err := auth.SignerFromRequest(r)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse(err.Error(), "UNAUTHORIZED"))
		return
	}

	eventAddr, err := keys.Parse(chi.URLParam(r, "address"))
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid address", "BAD_REQUEST"))
		return
	}

	var req struct {
		Owner string `json:"owner"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	owner := signer
	if req.Owner != "" {
		if owner, err = keys.Parse(req.Owner); err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid owner", "BAD_REQUEST"))
			return
		}
	}

	addr, ticket, err := h.Service.CreateTicket(r.Context(), signer, eventAddr, owner)
	if err != nil {
		h.writeError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("ticket created", map[string]any{
		"address": addr.String(),
		"ticket":  ticket,
	}))
}

func (h *Handler) JoinEvent(w http.ResponseWriter, r *http.Request) {
	signer, err := auth.SignerFromRequest(r)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse(err.Error(), "UNAUTHORIZED"))
		return
	}

	eventAddr, err := keys.Parse(chi.URLParam(r, "address"))
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid address", "BAD_REQUEST"))
		return
	}

	var req struct {
		Mint string `json:"mint"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var mint keys.Address
	if req.Mint != "" {
		if mint, err = keys.Parse(req.Mint); err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid mint", "BAD_REQUEST"))
			return
		}
	} else {
		if mint, err = h.Service.PrepareMint(r.Context(), signer); err != nil {
			h.writeError(w, err)
			return
		}
	}

	addr, ticket, err := h.Service.JoinEvent(r.Context(), signer, eventAddr, mint)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.Cache.Invalidate(r.Context(), eventAddr.String())
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("joined event", map[string]any{
		"address": addr.String(),
		"ticket":  ticket,
		"mint":    mint.String(),
	}))
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	signer, err := auth.SignerFromRequest(r)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse(err.Error(), "UNAUTHORIZED"))
		return
	}

	eventAddr, err := keys.Parse(chi.URLParam(r, "address"))
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid address", "BAD_REQUEST"))
		return
	}

	var req struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", "BAD_REQUEST"))
		return
	}
	ticketAddr, err := keys.Parse(req.Ticket)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid ticket address", "BAD_REQUEST"))
		return
	}

	if err := h.Service.CheckIn(r.Context(), signer, eventAddr, ticketAddr); err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("checked in", nil))
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	signer, err := auth.SignerFromRequest(r)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse(err.Error(), "UNAUTHORIZED"))
		return
	}

	eventAddr, err := keys.Parse(chi.URLParam(r, "address"))
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid address", "BAD_REQUEST"))
		return
	}

	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", "BAD_REQUEST"))
		return
	}

	withdrawn, err := h.Service.Withdraw(r.Context(), signer, eventAddr, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.Cache.Invalidate(r.Context(), eventAddr.String())
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("withdrawn", map[string]any{
		"amount": withdrawn,
	}))
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	addr, err := keys.Parse(chi.URLParam(r, "address"))
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid address", "BAD_REQUEST"))
		return
	}

	ticket, err := h.Service.GetTicket(r.Context(), addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket", ticket))
}

func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	addr, err := keys.Parse(chi.URLParam(r, "address"))
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid address", "BAD_REQUEST"))
		return
	}

	ticket, err := h.Service.GetTicket(r.Context(), addr)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pass := qr.TicketPass{
		Ticket: addr.String(),
		Event:  ticket.Event.String(),
		Owner:  ticket.Owner.String(),
	}
	if ticket.Mint != nil {
		pass.Mint = ticket.Mint.String()
	}

	png, err := h.QR.GenerateTicketQR(pass)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to render QR", "INTERNAL"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// Airdrop deposits lamports into any address. Dev faucet, gated by config.
func (h *Handler) Airdrop(w http.ResponseWriter, r *http.Request) {
	if !h.Faucet.Enabled {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("faucet disabled", "FORBIDDEN"))
		return
	}

	var req struct {
		Address string `json:"address"`
		Amount  uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", "BAD_REQUEST"))
		return
	}
	addr, err := keys.Parse(req.Address)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid address", "BAD_REQUEST"))
		return
	}
	if req.Amount == 0 || req.Amount > h.Faucet.MaxAirdrop {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("amount out of range", "BAD_REQUEST"))
		return
	}

	if err := h.Service.Ledger.Airdrop(r.Context(), addr, req.Amount); err != nil {
		h.writeError(w, err)
		return
	}

	h.Cache.Invalidate(r.Context(), addr.String())
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("airdropped", map[string]any{
		"address": addr.String(),
		"amount":  req.Amount,
	}))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := escrow.Code(err)
	status := statusForCode(code)
	if h.Logger != nil && status >= http.StatusInternalServerError {
		h.Logger.Error("API", err.Error())
	}
	utils.WriteJSON(w, status, utils.ErrorResponse(err.Error(), code))
}

func statusForCode(code string) int {
	switch code {
	case "ALREADY_INITIALIZED", "ALREADY_CHECKED_IN":
		return http.StatusConflict
	case "UNAUTHORIZED_SIGNER":
		return http.StatusForbidden
	case "ACCOUNT_NOT_FOUND":
		return http.StatusNotFound
	case "INVALID_EVENT_REFERENCE", "INVALID_MINT", "INVALID_MINT_AUTHORITY",
		"MINT_IN_USE", "INSUFFICIENT_FUNDS", "ARITHMETIC_OVERFLOW", "RECORD_TOO_LARGE":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
