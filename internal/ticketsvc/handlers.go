package ticketsvc

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/ticket-engine/internal/common"
	"github.com/noah-isme/ticket-engine/internal/ticket"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Handler exposes the ticket service over HTTP.
type Handler struct {
	Svc *Service
}

// Routes mounts the ticket endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/tickets", h.Open)
	r.Route("/tickets/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/orders", h.AddOrder)
		r.Post("/orders/cancel", h.CancelOrders)
		r.Post("/orders/extract", h.Extract)
		r.Post("/calculations", h.ApplyCalculation)
		r.Post("/payments", h.AddPayment)
		r.Delete("/payments/{index}", h.RemovePayment)
		r.Post("/submit", h.Submit)
		r.Post("/close", h.Close)
		r.Put("/tags", h.SetTag)
		r.Put("/resources", h.UpdateResource)
	})
}

type openRequest struct {
	DepartmentID int64  `json:"departmentId" validate:"required,gt=0"`
	AccountID    int64  `json:"accountId" validate:"gte=0"`
	Note         string `json:"note" validate:"max=500"`
}

type modifierRequest struct {
	TagName  string          `json:"tagName" validate:"required"`
	TagValue string          `json:"tagValue" validate:"required"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity" validate:"gte=0"`
}

type addOrderRequest struct {
	MenuItemID      int64             `json:"menuItemId" validate:"required,gt=0"`
	PortionName     string            `json:"portionName"`
	PriceTag        string            `json:"priceTag"`
	Quantity        decimal.Decimal   `json:"quantity" validate:"gte=0"`
	UserName        string            `json:"userName" validate:"max=100"`
	TimerTemplateID int64             `json:"timerTemplateId" validate:"gte=0"`
	Modifiers       []modifierRequest `json:"modifiers" validate:"dive"`
}

type cancelRequest struct {
	Orders []int `json:"orders" validate:"required,min=1,dive,gte=0"`
}

type selectionRequest struct {
	Index    int             `json:"index" validate:"gte=0"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
}

type extractRequest struct {
	Selections []selectionRequest `json:"selections" validate:"required,min=1,dive"`
}

type calculationRequest struct {
	TemplateID int64            `json:"templateId" validate:"required,gt=0"`
	Amount     *decimal.Decimal `json:"amount"`
}

type paymentRequest struct {
	PaymentTemplateID int64            `json:"paymentTemplateId" validate:"required,gt=0"`
	AccountID         int64            `json:"accountId" validate:"required,gt=0"`
	Amount            *decimal.Decimal `json:"amount" validate:"omitempty,gt=0"`
	UserID            int64            `json:"userId" validate:"gte=0"`
}

type submitRequest struct {
	Lock bool `json:"lock"`
}

type tagRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Value string `json:"value" validate:"max=500"`
}

type resourceRequest struct {
	TemplateID int64  `json:"templateId" validate:"required,gt=0"`
	ResourceID int64  `json:"resourceId" validate:"gte=0"`
	Name       string `json:"name"`
	AccountID  int64  `json:"accountId" validate:"gte=0"`
	CustomData string `json:"customData"`
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := h.Svc.Open(r.Context(), OpenInput{DepartmentID: req.DepartmentID, AccountID: req.AccountID, Note: req.Note})
	respond(w, http.StatusCreated, view, err)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Get(r.Context(), id)
	respond(w, http.StatusOK, view, err)
}

func (h *Handler) AddOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	var req addOrderRequest
	if !decode(w, r, &req) {
		return
	}
	in := AddOrderInput{
		MenuItemID:      req.MenuItemID,
		PortionName:     req.PortionName,
		PriceTag:        req.PriceTag,
		Quantity:        req.Quantity,
		UserName:        req.UserName,
		TimerTemplateID: req.TimerTemplateID,
	}
	for _, m := range req.Modifiers {
		in.Modifiers = append(in.Modifiers, ModifierInput(m))
	}
	view, err := h.Svc.AddOrder(r.Context(), id, in)
	respond(w, http.StatusCreated, view, err)
}

func (h *Handler) CancelOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := h.Svc.CancelOrders(r.Context(), id, req.Orders)
	respond(w, http.StatusOK, view, err)
}

func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	var req extractRequest
	if !decode(w, r, &req) {
		return
	}
	selections := make([]Selection, 0, len(req.Selections))
	for _, s := range req.Selections {
		selections = append(selections, Selection(s))
	}
	view, err := h.Svc.Extract(r.Context(), id, selections)
	respond(w, http.StatusOK, view, err)
}

func (h *Handler) ApplyCalculation(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	var req calculationRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := h.Svc.ApplyCalculation(r.Context(), id, req.TemplateID, req.Amount)
	respond(w, http.StatusOK, view, err)
}

func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	view, changeDue, err := h.Svc.AddPayment(r.Context(), id, AddPaymentInput(req))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": view, "change": changeDue})
}

func (h *Handler) RemovePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payment index", nil)
		return
	}
	view, err := h.Svc.RemovePayment(r.Context(), id, index)
	respond(w, http.StatusOK, view, err)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	view, err := h.Svc.Submit(r.Context(), id, req.Lock)
	respond(w, http.StatusOK, view, err)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Close(r.Context(), id)
	respond(w, http.StatusOK, view, err)
}

func (h *Handler) SetTag(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	var req tagRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := h.Svc.SetTag(r.Context(), id, req.Name, req.Value)
	respond(w, http.StatusOK, view, err)
}

func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(w, r)
	if !ok {
		return
	}
	var req resourceRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := h.Svc.UpdateResource(r.Context(), id, ResourceInput(req))
	respond(w, http.StatusOK, view, err)
}

func ticketID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid ticket id", nil)
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[fe.Field()] = fe.Tag()
			}
			common.WriteError(w, common.Invalid(details))
			return false
		}
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, view View, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.Data(w, status, view)
}

func writeServiceError(w http.ResponseWriter, err error) {
	common.WriteError(w, toAppError(err))
}

func toAppError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NotFound("ticket not found", err)
	case errors.Is(err, ErrTicketClosed):
		return common.Conflict(common.CodeTicketClosed, "ticket is closed", err)
	case errors.Is(err, ErrNothingToPay):
		return common.Conflict(common.CodeNothingToPay, "nothing left to pay", err)
	case errors.Is(err, ErrCannotClose):
		return common.Conflict(common.CodeUnpaidBalance, "ticket has an unpaid balance", err)
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnknownReference),
		errors.Is(err, ticket.ErrInvalidSelection),
		errors.Is(err, ticket.ErrOrderNotOwned):
		return common.BadRequest(err.Error(), err)
	default:
		return err
	}
}
