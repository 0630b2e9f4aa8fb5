package wallet

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jellydator/validation"
)

// Operations is the wallet surface of the ledger service.
type Operations interface {
	CreateWallet(ctx context.Context, owner, currency string) (Wallet, error)
	ListWallets(ctx context.Context, owner string) []Wallet
	Balance(ctx context.Context, owner, currency string) (BalanceResponse, error)
	WalletInfo(ctx context.Context, owner, currency string) (Info, error)
}

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	ops Operations
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(ops Operations) *Handler {
	return &Handler{ops: ops}
}

type createRequest struct {
	Owner    string `json:"owner"`
	Currency string `json:"currency"`
}

func (r createRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Owner, validation.Required, NotBlank),
		validation.Field(&r.Currency, validation.Required, NotBlank, validation.Length(1, 16)),
	)
}

// NotBlank rejects strings made only of whitespace, which Required accepts.
var NotBlank = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s != "" && strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
})

// Create provisions a wallet for an owner in a currency.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.ops.CreateWallet(c.UserContext(), req.Owner, req.Currency)
	if err != nil {
		return errorResponse(err)
	}
	return c.Status(http.StatusCreated).JSON(w)
}

// List returns every wallet held by the owner.
func (h *Handler) List(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(h.ops.ListWallets(c.UserContext(), c.Params("owner")))
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	balance, err := h.ops.Balance(c.UserContext(), c.Params("owner"), c.Params("currency"))
	if err != nil {
		return errorResponse(err)
	}
	return c.Status(http.StatusOK).JSON(balance)
}

// Info returns wallet details with the owner's transaction count.
func (h *Handler) Info(c *fiber.Ctx) error {
	info, err := h.ops.WalletInfo(c.UserContext(), c.Params("owner"), c.Params("currency"))
	if err != nil {
		return errorResponse(err)
	}
	return c.Status(http.StatusOK).JSON(info)
}

func errorResponse(err error) error {
	switch {
	case errors.Is(err, ErrWalletExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBalanceOverflow):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
