package payments

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jellydator/validation"

	"github.com/qikhub/walletledger/internal/keys"
	"github.com/qikhub/walletledger/internal/ledger"
	"github.com/qikhub/walletledger/internal/snapshot"
	"github.com/qikhub/walletledger/internal/wallet"
)

// Handler exposes transfer, deposit, history and key endpoints.
type Handler struct {
	service *Service
	store   snapshot.Store
}

// NewHandler constructs a payments handler. store may be nil, in which case
// the snapshot endpoint is unavailable.
func NewHandler(service *Service, store snapshot.Store) *Handler {
	return &Handler{service: service, store: store}
}

type transferRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   uint64 `json:"amount"`
	Currency string `json:"currency"`
	Memo     string `json:"memo"`
}

func (r transferRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.From, validation.Required, wallet.NotBlank),
		validation.Field(&r.To, validation.Required, wallet.NotBlank),
		validation.Field(&r.Currency, validation.Required, wallet.NotBlank, validation.Length(1, 16)),
		validation.Field(&r.Memo, validation.Length(0, 256)),
	)
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

// Transfer moves funds between two owners.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	id, err := h.service.Transfer(c.UserContext(), TransferInput{
		From:     req.From,
		To:       req.To,
		Amount:   req.Amount,
		Currency: req.Currency,
		Memo:     req.Memo,
	})
	if err != nil {
		return errorResponse(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"transaction_id": id})
}

// Deposit credits an owner's wallet with externally settled funds.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	balance, err := h.service.Deposit(c.UserContext(), c.Params("owner"), c.Params("currency"), req.Amount)
	if err != nil {
		return errorResponse(err)
	}
	return c.Status(http.StatusOK).JSON(balance)
}

// Transaction returns a single transaction.
func (h *Handler) Transaction(c *fiber.Ctx) error {
	tx, err := h.service.GetTransaction(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(err)
	}
	return c.Status(http.StatusOK).JSON(tx)
}

// History returns an owner's transactions, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(h.service.UserTransactions(c.UserContext(), c.Params("owner")))
}

// KeyRecord returns the owner's key record.
func (h *Handler) KeyRecord(c *fiber.Ctx) error {
	record, err := h.service.KeyRecord(c.UserContext(), c.Params("owner"))
	if err != nil {
		return errorResponse(err)
	}
	return c.Status(http.StatusOK).JSON(record)
}

// Snapshot persists the current ledger state.
func (h *Handler) Snapshot(c *fiber.Ctx) error {
	if h.store == nil {
		return fiber.NewError(http.StatusServiceUnavailable, "snapshot store not configured")
	}
	if err := h.service.Save(c.UserContext(), h.store); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

func errorResponse(err error) error {
	switch {
	case errors.Is(err, ErrSelfTransfer), errors.Is(err, ErrZeroAmount), errors.Is(err, wallet.ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, wallet.ErrInsufficientFunds), errors.Is(err, wallet.ErrReceiverWalletMissing),
		errors.Is(err, wallet.ErrBalanceOverflow):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, wallet.ErrNotFound), errors.Is(err, ledger.ErrTransactionNotFound), errors.Is(err, keys.ErrKeyNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, wallet.ErrWalletExists), errors.Is(err, ledger.ErrDuplicateTransaction):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
