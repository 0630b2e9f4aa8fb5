package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/qikhub/walletledger/internal/payments"
)

// RegisterPaymentRoutes wires transfer, deposit, history and key endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/transfers", h.Transfer)
	r.Post("/owners/:owner/wallets/:currency/deposits", h.Deposit)
	r.Get("/transactions/:id", h.Transaction)
	r.Get("/owners/:owner/transactions", h.History)
	r.Get("/owners/:owner/keys", h.KeyRecord)
	r.Post("/admin/snapshots", h.Snapshot)
}
