package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/qikhub/walletledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/owners/:owner/wallets", h.List)
	r.Get("/owners/:owner/wallets/:currency", h.Info)
	r.Get("/owners/:owner/wallets/:currency/balance", h.Balance)
}
