// Package payment credits wallets for payment-gateway callbacks whose
// signature has been verified.
package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/inbound"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

var _ inbound.PaymentService = (*Service)(nil)

// Service confirms payments.
type Service struct {
	wallet   inbound.WalletService
	verifier outbound.SignatureVerifier
	logger   *slog.Logger
}

// NewService creates a payment confirmation service.
func NewService(wallet inbound.WalletService, verifier outbound.SignatureVerifier, logger *slog.Logger) (*Service, error) {
	if wallet == nil {
		return nil, fmt.Errorf("wallet service cannot be nil")
	}
	if verifier == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		wallet:   wallet,
		verifier: verifier,
		logger:   logger.With("component", "payment"),
	}, nil
}

// Confirm deposits the paid amount once the gateway signature checks out.
func (s *Service) Confirm(ctx context.Context, p inbound.PaymentConfirmation) (*inbound.OperationResult, error) {
	if p.UserID == "" {
		return nil, entity.ErrInvalidUser
	}
	if p.OrderID == "" || p.PaymentID == "" || p.Signature == "" {
		return nil, fmt.Errorf("%w: order id, payment id and signature are required", entity.ErrInvalidSignature)
	}
	if !s.verifier.Verify(p.OrderID, p.PaymentID, p.Signature) {
		s.logger.Warn("payment signature rejected", "userId", p.UserID, "orderId", p.OrderID, "paymentId", p.PaymentID)
		return nil, entity.ErrInvalidSignature
	}

	res, err := s.wallet.Deposit(ctx, p.UserID, p.Amount)
	if err != nil {
		return nil, fmt.Errorf("crediting payment %s: %w", p.PaymentID, err)
	}
	s.logger.Info("payment credited",
		"userId", p.UserID,
		"orderId", p.OrderID,
		"paymentId", p.PaymentID,
		"transactionId", res.TransactionID)
	return res, nil
}
