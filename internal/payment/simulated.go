package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SimulatedGateway платёжный шлюз для разработки: все списания успешны,
// кроме плательщиков, помеченных через Decline.
type SimulatedGateway struct {
	mu       sync.Mutex
	logger   *zap.Logger
	captures map[string]*CaptureResult // по ключу идемпотентности
	txns     map[string]bool           // txn -> возвращён
	declined map[string]string         // payerRef -> причина
	failNext error
}

func NewSimulatedGateway(logger *zap.Logger) *SimulatedGateway {
	return &SimulatedGateway{
		logger:   logger,
		captures: make(map[string]*CaptureResult),
		txns:     make(map[string]bool),
		declined: make(map[string]string),
	}
}

// Decline все следующие списания с payerRef будут отклонены
func (g *SimulatedGateway) Decline(payerRef, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declined[payerRef] = reason
}

// Allow снимает пометку Decline
func (g *SimulatedGateway) Allow(payerRef string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.declined, payerRef)
}

// FailNextRefund следующий Refund вернёт err
func (g *SimulatedGateway) FailNextRefund(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = err
}

func (g *SimulatedGateway) Capture(_ context.Context, req CaptureRequest) (*CaptureResult, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("invalid payment amount %d", req.Amount)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if req.IdempotencyKey != "" {
		if prev, ok := g.captures[req.IdempotencyKey]; ok {
			cp := *prev
			return &cp, nil
		}
	}

	var result *CaptureResult
	if reason, ok := g.declined[req.PayerRef]; ok {
		result = &CaptureResult{Success: false, Reason: reason}
	} else {
		result = &CaptureResult{Success: true, TransactionID: "pi_" + uuid.New().String()}
		g.txns[result.TransactionID] = false
	}

	if req.IdempotencyKey != "" {
		g.captures[req.IdempotencyKey] = result
	}

	g.logger.Info("Simulated capture",
		zap.String("payer", req.PayerRef),
		zap.Int64("amount", req.Amount),
		zap.String("currency", req.Currency),
		zap.Bool("success", result.Success))

	cp := *result
	return &cp, nil
}

func (g *SimulatedGateway) Refund(_ context.Context, transactionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failNext != nil {
		err := g.failNext
		g.failNext = nil
		return fmt.Errorf("refund %s: %w", transactionID, err)
	}

	if _, ok := g.txns[transactionID]; !ok {
		return fmt.Errorf("refund %s: unknown transaction", transactionID)
	}
	g.txns[transactionID] = true

	g.logger.Info("Simulated refund", zap.String("txn", transactionID))
	return nil
}

// Refunded был ли возврат по транзакции
func (g *SimulatedGateway) Refunded(transactionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.txns[transactionID]
}
