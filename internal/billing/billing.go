package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joelkehle/inventavault/internal/logging"
	"github.com/joelkehle/inventavault/internal/pipeline"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// FeeSchedule maps a currency code to the recording fee in that currency.
type FeeSchedule map[string]string

var DefaultFees = FeeSchedule{
	"ETH":  "0.001",
	"USDC": "5.00",
}

func (s FeeSchedule) Fee(currency string) (pipeline.Fee, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	amount, ok := s[code]
	if !ok {
		return pipeline.Fee{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	return pipeline.Fee{Amount: amount, Currency: code}, nil
}

// WaivedProcessor accepts every well-formed charge without moving funds. It
// stands in for a wallet in development and tests.
type WaivedProcessor struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewWaivedProcessor(logger *zap.Logger) *WaivedProcessor {
	return &WaivedProcessor{logger: logging.OrNop(logger).Named("billing"), now: time.Now}
}

func (p *WaivedProcessor) Charge(ctx context.Context, amount, currency string) (pipeline.PaymentReceipt, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.PaymentReceipt{}, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil || v <= 0 {
		return pipeline.PaymentReceipt{}, fmt.Errorf("invalid amount %q", amount)
	}
	if strings.TrimSpace(currency) == "" {
		return pipeline.PaymentReceipt{}, fmt.Errorf("%w: empty", ErrUnsupportedCurrency)
	}
	receipt := pipeline.PaymentReceipt{
		Reference: "waived-" + uuid.NewString(),
		Amount:    strings.TrimSpace(amount),
		Currency:  strings.ToUpper(strings.TrimSpace(currency)),
		PaidAt:    p.now().UTC(),
	}
	p.logger.Info("payment_waived", zap.String("reference", receipt.Reference), zap.String("amount", receipt.Amount), zap.String("currency", receipt.Currency))
	return receipt, nil
}
