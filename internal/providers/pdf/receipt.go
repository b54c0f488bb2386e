package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	paymentdomain "github.com/restorehq/restore/internal/payment/domain"
	"go.uber.org/zap"
)

const dateLayout = "January 2, 2006"

// RenderReceipt draws a single page receipt for a settled credit purchase.
func (p *Provider) RenderReceipt(ctx context.Context, receipt *paymentdomain.Receipt) ([]byte, error) {
	if receipt == nil {
		return nil, paymentdomain.ErrInvalidReceipt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, p.issuer, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, "Receipt", props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.ID.String(), props.Text{Top: 0, Size: 9}),
			text.New("Date paid: "+receipt.PaidAt.UTC().Format(dateLayout), props.Text{Top: 5, Size: 9}),
			text.New("Payment reference: "+receipt.ExternalPaymentID, props.Text{Top: 10, Size: 9}),
		),
		col.New(6).Add(
			text.New("Billed to", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
			text.New(receipt.Email, props.Text{Top: 5, Size: 9, Align: align.Right}),
		),
	)

	m.AddRow(14,
		text.NewCol(12, FormatAmount(receipt.Amount, receipt.Currency)+" paid on "+receipt.PaidAt.UTC().Format(dateLayout),
			props.Text{Size: 13, Style: fontstyle.Bold, Top: 4}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	description := receipt.Description
	if description == "" {
		description = "Credits"
	}
	m.AddRow(10,
		text.NewCol(6, description, props.Text{Size: 9}),
		text.NewCol(2, fmt.Sprintf("%d", receipt.Quantity), props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, FormatAmount(unitAmount(receipt), receipt.Currency), props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, FormatAmount(receipt.Amount, receipt.Currency), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Amount paid", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, FormatAmount(receipt.Amount, receipt.Currency), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		p.log.Warn("render receipt failed", zap.String("receipt_id", receipt.ID.String()), zap.Error(err))
		return nil, err
	}
	return doc.GetBytes(), nil
}

func unitAmount(receipt *paymentdomain.Receipt) int64 {
	if receipt.Quantity <= 0 {
		return receipt.Amount
	}
	return receipt.Amount / receipt.Quantity
}

// FormatAmount renders minor units, e.g. 25000 PHP as "PHP 250.00".
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s %s%d.%02d", strings.ToUpper(currency), sign, minor/100, minor%100)
}
