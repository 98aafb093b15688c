package escpos

import (
	"fmt"

	"PrintStation/app/models"
)

func paymentMethodLabel(method string) string {
	switch method {
	case "cash":
		return "Dinheiro"
	case "card":
		return "Cartao"
	case "pix":
		return "PIX"
	default:
		return method
	}
}

// BuildCustomerReceipt renders a customer receipt as a segment list so
// the logo and QR bitmaps can be interleaved with text commands. A logo
// that fails to decode is skipped; the header text already names the
// restaurant, so the failure never aborts the ticket.
func BuildCustomerReceipt(data models.CustomerReceiptData, opts Options) *Document {
	b := NewBuilder(opts)

	b.SetAlign("center")
	if data.Restaurant.Logo != "" {
		if raster, err := logoRaster(data.Restaurant.Logo, b.Options()); err == nil {
			b.AddImage(raster)
		}
	}

	b.SetEmphasize(true)
	b.SetSize(2, 2)
	b.WriteLine(data.Restaurant.Name)
	b.SetSize(1, 1)
	b.SetEmphasize(false)
	if data.Restaurant.Address != "" {
		b.WriteLine(data.Restaurant.Address)
	}
	if data.Restaurant.Phone != "" {
		b.WriteLine("Tel: " + data.Restaurant.Phone)
	}
	if data.Restaurant.TaxID != "" {
		b.WriteLine("CNPJ: " + data.Restaurant.TaxID)
	}
	b.LineFeed()

	if data.ReceiptType == models.ReceiptTypeSummary {
		b.SetEmphasize(true)
		b.WriteLine("CONFERENCIA DE CONSUMO")
		b.SetEmphasize(false)
		b.WriteLine("*** NAO E DOCUMENTO FISCAL ***")
	} else {
		b.SetEmphasize(true)
		b.WriteLine("COMPROVANTE DE VENDA")
		b.SetEmphasize(false)
	}
	b.LineFeed()

	b.SetAlign("left")
	b.Separator()
	b.WriteLine("Pedido #" + data.OrderNumber)
	b.WriteLine("Data: " + data.CreatedAt.Format("2006-01-02 15:04:05"))
	if label := orderTypeLabel(data.OrderType, data.TableNumber); label != "" {
		b.WriteLine(label)
	}
	if data.CustomerName != "" {
		b.WriteLine("Cliente: " + data.CustomerName)
	}
	if data.Split != nil && data.Split.Of > 1 {
		b.WriteLine(fmt.Sprintf("Divisao de conta: %d/%d", data.Split.Part, data.Split.Of))
	}

	b.Separator()
	for _, item := range data.Items {
		b.WriteColumns(fmt.Sprintf("%dx %s", item.Quantity, item.Name), FormatMoney(item.Total))
		if item.Variation != "" {
			b.WriteIndentedLine(2, "("+item.Variation+")")
		}
		for _, extra := range item.Extras {
			b.WriteIndentedLine(2, "+ "+extraLabel(extra))
		}
		if item.Quantity > 1 {
			b.WriteIndentedLine(2, fmt.Sprintf("%d x %s", item.Quantity, FormatMoney(item.UnitPrice)))
		}
	}

	b.Separator()
	b.WriteColumns("Subtotal", FormatMoney(data.Subtotal))
	if data.DiscountAmount > 0 {
		label := "Desconto"
		if data.DiscountType == "percentage" {
			label = fmt.Sprintf("Desconto (%s%%)", FormatMoney(data.DiscountValue))
		}
		b.WriteColumns(label, "-"+FormatMoney(data.DiscountAmount))
	}
	if data.ServiceAmount > 0 {
		label := "Taxa de servico"
		if data.ServicePercent > 0 {
			label = fmt.Sprintf("Taxa de servico (%s%%)", FormatMoney(data.ServicePercent))
		}
		b.WriteColumns(label, FormatMoney(data.ServiceAmount))
	}
	b.SetEmphasize(true)
	b.SetSize(1, 2)
	b.WriteColumns("TOTAL", FormatMoney(data.Total))
	b.SetSize(1, 1)
	b.SetEmphasize(false)

	if len(data.Payments) > 0 {
		b.Separator()
		b.SetEmphasize(true)
		b.WriteLine("PAGAMENTOS")
		b.SetEmphasize(false)
		for _, payment := range data.Payments {
			b.WriteColumns(paymentMethodLabel(payment.Method), FormatMoney(payment.Amount))
		}
		if data.Change > 0 {
			b.WriteColumns("Troco", FormatMoney(data.Change))
		}
	}

	if data.ReceiptType == models.ReceiptTypeFiscal {
		b.LineFeed()
		b.SetAlign("center")
		if img, err := QRCodeImage("pedido:"+data.OrderNumber, 256); err == nil {
			if raster, rerr := RasterImage(img, LogoModeOriginal, b.Options().DotWidth()); rerr == nil {
				b.AddImage(raster)
			}
		}
	}

	b.LineFeed()
	b.SetAlign("center")
	b.WriteLine("Obrigado pela preferencia!")

	b.Finish()
	return b.Document()
}

// logoRaster converts the configured logo into a raster segment capped
// to the paper's dot width (or the configured maximum, if smaller).
func logoRaster(logo string, opts Options) (string, error) {
	img, err := DecodeBase64Image(logo)
	if err != nil {
		return "", err
	}

	maxWidth := opts.DotWidth()
	if opts.LogoMaxWidth > 0 && opts.LogoMaxWidth < maxWidth {
		maxWidth = opts.LogoMaxWidth
	}

	return RasterImage(img, opts.LogoMode, maxWidth)
}
