package services

import (
	"fmt"
	"html/template"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"PrintStation/app/escpos"
	"PrintStation/app/models"
)

// FallbackRenderer produces an HTML rendition of a ticket and hands it
// to the operating system's print flow when the agent path is
// unavailable. Rendering mirrors the ESC/POS layout: same header,
// items, notes and totals, sized to the configured paper width.
type FallbackRenderer struct {
	enabled   bool
	printer   string
	outputDir string
	logger    *LoggerService

	// printFile dispatches a rendered file to the OS printer; replaced
	// in tests.
	printFile func(path, printer string) error

	checkDestination sync.Once
}

// NewFallbackRenderer creates the fallback path. With enabled false all
// Print methods degrade to a logged no-op error.
func NewFallbackRenderer(enabled bool, printer string, logger *LoggerService) *FallbackRenderer {
	outputDir := filepath.Join(os.TempDir(), "printstation-fallback")
	return &FallbackRenderer{
		enabled:   enabled,
		printer:   printer,
		outputDir: outputDir,
		logger:    logger,
		printFile: dispatchToOSPrinter,
	}
}

func dispatchToOSPrinter(path, printer string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("powershell", "-Command",
			fmt.Sprintf("Start-Process -FilePath '%s' -Verb Print -WindowStyle Hidden", path))
	} else {
		args := []string{path}
		if printer != "" {
			args = append([]string{"-d", printer}, args...)
		}
		cmd = exec.Command("lp", args...)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("os print command failed: %w (%s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}

var fallbackFuncs = template.FuncMap{
	"money": escpos.FormatMoney,
	"time": func(t time.Time) string {
		return t.Format("15:04:05")
	},
	"datetime": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05")
	},
	"extra": func(e string) string {
		if idx := strings.Index(e, ": "); idx != -1 {
			return e[idx+2:]
		}
		return e
	},
	"upper": strings.ToUpper,
	"inc":   func(i int) int { return i + 1 },
}

const fallbackStyle = `
<style>
  body { font-family: monospace; width: {{.Width}}; margin: 0; padding: 4px; font-size: 12px; }
  .center { text-align: center; }
  .bold { font-weight: bold; }
  .big { font-size: 18px; }
  .indent { padding-left: 12px; }
  .indent2 { padding-left: 24px; }
  hr { border: none; border-top: 1px dashed #000; }
  .row { display: flex; justify-content: space-between; }
</style>
`

var kitchenFallbackTmpl = template.Must(template.New("kitchen").Funcs(fallbackFuncs).Parse(fallbackStyle + `
<div class="center bold big">{{if .Data.SectorName}}{{upper .Data.SectorName}}{{else}}COZINHA{{end}}</div>
{{if .Data.Duplicate}}<div class="center">*** 2a VIA ***</div>{{end}}
<hr>
<div class="bold">PEDIDO #{{.Data.OrderNumber}}</div>
<div>Hora: {{time .Data.CreatedAt}}</div>
<div class="bold">{{.OrderTypeLabel}}</div>
{{if .Data.CustomerName}}<div>Cliente: {{.Data.CustomerName}}</div>{{end}}
<hr>
{{range .Data.Items}}
<div class="bold">{{.Quantity}}x {{.Name}}</div>
{{if .Variation}}<div class="indent">({{.Variation}})</div>{{end}}
{{range .Extras}}<div class="indent">+ {{extra .}}</div>{{end}}
{{if .Notes}}<div class="indent">OBS: {{.Notes}}</div>{{end}}
{{range .SubItems}}
<div class="indent">{{inc .SubItemIndex}}) {{.Name}}</div>
{{range .Extras}}<div class="indent2">+ {{extra .}}</div>{{end}}
{{if .Notes}}<div class="indent2">OBS: {{.Notes}}</div>{{end}}
{{end}}
{{end}}
{{if .Data.Notes}}<hr><div class="bold">OBS:</div><div>{{.Data.Notes}}</div>{{end}}
`))

var receiptFallbackTmpl = template.Must(template.New("receipt").Funcs(fallbackFuncs).Parse(fallbackStyle + `
<div class="center bold big">{{.Data.Restaurant.Name}}</div>
{{if .Data.Restaurant.Address}}<div class="center">{{.Data.Restaurant.Address}}</div>{{end}}
{{if .Data.Restaurant.Phone}}<div class="center">Tel: {{.Data.Restaurant.Phone}}</div>{{end}}
{{if .Summary}}
<div class="center bold">CONFERENCIA DE CONSUMO</div>
<div class="center">*** NAO E DOCUMENTO FISCAL ***</div>
{{else}}
<div class="center bold">COMPROVANTE DE VENDA</div>
{{end}}
<hr>
<div>Pedido #{{.Data.OrderNumber}}</div>
<div>Data: {{datetime .Data.CreatedAt}}</div>
{{if .OrderTypeLabel}}<div>{{.OrderTypeLabel}}</div>{{end}}
<hr>
{{range .Data.Items}}
<div class="row"><span>{{.Quantity}}x {{.Name}}</span><span>{{money .Total}}</span></div>
{{range .Extras}}<div class="indent">+ {{extra .}}</div>{{end}}
{{end}}
<hr>
<div class="row"><span>Subtotal</span><span>{{money .Data.Subtotal}}</span></div>
{{if gt .Data.DiscountAmount 0.0}}<div class="row"><span>Desconto</span><span>-{{money .Data.DiscountAmount}}</span></div>{{end}}
{{if gt .Data.ServiceAmount 0.0}}<div class="row"><span>Taxa de servico</span><span>{{money .Data.ServiceAmount}}</span></div>{{end}}
<div class="row bold big"><span>TOTAL</span><span>{{money .Data.Total}}</span></div>
{{if .Data.Payments}}
<hr>
<div class="bold">PAGAMENTOS</div>
{{range .Data.Payments}}<div class="row"><span>{{.Method}}</span><span>{{money .Amount}}</span></div>{{end}}
{{if gt .Data.Change 0.0}}<div class="row"><span>Troco</span><span>{{money .Data.Change}}</span></div>{{end}}
{{end}}
<div class="center">Obrigado pela preferencia!</div>
`))

var cancellationFallbackTmpl = template.Must(template.New("cancellation").Funcs(fallbackFuncs).Parse(fallbackStyle + `
<div class="center bold big">CANCELAMENTO</div>
<hr>
<div class="bold">PEDIDO #{{.Data.OrderNumber}}</div>
{{if .Data.TableNumber}}<div>MESA {{.Data.TableNumber}}</div>{{end}}
<div>Hora: {{time .Data.CancelledAt}}</div>
<hr>
<div class="bold">ITENS CANCELADOS</div>
{{range .Data.Items}}
<div>{{.Quantity}}x {{.Name}}</div>
{{if .Variation}}<div class="indent">({{.Variation}})</div>{{end}}
{{end}}
{{if .Data.Reason}}<hr><div class="bold">MOTIVO:</div><div>{{.Data.Reason}}</div>{{end}}
`))

func paperCSSWidth(opts escpos.Options) string {
	if opts.PaperWidth == escpos.Paper58mm {
		return "58mm"
	}
	return "80mm"
}

// RenderKitchenTicket returns the kitchen ticket as an HTML document.
func (f *FallbackRenderer) RenderKitchenTicket(data models.KitchenTicketData, opts escpos.Options) (string, error) {
	return renderTemplate(kitchenFallbackTmpl, map[string]interface{}{
		"Width":          paperCSSWidth(opts),
		"Data":           data,
		"OrderTypeLabel": kitchenOrderTypeLabel(data.OrderType, data.TableNumber),
	})
}

// RenderCustomerReceipt returns the receipt as an HTML document.
func (f *FallbackRenderer) RenderCustomerReceipt(data models.CustomerReceiptData, opts escpos.Options) (string, error) {
	return renderTemplate(receiptFallbackTmpl, map[string]interface{}{
		"Width":          paperCSSWidth(opts),
		"Data":           data,
		"Summary":        data.ReceiptType == models.ReceiptTypeSummary,
		"OrderTypeLabel": kitchenOrderTypeLabel(data.OrderType, data.TableNumber),
	})
}

// RenderCancellationTicket returns the cancellation notice as HTML.
func (f *FallbackRenderer) RenderCancellationTicket(data models.CancellationTicketData, opts escpos.Options) (string, error) {
	return renderTemplate(cancellationFallbackTmpl, map[string]interface{}{
		"Width": paperCSSWidth(opts),
		"Data":  data,
	})
}

func kitchenOrderTypeLabel(orderType, tableNumber string) string {
	switch orderType {
	case "dine_in":
		if tableNumber != "" {
			return "MESA " + tableNumber
		}
		return "BALCAO"
	case "takeout":
		return "RETIRADA"
	case "delivery":
		return "ENTREGA"
	default:
		return strings.ToUpper(orderType)
	}
}

func renderTemplate(tmpl *template.Template, data interface{}) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("fallback template failed: %w", err)
	}
	return sb.String(), nil
}

// Print renders the job's ticket to HTML and sends it through the OS
// print flow. Disabled or failing fallback never panics; the error is
// logged and returned for the caller's status decision.
func (f *FallbackRenderer) Print(job *models.PrintJob, opts escpos.Options) error {
	if !f.enabled {
		err := fmt.Errorf("fallback printing disabled")
		f.logger.LogWarning("Fallback requested but disabled", fmt.Sprintf("job=%d type=%s", job.ID, job.PrintType))
		return err
	}

	var html string
	var err error
	switch job.PrintType {
	case models.PrintTypeKitchenTicket, models.PrintTypeKitchenTicketSector:
		var data models.KitchenTicketData
		if err = job.DecodeData(&data); err == nil {
			html, err = f.RenderKitchenTicket(data, opts)
		}
	case models.PrintTypeCustomerReceipt:
		var data models.CustomerReceiptData
		if err = job.DecodeData(&data); err == nil {
			html, err = f.RenderCustomerReceipt(data, opts)
		}
	case models.PrintTypeCancellationTicket:
		var data models.CancellationTicketData
		if err = job.DecodeData(&data); err == nil {
			html, err = f.RenderCancellationTicket(data, opts)
		}
	default:
		err = fmt.Errorf("no fallback template for print type %s", job.PrintType)
	}
	if err != nil {
		f.logger.LogError("Fallback rendering failed", err, fmt.Sprintf("job=%d", job.ID))
		return err
	}

	if err := os.MkdirAll(f.outputDir, 0755); err != nil {
		f.logger.LogError("Fallback spool directory unavailable", err)
		return err
	}
	path := filepath.Join(f.outputDir, fmt.Sprintf("job-%d.html", job.ID))
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		f.logger.LogError("Fallback file write failed", err, path)
		return err
	}

	f.checkDestination.Do(f.validateDestination)

	if err := f.printFile(path, f.printer); err != nil {
		f.logger.LogError("Fallback print dispatch failed", err, path)
		return err
	}

	f.logger.LogInfo("Fallback print dispatched", fmt.Sprintf("job=%d file=%s", job.ID, path))
	return nil
}

// validateDestination checks the configured fallback printer against the
// OS printer list once. A missing printer is only warned about; the
// spooler gets the final say.
func (f *FallbackRenderer) validateDestination() {
	if f.printer == "" {
		return
	}
	detected, err := DetectSystemPrinters()
	if err != nil {
		f.logger.LogWarning("Could not enumerate system printers for fallback", err.Error())
		return
	}
	for _, p := range detected {
		if p.Name == f.printer {
			return
		}
	}
	f.logger.LogWarning("Fallback printer not found in system printer list", f.printer)
}
