package notifications

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shopapp/api/internal/services"
)

// MailMessage is the rendered email handed to the mail worker.
type MailMessage struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

const orderConfirmationHTML = `<!DOCTYPE html>
<html>
<body>
<p>Hi {{.Name}},</p>
<p>Thanks for your order at {{.StoreName}}. Your order <strong>{{.OrderID}}</strong> is confirmed.</p>
<table>
{{range .Lines}}<tr><td>{{.Name}}</td><td>x{{.Quantity}}</td></tr>
{{end}}</table>
<p>Total charged: <strong>{{.Total}}</strong></p>
{{if .ShippingLine}}<p>Shipping to: {{.ShippingLine}}</p>{{end}}
<p>We will email you again once your order ships.</p>
</body>
</html>`

type confirmationLine struct {
	Name     string
	Quantity int64
}

type confirmationData struct {
	Name         string
	StoreName    string
	OrderID      string
	Lines        []confirmationLine
	Total        string
	ShippingLine string
}

// MailRenderer turns order confirmations into ready-to-send messages.
type MailRenderer struct {
	tmpl      *template.Template
	sanitizer *bluemonday.Policy
	from      string
	storeName string
}

// NewMailRenderer constructs a renderer for the given sender identity.
func NewMailRenderer(fromAddress, storeName string) (*MailRenderer, error) {
	if strings.TrimSpace(fromAddress) == "" {
		return nil, errors.New("mail renderer: from address is required")
	}
	if strings.TrimSpace(storeName) == "" {
		return nil, errors.New("mail renderer: store name is required")
	}

	tmpl, err := template.New("order_confirmation").Parse(orderConfirmationHTML)
	if err != nil {
		return nil, fmt.Errorf("mail renderer: parse template: %w", err)
	}

	return &MailRenderer{
		tmpl: tmpl,
		// Buyer names and product names are stored as plain text; strip any
		// markup before they reach an HTML body.
		sanitizer: bluemonday.StrictPolicy(),
		from:      fromAddress,
		storeName: storeName,
	}, nil
}

// RenderOrderConfirmation produces the confirmation mail for a reconciled order.
func (r *MailRenderer) RenderOrderConfirmation(cmd services.OrderConfirmationCommand) (MailMessage, error) {
	if r == nil || r.tmpl == nil {
		return MailMessage{}, errors.New("mail renderer: not initialised")
	}
	if strings.TrimSpace(cmd.Email) == "" {
		return MailMessage{}, errors.New("mail renderer: recipient email is required")
	}
	if cmd.Order.ID == "" {
		return MailMessage{}, errors.New("mail renderer: order id is required")
	}

	name := r.sanitizer.Sanitize(cmd.Name)
	if strings.TrimSpace(name) == "" {
		name = "there"
	}

	data := confirmationData{
		Name:      name,
		StoreName: r.storeName,
		OrderID:   cmd.Order.ID,
		Total:     FormatAmount(cmd.Order.Total, cmd.Order.Currency),
	}
	for _, line := range cmd.Order.Lines {
		lineName := cmd.ProductNames[line.ProductID]
		if lineName == "" {
			lineName = line.ProductID
		}
		data.Lines = append(data.Lines, confirmationLine{
			Name:     r.sanitizer.Sanitize(lineName),
			Quantity: line.Quantity,
		})
	}
	if cmd.Order.ShippingName != "" && cmd.Order.ShippingAddress.Line1 != "" {
		addr := cmd.Order.ShippingAddress
		parts := []string{cmd.Order.ShippingName, addr.Line1}
		if addr.Line2 != "" {
			parts = append(parts, addr.Line2)
		}
		parts = append(parts, addr.City, addr.PostalCode)
		data.ShippingLine = r.sanitizer.Sanitize(strings.Join(parts, ", "))
	}

	var html bytes.Buffer
	if err := r.tmpl.Execute(&html, data); err != nil {
		return MailMessage{}, fmt.Errorf("mail renderer: execute template: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nThanks for your order at %s. Order %s is confirmed.\n\n", name, r.storeName, cmd.Order.ID)
	for _, line := range data.Lines {
		fmt.Fprintf(&text, "  %s x%d\n", line.Name, line.Quantity)
	}
	fmt.Fprintf(&text, "\nTotal charged: %s\n", data.Total)

	return MailMessage{
		To:      cmd.Email,
		From:    r.from,
		Subject: fmt.Sprintf("Your %s order %s", r.storeName, cmd.Order.ID),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// FormatAmount renders a minor-unit amount with its currency symbol, e.g.
// 4000 "gbp" becomes "£40.00".
func FormatAmount(minor int64, code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		unit = currency.GBP
	}
	printer := message.NewPrinter(language.BritishEnglish)
	symbol := printer.Sprint(currency.Symbol(unit))
	return symbol + printer.Sprintf("%.2f", float64(minor)/100)
}
