package console

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	nanoid "github.com/jaevor/go-nanoid"

	"github.com/campaigndesk/campaigndesk/internal/models"
)

const (
	utf8BOM         = "\uFEFF"
	reportTimestamp = "2 Jan 2006, 15:04:05"
	invoiceAlphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	invoiceLength   = 10
	shortIDLength   = 13
)

var reportColumns = []string{
	"Campaign",
	"Campaign ID",
	"Campaign state",
	"Budget",
	"Budget type",
	"Impr.",
	"Clicks",
	"CTR",
	"Avg. CPC",
	"Cost",
	"Conversions",
	"Cost / conv.",
	"Conv. rate",
	"Assigned to",
	"Created",
	"Last updated",
}

// ExportCSV writes the campaign performance report. The output starts with
// a byte order mark so spreadsheet tools pick up UTF-8.
func (c *Console) ExportCSV(ctx context.Context, w io.Writer) error {
	ads, err := c.repo.ListAds(ctx)
	if err != nil {
		return err
	}
	settings, err := c.settingsOrDefault(ctx)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)

	header := [][]string{
		{"Campaign performance report"},
	}
	if name := c.companyName(settings); name != "" {
		header = append(header, []string{"Account:", name})
	}
	header = append(header,
		[]string{"Date range:", "All time"},
		[]string{"Downloaded:", c.now().Format(reportTimestamp)},
		[]string{"Currency:", string(settings.Currency)},
		[]string{},
		reportColumns,
	)
	if err := cw.WriteAll(header); err != nil {
		return err
	}

	for _, ad := range ads {
		if err := cw.Write(reportRow(ad)); err != nil {
			return err
		}
	}

	t := totals(ads)
	totalRow := []string{
		"Total: all campaigns", "", "", "", "",
		strconv.FormatInt(t.Impressions, 10),
		strconv.FormatInt(t.Clicks, 10),
		decimal(t.CTR/100, 4),
		decimal(t.AvgCPC, 2),
		decimal(t.Revenue, 2),
		strconv.FormatInt(t.Conversions, 10),
		perConversion(t.AvgCostPerConversion, t.Conversions),
		conversionRate(t.Conversions, t.Clicks),
		"", "", "",
	}
	if err := cw.Write(totalRow); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func reportRow(ad *models.Ad) []string {
	assignee := ""
	if ad.AssignedUserName != nil {
		assignee = *ad.AssignedUserName
	}
	return []string{
		ad.Name,
		shortID(ad.ID),
		stateLabel(ad.Status),
		decimal(ad.BudgetAmount, 2),
		ad.BudgetPeriod,
		strconv.FormatInt(ad.Impressions, 10),
		strconv.FormatInt(ad.Clicks, 10),
		decimal(ad.CTR/100, 4),
		decimal(avg(ad.Revenue, ad.Clicks), 2),
		decimal(ad.Revenue, 2),
		strconv.FormatInt(ad.Conversions, 10),
		perConversion(ad.CostPerConversion, ad.Conversions),
		conversionRate(ad.Conversions, ad.Clicks),
		assignee,
		ad.CreatedAt.Format(reportTimestamp),
		ad.UpdatedAt.Format(reportTimestamp),
	}
}

func stateLabel(s models.AdStatus) string {
	switch s {
	case models.AdStatusActive:
		return "Enabled"
	case models.AdStatusPaused:
		return "Paused"
	default:
		return "Removed"
	}
}

func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

func perConversion(cost float64, conversions int64) string {
	if conversions == 0 {
		return "--"
	}
	return decimal(cost, 2)
}

func conversionRate(conversions, clicks int64) string {
	if clicks == 0 {
		return decimal(0, 4)
	}
	return decimal(float64(conversions)/float64(clicks), 4)
}

func avg(total float64, n int64) float64 {
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func decimal(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}

// Receipt writes a plain-text receipt covering the budget of every ad and
// returns its invoice number.
func (c *Console) Receipt(ctx context.Context, w io.Writer) (string, error) {
	ads, err := c.repo.ListAds(ctx)
	if err != nil {
		return "", err
	}
	settings, err := c.settingsOrDefault(ctx)
	if err != nil {
		return "", err
	}

	newID, err := nanoid.CustomASCII(invoiceAlphabet, invoiceLength)
	if err != nil {
		return "", fmt.Errorf("failed to create invoice number generator: %w", err)
	}
	invoice := "INV-" + newID()
	symbol := settings.Currency.Symbol()

	var subtotalCents float64
	for _, ad := range ads {
		subtotalCents += toCents(ad.BudgetAmount)
	}
	taxCents := toCents(subtotalCents / 100 * c.options.TaxRate)

	var b strings.Builder
	if name := c.companyName(settings); name != "" {
		fmt.Fprintln(&b, name)
	}
	fmt.Fprintln(&b, "RECEIPT")
	fmt.Fprintf(&b, "Invoice number: %s\n", invoice)
	fmt.Fprintf(&b, "Date: %s\n", c.now().Format("2 Jan 2006"))
	if settings.ContactEmail != "" {
		fmt.Fprintf(&b, "Contact: %s\n", settings.ContactEmail)
	}
	fmt.Fprintln(&b)

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Campaign\tStatus\tSpend\t")
	for _, ad := range ads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", ad.Name, stateLabel(ad.Status), money(symbol, toCents(ad.BudgetAmount)))
	}
	fmt.Fprintln(tw, "\t\t\t")
	fmt.Fprintf(tw, "Subtotal\t\t%s\t\n", money(symbol, subtotalCents))
	fmt.Fprintf(tw, "Tax (%s%%)\t\t%s\t\n", strconv.FormatFloat(math.Round(c.options.TaxRate*10000)/100, 'f', -1, 64), money(symbol, taxCents))
	fmt.Fprintf(tw, "Total\t\t%s\t\n", money(symbol, subtotalCents+taxCents))
	if err := tw.Flush(); err != nil {
		return "", err
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return "", err
	}
	c.logger.Info("Receipt issued", "invoice", invoice, "ads", len(ads))
	return invoice, nil
}

// money formats an amount in cents as symbol plus digits grouped by
// thousands, e.g. ₹1,234.50.
func money(symbol string, cents float64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := int64(cents) / 100
	frac := int64(cents) % 100

	digits := strconv.FormatInt(whole, 10)
	var grouped strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(d)
	}
	return fmt.Sprintf("%s%s%s.%02d", sign, symbol, grouped.String(), frac)
}

func (c *Console) companyName(settings *models.AppSettings) string {
	if settings.CompanyName != "" {
		return settings.CompanyName
	}
	return c.options.CompanyName
}
