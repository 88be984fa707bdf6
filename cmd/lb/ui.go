package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"leaguebid/internal/market"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// promptSecret reads without echo when stdin is a terminal.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(string(raw))
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			text = defaultValue
		}
		for _, opt := range options {
			if strings.EqualFold(opt, text) {
				return opt, nil
			}
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := parseAmount(text)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

// parseAmount accepts plain integers plus K/M suffixes: "1.5M" -> 1500000.
func parseAmount(text string) (int64, error) {
	text = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(text), ",", ""))
	mult := 1.0
	switch {
	case strings.HasSuffix(text, "M"):
		mult, text = 1_000_000, strings.TrimSuffix(text, "M")
	case strings.HasSuffix(text, "K"):
		mult, text = 1_000, strings.TrimSuffix(text, "K")
	}
	if mult == 1 {
		return strconv.ParseInt(text, 10, 64)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	return int64(f*mult + 0.5), nil
}

func renderSession(view *market.SessionView) {
	if view == nil {
		printInfo("No market session is open.")
		return
	}
	s := view.Session
	accent.Printf("Market session #%d", s.SequenceNumber)
	neutral.Printf("  opened %s", s.OpenedAt.Local().Format("2006-01-02 15:04"))
	if s.PoolWasReset {
		warn.Print("  (pool reset)")
	}
	fmt.Println()
	fmt.Printf("%-4s %-22s %-4s %10s %6s %12s  %s\n", "SLOT", "PLAYER", "POS", "FLOOR", "BIDS", "YOUR BID", "ITEM")
	for _, it := range view.Items {
		own := "-"
		if it.OwnBid != nil {
			own = success.Sprint(comma(it.OwnBid.Amount))
		}
		fmt.Printf("%-4d %-22s %-4s %10s %6d %12s  %s\n",
			it.Slot, truncate(it.AssetName, 22), it.Position, market.FormatAmount(it.FloorPrice), it.BidCount, own, it.ItemID)
	}
}

func renderBudget(b market.BudgetView) {
	accent.Println("Budget")
	fmt.Printf("  total      %s\n", comma(b.Total))
	fmt.Printf("  reserved   %s\n", warn.Sprint(comma(b.Reserved)))
	fmt.Printf("  available  %s\n", success.Sprint(comma(b.Available)))
}

func renderBids(bids []market.Bid) {
	if len(bids) == 0 {
		printInfo("No bids.")
		return
	}
	fmt.Printf("%-36s %-36s %12s %-15s %s\n", "BID", "ITEM", "AMOUNT", "STATE", "PLACED")
	for _, b := range bids {
		fmt.Printf("%-36s %-36s %12s %-15s %s\n",
			b.ID, b.ItemID, comma(b.Amount), colorizeState(b.State), b.PlacedAt.Local().Format("01-02 15:04"))
	}
}

func renderReport(r market.ClearingReport) {
	accent.Printf("Session #%d cleared\n", r.SequenceNumber)
	fmt.Printf("  sold %d, unsold %d, moved %s\n", r.ItemsSold, r.ItemsUnsold, market.FormatAmount(r.TotalValueMoved))
	for _, tr := range r.Transfers {
		fmt.Printf("  %s -> %s for %s\n", truncate(tr.AssetName, 22), tr.TeamID, comma(tr.Amount))
	}
	for _, rej := range r.Rejections {
		warn.Printf("  rejected %s (%s): %s\n", rej.BidID, rej.TeamID, rej.Reason)
	}
}

func colorizeState(s market.BidState) string {
	text := string(s)
	switch s {
	case market.BidWon:
		return success.Sprint(text)
	case market.BidLost, market.BidRejectedQuota:
		return danger.Sprint(text)
	case market.BidPending:
		return warn.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
