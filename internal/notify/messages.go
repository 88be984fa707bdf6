package notify

import (
	"fmt"
	"strings"

	"leaguebid/internal/market"
)

// ClearingMessage renders a clearing report as a title and body.
func ClearingMessage(report market.ClearingReport) (string, string) {
	title := fmt.Sprintf("Market session #%d closed", report.SequenceNumber)
	var b strings.Builder
	fmt.Fprintf(&b, "%d sold, %d unsold, %s moved", report.ItemsSold, report.ItemsUnsold, market.FormatAmount(report.TotalValueMoved))
	for _, tr := range report.Transfers {
		fmt.Fprintf(&b, "\n%s -> %s for %s", tr.AssetName, tr.TeamID, market.FormatAmount(tr.Amount))
	}
	if n := len(report.Rejections); n > 0 {
		fmt.Fprintf(&b, "\n%d bid(s) rejected by roster rules", n)
	}
	return title, b.String()
}

func RewardMessage(grant market.RewardGrant) (string, string) {
	switch grant.Kind {
	case market.RewardCash:
		return "Reward granted", fmt.Sprintf("%s received %s", grant.TeamID, market.FormatAmount(grant.Amount))
	default:
		name := grant.AssetName
		if name == "" {
			name = grant.AssetID
		}
		return "Reward granted", fmt.Sprintf("%s received %s", grant.TeamID, name)
	}
}
