package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	cl "leaguebid/internal/cli"
	"leaguebid/internal/config"
	"leaguebid/internal/market"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "lb",
		Short:        "League market client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newUseCmd(&apiBase),
		newMarketCmd(&apiBase),
		newBidCmd(&apiBase),
		newCancelCmd(&apiBase),
		newBidsCmd(&apiBase),
		newBudgetCmd(&apiBase),
		newSyncCmd(&apiBase),
		newAdminCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func requireTeam() (cl.Session, error) {
	sess, err := requireSession()
	if err != nil {
		return cl.Session{}, err
	}
	if sess.TeamID == "" || sess.LeagueID == "" {
		return cl.Session{}, fmt.Errorf("no team selected, run `lb use`")
	}
	return sess, nil
}

func newLoginCmd(apiBase *string) *cobra.Command {
	var useToken bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password, or with an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)

			var sess cl.Session
			if useToken {
				token, err := promptSecret("Access token")
				if err != nil {
					return err
				}
				sess.AccessToken = token
			} else {
				email, err := promptRequired("Email")
				if err != nil {
					return err
				}
				password, err := promptSecret("Password")
				if err != nil {
					return err
				}
				out, err := client.Login(ctx, email, password)
				if err != nil {
					return err
				}
				sess.AccessToken = out.AccessToken
				sess.RefreshToken = out.RefreshToken
				sess.Email = out.User.Email
			}

			me, err := client.Me(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			sess.UserID = me.UserID
			if me.Email != "" {
				sess.Email = me.Email
			}
			if err := selectTeam(ctx, client, &sess, "", ""); err != nil {
				printWarn(err.Error())
			}
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess("Login successful.")
			if sess.TeamID != "" {
				printInfo(fmt.Sprintf("Playing as team %s in league %s.", sess.TeamID, sess.LeagueID))
			}
			if me.Admin {
				printInfo("Admin commands enabled.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&useToken, "token", false, "paste an access token instead of email/password")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newUseCmd(apiBase *string) *cobra.Command {
	var leagueID, teamID string
	cmd := &cobra.Command{
		Use:   "use",
		Short: "Select the league and team you play as",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := selectTeam(ctx, newClient(apiBase), &sess, leagueID, teamID); err != nil {
				return err
			}
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Playing as team %s in league %s.", sess.TeamID, sess.LeagueID))
			return nil
		},
	}
	cmd.Flags().StringVar(&leagueID, "league", "", "league id")
	cmd.Flags().StringVar(&teamID, "team", "", "team id")
	return cmd
}

// selectTeam fills sess.LeagueID/TeamID with a team the user controls. With
// several candidates and no explicit choice the user is prompted.
func selectTeam(ctx context.Context, client *cl.Client, sess *cl.Session, leagueID, teamID string) error {
	leagues, err := client.Leagues(ctx, sess.AccessToken)
	if err != nil {
		return err
	}
	var mine []market.Team
	for _, l := range leagues {
		if leagueID != "" && l.ID != leagueID {
			continue
		}
		teams, err := client.LeagueTeams(ctx, sess.AccessToken, l.ID)
		if err != nil {
			return err
		}
		for _, t := range teams {
			if t.ControllerUserID == sess.UserID && (teamID == "" || t.ID == teamID) {
				mine = append(mine, t)
			}
		}
	}
	switch len(mine) {
	case 0:
		return fmt.Errorf("you do not control any team")
	case 1:
		sess.LeagueID, sess.TeamID = mine[0].LeagueID, mine[0].ID
		return nil
	}
	options := make([]string, 0, len(mine))
	for _, t := range mine {
		options = append(options, t.ID)
		printInfo(fmt.Sprintf("  %s  %s (league %s)", t.ID, t.Name, t.LeagueID))
	}
	choice, err := promptChoice("Team", options, options[0])
	if err != nil {
		return err
	}
	for _, t := range mine {
		if t.ID == choice {
			sess.LeagueID, sess.TeamID = t.LeagueID, t.ID
		}
	}
	return nil
}

func newMarketCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "market",
		Short:   "Show the open market session",
		Aliases: []string{"session"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireTeam()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := newClient(apiBase).OpenSession(ctx, sess.AccessToken, sess.LeagueID, sess.TeamID)
			if err != nil {
				return err
			}
			renderSession(view)
			return nil
		},
	}
}

func newBidCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bid [slot|item-id] [amount]",
		Short: "Place or update a sealed bid",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireTeam()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)

			target := ""
			if len(args) > 0 {
				target = args[0]
			} else if target, err = promptRequired("Slot or item id"); err != nil {
				return err
			}
			itemID, err := resolveItem(ctx, client, sess, target)
			if err != nil {
				return err
			}

			var amount int64
			if len(args) > 1 {
				if amount, err = parseAmount(args[1]); err != nil || amount <= 0 {
					return fmt.Errorf("invalid amount %q", args[1])
				}
			} else if amount, err = promptInt64("Amount", 1); err != nil {
				return err
			}

			idem := uuid.NewString()
			bid, err := client.PlaceBid(ctx, sess.AccessToken, sess.TeamID, itemID, amount, idem)
			if err != nil {
				return queueOnNetworkError(err, cl.QueuedCommand{
					Method:         http.MethodPost,
					Path:           "/v1/teams/" + sess.TeamID + "/bids",
					Body:           cl.PlaceBidBody(itemID, amount),
					IdempotencyKey: idem,
				})
			}
			printSuccess(fmt.Sprintf("Bid %s placed: %s (reference price %s).", bid.ID, comma(bid.Amount), comma(bid.ReferencePrice)))
			return nil
		},
	}
}

// resolveItem maps a slot number from `lb market` onto its item id.
func resolveItem(ctx context.Context, client *cl.Client, sess cl.Session, target string) (string, error) {
	slot, err := strconv.Atoi(strings.TrimSpace(target))
	if err != nil {
		return strings.TrimSpace(target), nil
	}
	view, err := client.OpenSession(ctx, sess.AccessToken, sess.LeagueID, sess.TeamID)
	if err != nil {
		return "", err
	}
	if view == nil {
		return "", fmt.Errorf("no market session is open")
	}
	for _, it := range view.Items {
		if it.Slot == slot {
			return it.ItemID, nil
		}
	}
	return "", fmt.Errorf("no item in slot %d", slot)
}

func newCancelCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <bid-id>",
		Short: "Withdraw a pending bid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireTeam()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := newClient(apiBase).CancelBid(ctx, sess.AccessToken, sess.TeamID, args[0]); err != nil {
				return err
			}
			printSuccess("Bid cancelled, funds released.")
			return nil
		},
	}
}

func newBidsCmd(apiBase *string) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "bids",
		Short: "List your team's bids",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireTeam()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			bids, err := newClient(apiBase).TeamBids(ctx, sess.AccessToken, sess.TeamID, sessionID)
			if err != nil {
				return err
			}
			renderBids(bids)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "only bids in this session")
	return cmd
}

func newBudgetCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "budget",
		Short: "Show total, reserved and available funds",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireTeam()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			b, err := newClient(apiBase).Budget(ctx, sess.AccessToken, sess.TeamID)
			if err != nil {
				return err
			}
			renderBudget(b)
			return nil
		},
	}
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay bids queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			queue, err := cl.LoadQueue()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			remaining := make([]cl.QueuedCommand, 0, len(queue))
			replayed := 0
			for _, q := range queue {
				_, err := client.Do(ctx, q.Method, q.Path, sess.AccessToken, q.Body, q.IdempotencyKey)
				switch {
				case err == nil:
					replayed++
				case cl.KindOf(err) == string(market.KindConflict):
					printInfo(fmt.Sprintf("Already applied: %s %s", q.Method, q.Path))
				case cl.IsAPIError(err):
					printError(fmt.Sprintf("Dropped %s %s: %v", q.Method, q.Path, err))
				default:
					remaining = append(remaining, q)
					printError(fmt.Sprintf("Sync failed for %s %s: %v", q.Method, q.Path, err))
				}
			}
			if err := cl.SaveQueue(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

func newAdminCmd(apiBase *string) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "League administration",
	}
	admin.AddCommand(
		&cobra.Command{
			Use:   "open <league-id>",
			Short: "Open the next market session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := requireSession()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				view, err := newClient(apiBase).AdminOpenSession(ctx, sess.AccessToken, args[0])
				if err != nil {
					return err
				}
				renderSession(&view)
				return nil
			},
		},
		&cobra.Command{
			Use:   "close <session-id>",
			Short: "Close a session and clear its bids",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := requireSession()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
				defer cancel()
				report, err := newClient(apiBase).AdminCloseSession(ctx, sess.AccessToken, args[0])
				if err != nil {
					return err
				}
				renderReport(report)
				return nil
			},
		},
		&cobra.Command{
			Use:   "cancel <session-id>",
			Short: "Abort a session and release every pending bid",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := requireSession()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				s, err := newClient(apiBase).AdminCancelSession(ctx, sess.AccessToken, args[0])
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Session #%d cancelled.", s.SequenceNumber))
				return nil
			},
		},
		newAdminRewardCmd(apiBase),
	)
	return admin
}

func newAdminRewardCmd(apiBase *string) *cobra.Command {
	var assetID, amountText string
	cmd := &cobra.Command{
		Use:   "reward <team-id>",
		Short: "Grant a cash or asset reward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			kind := string(market.RewardCash)
			var amount int64
			switch {
			case assetID != "":
				kind = string(market.RewardAsset)
			case amountText != "":
				if amount, err = parseAmount(amountText); err != nil {
					return fmt.Errorf("invalid amount %q", amountText)
				}
			default:
				return fmt.Errorf("pass --amount or --asset")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			grant, err := newClient(apiBase).AdminGrantReward(ctx, sess.AccessToken, args[0], kind, amount, assetID)
			if err != nil {
				return err
			}
			if grant.Kind == market.RewardCash {
				printSuccess(fmt.Sprintf("Credited %s to %s.", comma(grant.Amount), grant.TeamID))
			} else {
				printSuccess(fmt.Sprintf("Transferred %s to %s.", grant.AssetName, grant.TeamID))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&amountText, "amount", "", "cash amount, e.g. 500K or 2M")
	cmd.Flags().StringVar(&assetID, "asset", "", "free-agent asset id")
	return cmd
}

// queueOnNetworkError keeps a write for `lb sync` when it never reached the
// server. Server-side rejections are returned as they are.
func queueOnNetworkError(err error, q cl.QueuedCommand) error {
	if err == nil || cl.IsAPIError(err) {
		return err
	}
	if qerr := cl.PushQueue(q); qerr != nil {
		return fmt.Errorf("request failed (%v) and could not be queued: %w", err, qerr)
	}
	printWarn("API unreachable; bid queued. Run `lb sync` when back online.")
	return nil
}
