package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/MarcoPoloResearchLab/hubs/internal/bookmarks"
	"github.com/MarcoPoloResearchLab/hubs/internal/client"
	"github.com/MarcoPoloResearchLab/hubs/internal/config"
	"github.com/MarcoPoloResearchLab/hubs/internal/content"
	"github.com/MarcoPoloResearchLab/hubs/internal/ledger"
	"github.com/MarcoPoloResearchLab/hubs/internal/logging"
	"github.com/MarcoPoloResearchLab/hubs/internal/ranking"
	"github.com/MarcoPoloResearchLab/hubs/internal/stats"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// session holds the client-side engagement state shared by every subcommand.
type session struct {
	cred      client.Credential
	logger    *zap.Logger
	votes     *ledger.Ledger
	saved     *bookmarks.Registry
	aggregate *stats.Aggregator
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	configViper := config.NewViper()
	state := &session{}

	rootCmd := &cobra.Command{
		Use:           "hubsctl",
		Short:         "Vote, bookmark and browse Hubs collections from the terminal",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			return state.open(configViper)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if state.logger != nil {
				_ = state.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().String("api-url", configViper.GetString("api.base_url"), "Base URL of the Hubs API")
	rootCmd.PersistentFlags().String("token", "", "Session token (overrides HUBS_API_TOKEN)")
	rootCmd.PersistentFlags().Int("timeout-seconds", configViper.GetInt("api.timeout_seconds"), "Per-request timeout")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	for key, flag := range map[string]string{
		"api.base_url":        "api-url",
		"api.token":           "token",
		"api.timeout_seconds": "timeout-seconds",
		"log.level":           "log-level",
	} {
		if err := configViper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(
		newRankCommand(state),
		newAnswersCommand(state),
		newVoteCommand(state),
		newBookmarkCommand(state),
		newSavedCommand(state),
		newViewCommand(state),
		newStatsCommand(state),
	)
	return rootCmd
}

func (s *session) open(configViper *viper.Viper) error {
	clientConfig, err := config.LoadClient(configViper)
	if err != nil {
		return err
	}
	logger, err := logging.NewConsoleLogger(clientConfig.LogLevel)
	if err != nil {
		return err
	}
	apiClient, err := client.New(client.Config{
		BaseURL: clientConfig.BaseURL,
		Timeout: clientConfig.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	aggregate, err := stats.New(apiClient, logger)
	if err != nil {
		return err
	}
	votes, err := ledger.New(ledger.Config{Client: apiClient, Stats: aggregate, Logger: logger})
	if err != nil {
		return err
	}
	saved, err := bookmarks.New(apiClient, logger)
	if err != nil {
		return err
	}

	s.cred = client.Credential{Token: clientConfig.Token, UserID: clientConfig.UserID}
	s.logger = logger
	s.votes = votes
	s.saved = saved
	s.aggregate = aggregate
	return nil
}

func parseTarget(rawKind, rawID string) (content.Target, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return content.Target{}, fmt.Errorf("invalid id %q", rawID)
	}
	return content.NewTarget(rawKind, id)
}

func newRankCommand(state *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rank <collection-id>",
		Short: "List a collection's resources by net votes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collectionID, err := content.ParseItemID(args[0])
			if err != nil {
				return err
			}
			if _, err := state.votes.Load(cmd.Context(), state.cred, collectionID); err != nil {
				return err
			}
			printRanking(cmd.OutOrStdout(), state.votes, state.votes.Entries(content.KindResource, collectionID))
			return nil
		},
	}
}

func newAnswersCommand(state *session) *cobra.Command {
	return &cobra.Command{
		Use:   "answers <question-id>",
		Short: "List a question's answers by net votes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			questionID, err := content.ParseItemID(args[0])
			if err != nil {
				return err
			}
			if _, err := state.votes.LoadAnswers(cmd.Context(), state.cred, questionID); err != nil {
				return err
			}
			printRanking(cmd.OutOrStdout(), state.votes, state.votes.Entries(content.KindAnswer, questionID))
			return nil
		},
	}
}

func printRanking(out io.Writer, votes *ledger.Ledger, entries []ranking.Entry) {
	result := ranking.Rank(entries)
	for _, entry := range result.Ordered {
		marker := " "
		if result.IsTop(entry.Item.Target) {
			marker = "*"
		}
		snapshot, _ := votes.Snapshot(entry.Item.Target)
		fmt.Fprintf(out, "%s %5d  %-4s  %s  %s\n", marker, entry.Votes, directionLabel(snapshot.Direction), entry.Item.Target, entry.Item.Title())
	}
}

func newVoteCommand(state *session) *cobra.Command {
	var ownerID int64
	cmd := &cobra.Command{
		Use:   "vote <kind> <id> <up|down>",
		Short: "Cast a vote; repeating the same direction retracts it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0], args[1])
			if err != nil {
				return err
			}
			direction, err := content.ParseDirection(args[2])
			if err != nil {
				return err
			}
			owner, err := content.NewItemID(ownerID)
			if err != nil {
				return fmt.Errorf("--owner is required: %w", err)
			}

			switch target.Kind {
			case content.KindResource:
				_, err = state.votes.Load(cmd.Context(), state.cred, owner)
			case content.KindAnswer:
				_, err = state.votes.LoadAnswers(cmd.Context(), state.cred, owner)
			}
			if err != nil {
				return err
			}

			snapshot, err := state.votes.CastVote(cmd.Context(), state.cred, target, direction)
			if err != nil {
				return describeFailure(cmd.ErrOrStderr(), target, snapshot, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s net=%d vote=%s\n", target, snapshot.Net, directionLabel(snapshot.Direction))
			return nil
		},
	}
	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Owning collection (resources) or question (answers)")
	return cmd
}

func describeFailure(out io.Writer, target content.Target, snapshot ledger.Snapshot, err error) error {
	if snapshot.Stale {
		fmt.Fprintf(out, "%s no longer exists\n", target)
	} else if snapshot.State == ledger.StateRolledBack {
		fmt.Fprintf(out, "%s vote rolled back to net=%d\n", target, snapshot.Net)
	}
	return err
}

func newBookmarkCommand(state *session) *cobra.Command {
	return &cobra.Command{
		Use:   "bookmark <kind> <id>",
		Short: "Toggle a bookmark",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0], args[1])
			if err != nil {
				return err
			}
			if err := state.saved.Hydrate(cmd.Context(), state.cred, target.Kind); err != nil {
				return err
			}
			status, err := state.saved.Toggle(cmd.Context(), state.cred, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", target, status)
			return nil
		},
	}
}

func newSavedCommand(state *session) *cobra.Command {
	return &cobra.Command{
		Use:   "saved <kind>",
		Short: "List bookmarked items of one kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := content.ParseKind(args[0])
			if err != nil {
				return err
			}
			if err := state.saved.Hydrate(cmd.Context(), state.cred, kind); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, entry := range state.saved.List(kind) {
				label := entry.Title
				if label == "" {
					label = entry.MediaRef
				}
				fmt.Fprintf(out, "%s  %s  %s\n", entry.Target, label, entry.URL)
			}
			return nil
		},
	}
}

func newViewCommand(state *session) *cobra.Command {
	var collectionID int64
	cmd := &cobra.Command{
		Use:   "view <resource|collection> <id>",
		Short: "Record a view and print the collection totals",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseTarget(args[0], args[1])
			if err != nil {
				return err
			}
			owner := content.ItemID(collectionID)
			if scope.Kind == content.KindCollection {
				owner = scope.ID
			}
			if _, err := content.NewItemID(owner.Int64()); err != nil {
				return fmt.Errorf("--collection is required for resource views: %w", err)
			}
			totals, err := state.aggregate.RecordView(cmd.Context(), state.cred, scope, owner)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), totals)
			return nil
		},
	}
	cmd.Flags().Int64Var(&collectionID, "collection", 0, "Collection owning the viewed resource")
	return cmd
}

func newStatsCommand(state *session) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <collection-id>",
		Short: "Print a collection's engagement totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collectionID, err := content.ParseItemID(args[0])
			if err != nil {
				return err
			}
			totals, err := state.aggregate.Get(cmd.Context(), state.cred, collectionID)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), totals)
			return nil
		},
	}
}

func printStats(out io.Writer, totals client.Stats) {
	fmt.Fprintf(out, "collection %d: resources=%d votes=%d views=%d\n",
		totals.CollectionID, totals.ResourceCount, totals.TotalVotes, totals.TotalViews)
}

func directionLabel(direction content.Direction) string {
	if direction == content.DirectionNone {
		return "-"
	}
	return direction.String()
}
