package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"wb_reviews/internal/adapters/notify"
	"wb_reviews/internal/app"
	"wb_reviews/internal/bootstrap"
	"wb_reviews/internal/domain"
)

var (
	flagLimit   int
	flagArticle string
)

var addCmd = &cobra.Command{
	Use:   "add <article>",
	Short: "Start monitoring a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		gw, err := bootstrap.NewGateway(cfg)
		if err != nil {
			return err
		}
		cache, closeCache := bootstrap.NewCache(cmd.Context(), cfg)
		defer closeCache()

		res, err := app.NewCommandService(st, gw, cache).Add(cmd.Context(), args[0])
		if err != nil {
			log.Error().Err(err).Str("article", args[0]).Msg("add failed")
			return errors.New(app.ErrorMessage(err))
		}
		if res.Status != app.AddOK && res.Status != app.AddAlreadyTracked {
			return errors.New(res.Message())
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message())
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <article>",
	Aliases: []string{"rm"},
	Short:   "Stop monitoring a product and delete its stored reviews",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		cache, closeCache := bootstrap.NewCache(cmd.Context(), cfg)
		defer closeCache()

		// removal never talks to the marketplace
		res, err := app.NewCommandService(st, nil, cache).Remove(cmd.Context(), args[0])
		if err != nil {
			log.Error().Err(err).Str("article", args[0]).Msg("remove failed")
			return errors.New(app.ErrorMessage(err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message())
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List monitored products",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		ps, err := app.NewQueryService(st, nil, 0).ListProducts(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing products: %w", err)
		}
		if len(ps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No products are being monitored.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ARTICLE\tNAME\tLAST CHECKED")
		for _, p := range ps {
			last := "never"
			if p.LastChecked != nil {
				last = p.LastChecked.Local().Format("02.01.2006 15:04")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Article, p.Name, last)
		}
		return tw.Flush()
	},
}

var reviewsCmd = &cobra.Command{
	Use:   "reviews <article>",
	Short: "Show the newest stored reviews of a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		page, err := app.NewQueryService(st, nil, 0).ListReviews(cmd.Context(), args[0], flagLimit)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			fmt.Fprintf(cmd.OutOrStdout(), "Product with article %s is not being monitored.\n", args[0])
			return nil
		case err != nil:
			return fmt.Errorf("listing reviews: %w", err)
		}
		if len(page.Items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No reviews stored yet.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tRATING\tAUTHOR\tDATE\tNOTIFIED\tTEXT")
		for _, r := range page.Items {
			date := "unknown"
			if !r.ReviewDate.Equal(domain.SentinelDate) {
				date = r.ReviewDate.Local().Format("02.01.2006 15:04")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
				r.ExternalID, notify.Stars(r.Rating), r.Author, date, r.IsNotified, truncate(r.Text, 60))
		}
		return tw.Flush()
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one reconciliation pass now and notify about new reviews",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		gw, err := bootstrap.NewGateway(cfg)
		if err != nil {
			return err
		}
		sink, closeSink, err := bootstrap.NewSink(cfg)
		if err != nil {
			return err
		}
		defer closeSink()
		cache, closeCache := bootstrap.NewCache(ctx, cfg)
		defer closeCache()

		rec := app.NewReconcileService(st, gw, sink, cache, app.ReconcileOptions{
			Lookback:         cfg.Lookback,
			Workers:          cfg.Workers,
			RedeliverPending: cfg.RedeliverPending,
		})

		if flagArticle == "" {
			rep := app.NewScheduler(rec, cfg.CheckInterval).RunOnce(ctx)
			if rep.Err != nil {
				return rep.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checked %d product(s): %d new review(s), %d notified, %d failed.\n",
				rep.Products, rep.Inserted, rep.Notified, rep.Failed)
			return nil
		}

		var p domain.Product
		sess, err := st.OpenSession(ctx)
		if err != nil {
			return err
		}
		p, err = sess.GetProductByArticle(ctx, flagArticle)
		sess.Close()
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("product with article %s is not being monitored", flagArticle)
		}
		if err != nil {
			return err
		}

		pr, err := rec.ReconcileProduct(ctx, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d fetched, %d new, %d notified.\n",
			pr.Article, pr.Fetched, pr.Inserted, pr.Notified+pr.Redelivered)
		return nil
	},
}

func init() {
	reviewsCmd.Flags().IntVar(&flagLimit, "limit", app.DefaultReviewLimit, "number of reviews to show (1-200)")
	checkCmd.Flags().StringVar(&flagArticle, "article", "", "check a single product instead of all")
}

// truncate flattens s to one line of at most n runes.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
