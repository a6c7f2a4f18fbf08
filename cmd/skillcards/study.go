package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/study"
)

func newNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the next cards to study",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tenant, user := identity(cmd)
			deck, _ := cmd.Flags().GetString("deck")
			size, _ := cmd.Flags().GetInt("size")
			batch, err := a.study.NextBatch(cmd.Context(), study.Scope{TenantID: tenant, UserID: user, DeckID: deck}, size)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d due, %d new\n", batch.TotalDue, batch.TotalNew)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CARD\tKIND\tPRIORITY\tQUESTION")
			for _, p := range batch.Picks {
				question := ""
				if card, err := a.db.GetCard(cmd.Context(), tenant, p.CardID); err == nil {
					question = card.Question
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.CardID, p.Kind, p.Priority, question)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("deck", "", "Limit to a deck")
	cmd.Flags().Int("size", 0, "Batch size (0 uses the configured default)")
	return cmd
}

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <card-id>",
		Short: "Record an answer to a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tenant, user := identity(cmd)
			in := study.ReviewInput{TenantID: tenant, UserID: user, CardID: args[0]}
			if feedback, _ := cmd.Flags().GetString("feedback"); feedback != "" {
				in.Feedback = domain.Feedback(feedback)
			}
			if cmd.Flags().Changed("quality") {
				q, _ := cmd.Flags().GetInt("quality")
				in.Quality = &q
			}

			p, err := a.study.SubmitReview(cmd.Context(), in)
			if err != nil {
				return err
			}
			next := "now"
			if p.NextReviewAt != nil {
				next = p.NextReviewAt.Format("2006-01-02")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "repetitions %d, interval %d days, ease %.2f, next review %s, mastery %.0f%%\n",
				p.Repetitions, p.IntervalDays, p.EaseFactor, next, p.MasteryScore*100)
			return nil
		},
	}
	cmd.Flags().String("feedback", "", "needs_review, got_it or mastered")
	cmd.Flags().Int("quality", 0, "SM-2 grade 0..5 (wins over --feedback)")
	return cmd
}
