// Package engine implements the analysis pipeline: given a domain, it runs
// the ad-spend audit and the performance, SEO, conversion, and mobile scoring
// passes, emitting an ordered event stream the session layer translates into
// transcript envelopes.
//
// Scores are derived deterministically from the domain string, so repeated
// audits of the same domain agree with each other and tests are stable. The
// event channel is closed after the terminal event; events are emitted in
// causal order on a single goroutine.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/marketlens/go-insight-backend/internal/domain"
)

// Event is one step of an audit run.
//
// Status follows the analysis state machine: a run emits zero or more
// analyzing events (each with Progress and a human-readable Message) followed
// by exactly one completed or failed event. Results and Revenue accompany
// completion only.
type Event struct {
	Status   string
	Progress int
	Message  string
	Results  *domain.Results
	Revenue  *domain.RevenueCard
}

// Engine runs audits. The zero value is usable; StepDelay throttles emission
// for a more lifelike stream and is left at zero in tests.
type Engine struct {
	StepDelay time.Duration
}

// New constructs an Engine with the given inter-step delay.
func New(stepDelay time.Duration) *Engine {
	return &Engine{StepDelay: stepDelay}
}

// stage is one scoring pass of the pipeline.
type stage struct {
	progress int
	message  string
}

var stages = []stage{
	{10, "Auditing ad spend"},
	{30, "Scoring page performance"},
	{40, "Crawling for SEO issues"},
	{60, "Evaluating conversion funnel"},
	{80, "Checking mobile experience"},
	{95, "Estimating revenue impact"},
}

// hostRE accepts bare hostnames like "example.com" or "shop.example.co.uk".
var hostRE = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// Run starts one audit and returns its event channel. The channel is closed
// after the terminal event. Cancelling ctx fails the run at the next step
// boundary.
func (e *Engine) Run(ctx context.Context, auditDomain string) <-chan Event {
	out := make(chan Event, len(stages)+2)
	go func() {
		defer close(out)

		auditDomain = strings.TrimSpace(strings.ToLower(auditDomain))
		if !hostRE.MatchString(auditDomain) {
			out <- Event{
				Status:  domain.StatusFailed,
				Message: fmt.Sprintf("%q does not look like a domain I can audit.", auditDomain),
			}
			return
		}

		for _, st := range stages {
			if err := e.pause(ctx); err != nil {
				out <- Event{
					Status:  domain.StatusFailed,
					Message: fmt.Sprintf("The analysis of %s was interrupted.", auditDomain),
				}
				return
			}
			out <- Event{
				Status:   domain.StatusAnalyzing,
				Progress: st.progress,
				Message:  fmt.Sprintf("%s for %s…", st.message, auditDomain),
			}
		}

		results, revenue := score(auditDomain)
		out <- Event{
			Status:  domain.StatusCompleted,
			Message: summarize(auditDomain, results, revenue),
			Results: results,
			Revenue: revenue,
		}
	}()
	return out
}

// pause sleeps for StepDelay unless the context ends first.
func (e *Engine) pause(ctx context.Context) error {
	if e.StepDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.StepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// score derives the four channel scores, the findings, and the revenue
// estimate from the domain string.
func score(auditDomain string) (*domain.Results, *domain.RevenueCard) {
	h := fnv.New64a()
	h.Write([]byte(auditDomain))
	seed := h.Sum64()

	// Scores land in 35..94 so every audit has something to improve.
	pick := func(shift uint) int { return 35 + int((seed>>shift)%60) }
	r := &domain.Results{
		Performance: pick(0),
		Conversion:  pick(8),
		Mobile:      pick(16),
		SEO:         pick(24),
	}

	type finding struct {
		score int
		issue domain.Issue
		win   domain.QuickWin
	}
	findings := []finding{
		{r.Conversion, checkoutIssue(), checkoutWin()},
		{r.Performance, speedIssue(), speedWin()},
		{r.SEO, seoIssue(), seoWin()},
		{r.Mobile, mobileIssue(), mobileWin()},
	}
	// Worst channels first; everything under 70 is a finding.
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].score < findings[j].score })
	for _, f := range findings {
		if f.score < 70 {
			r.IssuesFound = append(r.IssuesFound, f.issue)
			r.QuickWins = append(r.QuickWins, f.win)
		}
	}
	if len(r.IssuesFound) == 0 {
		// Even healthy domains get their weakest channel flagged.
		r.IssuesFound = append(r.IssuesFound, findings[0].issue)
		r.QuickWins = append(r.QuickWins, findings[0].win)
	}

	// Monthly loss scales with how far the worst score sits below 100.
	monthly := float64(100-findings[0].score) * 250
	card := &domain.RevenueCard{
		MonthlyLoss:  monthly,
		AnnualLoss:   monthly * 12,
		BiggestIssue: r.IssuesFound[0].Title,
	}
	return r, card
}

// summarize renders the one-line completion message.
func summarize(auditDomain string, r *domain.Results, card *domain.RevenueCard) string {
	return fmt.Sprintf(
		"Analysis of %s is complete: performance %d, conversion %d, mobile %d, SEO %d. "+
			"The biggest issue is %s, costing an estimated $%.0f per month.",
		auditDomain, r.Performance, r.Conversion, r.Mobile, r.SEO,
		card.BiggestIssue, card.MonthlyLoss,
	)
}

func checkoutIssue() domain.Issue {
	return domain.Issue{
		Title:       "slow checkout",
		Severity:    "high",
		Description: "The checkout funnel loses visitors before payment.",
	}
}

func checkoutWin() domain.QuickWin {
	return domain.QuickWin{
		Title:        "Streamline the checkout",
		Current:      "Multi-step checkout with forced registration",
		Recommended:  "Three steps or fewer with a guest option",
		Improvement:  "High",
		TimeEstimate: "1-2 days",
		Steps: []string{
			"Enable guest checkout",
			"Merge shipping and billing into one step",
			"Defer account creation until after purchase",
		},
		Impact: 9.1,
	}
}

func speedIssue() domain.Issue {
	return domain.Issue{
		Title:       "slow page loads",
		Severity:    "high",
		Description: "Key landing pages render too slowly on first visit.",
	}
}

func speedWin() domain.QuickWin {
	return domain.QuickWin{
		Title:        "Cut page weight",
		Current:      "Uncompressed images and render-blocking scripts",
		Recommended:  "Compressed media behind a CDN, deferred scripts",
		Improvement:  "High",
		TimeEstimate: "2-4 hours",
		Steps: []string{
			"Compress and resize hero images",
			"Defer non-critical JavaScript",
			"Serve static assets from a CDN",
		},
		Impact: 8.4,
	}
}

func seoIssue() domain.Issue {
	return domain.Issue{
		Title:       "weak search presence",
		Severity:    "medium",
		Description: "Indexed pages are missing metadata search engines rank on.",
	}
}

func seoWin() domain.QuickWin {
	return domain.QuickWin{
		Title:        "Fill the metadata gaps",
		Current:      "Duplicate titles and missing meta descriptions",
		Recommended:  "Unique title and description per indexed page",
		Improvement:  "Medium",
		TimeEstimate: "1 day",
		Steps: []string{
			"Export the duplicate-title report",
			"Write unique titles for the top 20 pages",
			"Add 140-160 character meta descriptions",
		},
		Impact: 6.8,
	}
}

func mobileIssue() domain.Issue {
	return domain.Issue{
		Title:       "poor mobile experience",
		Severity:    "medium",
		Description: "Small tap targets and cramped forms frustrate mobile buyers.",
	}
}

func mobileWin() domain.QuickWin {
	return domain.QuickWin{
		Title:        "Fix mobile ergonomics",
		Current:      "Desktop-first layout scaled down",
		Recommended:  "44px tap targets and single-column forms",
		Improvement:  "Medium",
		TimeEstimate: "4-8 hours",
		Steps: []string{
			"Enlarge tap targets to 44px",
			"Collapse forms to a single column",
			"Test checkout on a mid-range phone",
		},
		Impact: 7.2,
	}
}
