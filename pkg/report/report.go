// Package report renders the per-PR run summary and posts it back to the PR.
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/churn-run/churn/pkg/log"
	"github.com/churn-run/churn/pkg/validate"
)

// CommentPoster posts an issue comment on a PR. *github.Client satisfies it.
type CommentPoster interface {
	PostComment(ctx context.Context, prNumber int, body string) error
}

// Reporter posts one summary comment per processed PR. In dry-run mode the
// would-be body is logged and no network call is made.
type Reporter struct {
	poster CommentPoster
	dryRun bool
}

// New creates a Reporter.
func New(poster CommentPoster, dryRun bool) *Reporter {
	return &Reporter{poster: poster, dryRun: dryRun}
}

// Post renders and delivers the summary comment for one PR. Delivery failure
// is logged, not returned: a missing comment never fails the PR.
func (r *Reporter) Post(ctx context.Context, res validate.Result, fixedThreads int, tokensUsed int64) {
	body := Render(res, fixedThreads, tokensUsed)

	if r.dryRun {
		log.Infof("[DRY-RUN] Would post summary comment on PR #%d:\n%s", res.PRNumber, body)
		return
	}

	if err := r.poster.PostComment(ctx, res.PRNumber, body); err != nil {
		log.Warnf("Failed to post summary comment on PR #%d: %v", res.PRNumber, err)
		return
	}
	log.Infof("Posted summary comment on PR #%d", res.PRNumber)
}

// Render builds the fixed-format markdown summary body.
func Render(res validate.Result, fixedThreads int, tokensUsed int64) string {
	var b strings.Builder

	b.WriteString("## Automated validation report\n\n")
	b.WriteString("| Check | Result |\n")
	b.WriteString("| --- | --- |\n")
	fmt.Fprintf(&b, "| Lint | %s |\n", mark(res.LintOK))
	fmt.Fprintf(&b, "| Format | %s |\n", mark(res.FormatOK))
	fmt.Fprintf(&b, "| Tests | %s |\n", mark(res.TestsOK))

	if res.Passed {
		b.WriteString("\nAll checks passed.\n")
	} else {
		b.WriteString("\nSome checks failed. See the run logs for details.\n")
	}

	if fixedThreads > 0 {
		fmt.Fprintf(&b, "\nApplied fixes for %d review thread(s), using %d tokens.\n", fixedThreads, tokensUsed)
	}

	if res.Err != "" {
		fmt.Fprintf(&b, "\n**Processing error:** %s\n", res.Err)
	}

	return b.String()
}

func mark(ok bool) string {
	if ok {
		return "✅ pass"
	}
	return "❌ fail"
}
